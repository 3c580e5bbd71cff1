// util/sync.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"encoding/json"
	"log/slog"
	gomath "math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmp/hoppiebridge/log"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

///////////////////////////////////////////////////////////////////////////
// AtomicBool

// AtomicBool is a simple wrapper around atomic.Bool that adds support for
// JSON marshaling/unmarshaling.
type AtomicBool struct {
	atomic.Bool
}

func (a *AtomicBool) MarshalJSON() ([]byte, error) {
	b := a.Load()
	return json.Marshal(b)
}

func (a *AtomicBool) UnmarshalJSON(data []byte) error {
	var b bool
	err := json.Unmarshal(data, &b)
	if err == nil {
		a.Store(b)
	}
	return err
}

///////////////////////////////////////////////////////////////////////////
// LoggingMutex

var heldMutexesMutex sync.Mutex
var heldMutexes map[*LoggingMutex]interface{} = make(map[*LoggingMutex]interface{})

type LoggingMutex struct {
	sync.Mutex
	acq      time.Time
	acqStack []log.StackFrame
}

func (l *LoggingMutex) Lock(lg *log.Logger) {
	tryTime := time.Now()
	lg.Debug("attempting to acquire mutex", slog.Any("mutex", l))

	if !l.Mutex.TryLock() {
		// Lock with timeout.
		locked := make(chan struct{}, 1)

		go func() {
			l.Mutex.Lock()
			locked <- struct{}{}
		}()

		select {
		case <-locked:

		case <-time.After(10 * time.Second):
			lg.Error("unable to acquire mutex after 10 seconds", slog.Any("mutex", l),
				slog.Any("held_mutexes", heldMutexes))

			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			usage, _ := cpu.Percent(time.Second, false)

			lg.Errorf("CPU: %d%% alloc: %dMB total alloc: %dMB sys mem: %dMB goroutines: %d",
				int(gomath.Round(usage[0])), m.Alloc/(1024*1024), m.TotalAlloc/(1024*1024), m.Sys/(1024*1024),
				runtime.NumGoroutine())
		}
	}

	heldMutexesMutex.Lock()
	heldMutexes[l] = nil
	heldMutexesMutex.Unlock()

	l.acq = time.Now()
	l.acqStack = log.Callstack(l.acqStack)
	w := l.acq.Sub(tryTime)
	lg.Debug("acquired mutex", slog.Any("mutex", l), slog.Duration("wait", w))
	if w > time.Second {
		lg.Warn("long wait to acquire mutex", slog.Any("mutex", l), slog.Duration("wait", w))
	}
}

func (l *LoggingMutex) Unlock(lg *log.Logger) {
	heldMutexesMutex.Lock()
	// Though it may seem like we could unlock this sooner, holding it
	// until this function returns ensures that if we end up doing logging
	// in the code below, other mutexes aren't unlocked while we're trying
	// to log the held ones.
	defer heldMutexesMutex.Unlock()

	if _, ok := heldMutexes[l]; !ok {
		lg.Error("mutex not held", slog.Any("held_mutexes", heldMutexes))
	}
	delete(heldMutexes, l)

	if d := time.Since(l.acq); d > time.Second {
		lg.Warn("mutex held for over 1 second", slog.Any("mutex", l), slog.Duration("held", d),
			slog.Any("held_mutexes", heldMutexes))
	}

	l.acq = time.Time{}
	l.acqStack = nil
	l.Mutex.Unlock()

	lg.Debug("released mutex", slog.Any("mutex", l))
}

func (l *LoggingMutex) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("acq", l.acq),
		slog.Duration("held", time.Since(l.acq)),
		slog.Any("acq_stack", l.acqStack))
}

///////////////////////////////////////////////////////////////////////////
// Resource monitoring

// MonitorCPUUsage spawns a goroutine that periodically samples process CPU
// usage and logs when it stays above pct percent. With panicIfHigh set, a
// minute of sustained overage turns into a panic so that the stack dump
// shows where the time is going.
func MonitorCPUUsage(pct int, panicIfHigh bool, lg *log.Logger) {
	go func() {
		over := 0
		for {
			// Blocks for the sample interval, so this is also the loop cadence.
			usage, err := cpu.Percent(5*time.Second, false)
			if err != nil || len(usage) == 0 {
				lg.Errorf("cpu.Percent: %v", err)
				return
			}

			u := int(gomath.Round(usage[0]))
			if u < pct {
				over = 0
				continue
			}

			over++
			lg.Warn("high CPU usage", slog.Int("usage", u), slog.Int("threshold", pct),
				slog.Int("goroutines", runtime.NumGoroutine()))
			if panicIfHigh && over >= 12 {
				panic("sustained high CPU usage")
			}
		}
	}()
}

// MonitorMemoryUsage spawns a goroutine that logs a memory report when
// allocated memory first passes startMB and again each time it has grown
// by another deltaMB since the last report.
func MonitorMemoryUsage(startMB int, deltaMB int, lg *log.Logger) {
	go func() {
		next := startMB
		for {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			if alloc := int(m.Alloc / (1024 * 1024)); alloc >= next {
				vm, _ := mem.VirtualMemory()
				lg.Warn("memory usage", slog.Int("alloc_mb", alloc),
					slog.Int("total_alloc_mb", int(m.TotalAlloc/(1024*1024))),
					slog.Int("sys_mb", int(m.Sys/(1024*1024))),
					slog.Any("virtual_memory", vm))
				next = alloc + deltaMB
			}

			time.Sleep(15 * time.Second)
		}
	}()
}
