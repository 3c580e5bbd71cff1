// server/session.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	crand "crypto/rand"
	"encoding/base64"
	"time"

	"github.com/brunoga/deep"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mmp/hoppiebridge/dref"
	"github.com/mmp/hoppiebridge/hoppie"
	"github.com/mmp/hoppiebridge/log"
	"github.com/mmp/hoppiebridge/util"
)

///////////////////////////////////////////////////////////////////////////
// Types and Constructors

// Session owns the Bridge and is the only goroutine that calls into it:
// clients and the simulator host all talk to the registry (or to the
// snapshot below), and Tick pumps their writes into the Bridge once a
// second. This keeps the Bridge strictly single-threaded without making
// every RPC serialize on the tick.
type Session struct {
	bridge   *hoppie.Bridge
	registry *dref.Registry
	events   *hoppie.EventStream

	lg *log.Logger
	mu util.LoggingMutex

	// Owned by the tick goroutine.
	lastError string
	recentSub *hoppie.EventsSubscription

	// Guarded by mu.
	state          hoppie.State
	clientsByToken map[string]*clientState
	recent         *expirable.LRU[int64, hoppie.Event]
	recentSeq      int64
}

// clientState holds state for a single client's connection to the bridge.
type clientState struct {
	token               string
	name                string
	lastUpdateCall      time.Time
	warnedNoUpdateCalls bool
	eventSub            *hoppie.EventsSubscription
}

func NewSession(bridge *hoppie.Bridge, registry *dref.Registry, events *hoppie.EventStream,
	lg *log.Logger) *Session {
	return &Session{
		bridge:         bridge,
		registry:       registry,
		events:         events,
		lg:             lg,
		recentSub:      events.Subscribe(),
		state:          bridge.Snapshot(),
		clientsByToken: make(map[string]*clientState),
		recent:         expirable.NewLRU[int64, hoppie.Event](64, nil, 30*time.Minute),
	}
}

// declareSlots registers the full slot vocabulary with the registry.
// Writable slots are the host-facing inputs; everything else is
// published by the session and read-only from outside.
func declareSlots(r *dref.Registry, e *util.ErrorLogger) {
	decl := func(err error) {
		if err != nil {
			e.Error(err)
		}
	}

	decl(r.DeclareString(dref.CallsignSlot, true))
	decl(r.DeclareBool(dref.AvionicsPowerSlot, true))
	decl(r.DeclareString(dref.SendQueueSlot, true))
	decl(r.DeclareString(dref.SendToSlot, true))
	decl(r.DeclareString(dref.SendTypeSlot, true))
	decl(r.DeclareString(dref.SendPacketSlot, true))
	decl(r.DeclareBool(dref.SendSubmitSlot, true))
	decl(r.DeclareBool(dref.ClearInboxSlot, true))

	decl(r.DeclareString(dref.PollQueueSlot, false))
	decl(r.DeclareString(dref.RecvOriginSlot, false))
	decl(r.DeclareString(dref.RecvFromSlot, false))
	decl(r.DeclareString(dref.RecvTypeSlot, false))
	decl(r.DeclareString(dref.RecvPacketSlot, false))
	decl(r.DeclareBool(dref.ReadySlot, false))
	decl(r.DeclareString(dref.ErrorSlot, false))
}

///////////////////////////////////////////////////////////////////////////
// The Tick Loop

// Run drives the session until done is closed. It is the bridge's tick
// goroutine; nothing else may call bridge methods while it runs.
func (s *Session) Run(done <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			s.bridge.Shutdown()
			return
		case <-ticker.C:
			s.Tick(time.Now())
		}
	}
}

// Tick applies pending host writes from the registry, advances the
// bridge, and publishes the resulting state back to the registry and to
// the snapshot that GetStateUpdate serves.
func (s *Session) Tick(now time.Time) {
	s.applyHostWrites()

	s.bridge.Update(now)

	if e := s.bridge.TakeError(); e != "" {
		// The slot is clear-on-read for the host; keep a sticky copy
		// for status displays.
		_ = s.registry.SetString(dref.ErrorSlot, e)
		s.lastError = e
	}

	st := s.bridge.Snapshot()
	st.LastError = s.lastError
	s.publish(st)

	s.mu.Lock(s.lg)
	s.state = st
	for _, ev := range s.recentSub.Get() {
		s.recentSeq++
		s.recent.Add(s.recentSeq, ev)
	}
	s.mu.Unlock(s.lg)

	s.cullIdleClients()
}

// applyHostWrites drains the writable slots into bridge calls. Trigger
// slots reset when taken so each write fires once.
func (s *Session) applyHostWrites() {
	if cs, err := s.registry.String(dref.CallsignSlot); err == nil {
		s.bridge.SetCallsign(cs)
	}
	if on, err := s.registry.Bool(dref.AvionicsPowerSlot); err == nil {
		s.bridge.SetPower(on)
	}

	if rec, err := s.registry.TakeString(dref.SendQueueSlot); err == nil && rec != "" {
		if err := s.bridge.SubmitRecord(rec); err != nil {
			s.lg.Warnf("%s: rejected send queue record: %v", truncateForLog(rec), err)
			_ = s.registry.SetString(dref.ErrorSlot, err.Error())
			s.lastError = err.Error()
		}
	}

	if fire, err := s.registry.TakeBool(dref.SendSubmitSlot); err == nil && fire {
		to, _ := s.registry.String(dref.SendToSlot)
		ty, _ := s.registry.String(dref.SendTypeSlot)
		packet, _ := s.registry.String(dref.SendPacketSlot)
		if err := s.bridge.Submit(to, ty, packet); err != nil {
			s.lg.Warnf("%s %s: rejected send: %v", to, ty, err)
			_ = s.registry.SetString(dref.ErrorSlot, err.Error())
			s.lastError = err.Error()
		}
	}

	if clear, err := s.registry.TakeBool(dref.ClearInboxSlot); err == nil && clear {
		s.bridge.ClearInbox()
	}
}

// publish mirrors bridge state into the read-only slots.
func (s *Session) publish(st hoppie.State) {
	_ = s.registry.SetBool(dref.ReadySlot, st.Ready)
	_ = s.registry.SetString(dref.PollQueueSlot, st.LatestRecord)

	if st.HaveMessage {
		_ = s.registry.SetString(dref.RecvOriginSlot, st.Latest.Origin.String())
		_ = s.registry.SetString(dref.RecvFromSlot, st.Latest.From)
		_ = s.registry.SetString(dref.RecvTypeSlot, st.Latest.Type)
		_ = s.registry.SetString(dref.RecvPacketSlot, st.Latest.Packet)
	} else {
		_ = s.registry.SetString(dref.RecvOriginSlot, "")
		_ = s.registry.SetString(dref.RecvFromSlot, "")
		_ = s.registry.SetString(dref.RecvTypeSlot, "")
		_ = s.registry.SetString(dref.RecvPacketSlot, "")
	}
}

func truncateForLog(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

///////////////////////////////////////////////////////////////////////////
// Client Lifecycle

func makeClientToken(lg *log.Logger) string {
	var buf [16]byte
	if _, err := crand.Read(buf[:]); err != nil {
		lg.Errorf("%v", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf[:])
}

// AddClient registers a client connection and returns its token. Each
// client gets its own event subscription so that none of them miss
// events regardless of how often they poll.
func (s *Session) AddClient(name string) (string, error) {
	token := makeClientToken(s.lg)
	if token == "" {
		return "", ErrInvalidClientToken
	}

	sub := s.events.Subscribe()

	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	s.clientsByToken[token] = &clientState{
		token:          token,
		name:           name,
		lastUpdateCall: time.Now(),
		eventSub:       sub,
	}

	s.lg.Infof("%s: signed on as %q", token, name)
	return token, nil
}

func (s *Session) RemoveClient(token string) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	conn, ok := s.clientsByToken[token]
	if !ok {
		return ErrInvalidClientToken
	}

	if conn.eventSub != nil {
		conn.eventSub.Unsubscribe()
	}
	delete(s.clientsByToken, token)

	s.lg.Infof("%s: signed off %q", token, conn.name)
	return nil
}

// CheckToken validates a token without touching any other state. Write
// RPCs use it before they go to the registry.
func (s *Session) CheckToken(token string) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	if _, ok := s.clientsByToken[token]; !ok {
		return ErrInvalidClientToken
	}
	return nil
}

// cullIdleClients signs off clients we haven't heard from in a minute.
// One-shot command line clients come and go quickly, so the warning
// threshold is generous compared to the sign-off one.
func (s *Session) cullIdleClients() {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	for token, conn := range s.clientsByToken {
		if time.Since(conn.lastUpdateCall) > 15*time.Second && !conn.warnedNoUpdateCalls {
			conn.warnedNoUpdateCalls = true
			s.lg.Warnf("%s: no messages from %q for 15 seconds", token, conn.name)
		}
		if time.Since(conn.lastUpdateCall) > time.Minute {
			s.lg.Warnf("%s: signing off idle client %q", token, conn.name)
			if conn.eventSub != nil {
				conn.eventSub.Unsubscribe()
			}
			delete(s.clientsByToken, token)
		}
	}
}

///////////////////////////////////////////////////////////////////////////
// State Updates

// GetStateUpdate returns a copy of the current bridge state plus the
// events the client hasn't seen yet. This is the main entry point for
// periodic state updates from a client.
func (s *Session) GetStateUpdate(token string) (*StateUpdate, error) {
	s.mu.Lock(s.lg)
	conn, ok := s.clientsByToken[token]
	if !ok {
		s.mu.Unlock(s.lg)
		return nil, ErrInvalidClientToken
	}

	conn.lastUpdateCall = time.Now()
	if conn.warnedNoUpdateCalls {
		conn.warnedNoUpdateCalls = false
		s.lg.Warnf("%s: connection from %q re-established", token, conn.name)
	}

	update := &StateUpdate{
		State:  deep.MustCopy(s.state),
		Events: conn.eventSub.Get(),
	}
	s.mu.Unlock(s.lg)

	return update, nil
}

// State returns a copy of the most recent tick's snapshot. Unlike
// GetStateUpdate it has no client attached; the status page uses it.
func (s *Session) State() hoppie.State {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return deep.MustCopy(s.state)
}

// RecentEvents returns the event history for the status page, oldest
// first.
func (s *Session) RecentEvents() []hoppie.Event {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return s.recent.Values()
}

func (s *Session) ClientCount() int {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return len(s.clientsByToken)
}
