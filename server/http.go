// server/http.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"fmt"
	"log/slog"
	gomath "math"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"strconv"
	"text/template"
	"time"

	"github.com/mmp/hoppiebridge/dref"
	"github.com/mmp/hoppiebridge/hoppie"
	"github.com/mmp/hoppiebridge/util"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"
)

type serverStats struct {
	Uptime           time.Duration
	AllocMemory      uint64
	TotalAllocMemory uint64
	SysMemory        uint64
	HostMemoryUsed   int
	RX, TX           int64
	NumGC            uint32
	NumGoRoutines    int
	CPUUsage         int

	Bridge bridgeStatus
	Events []hoppie.Event
	Slots  []dref.SlotValue
}

///////////////////////////////////////////////////////////////////////////
// Status / statistics via HTTP...

func launchHTTPServer(srv *Server, configPort int) int {
	mux := http.NewServeMux()

	mux.HandleFunc("/sup", func(w http.ResponseWriter, r *http.Request) {
		srv.statsHandler(w, r)
		srv.lg.Infof("%s: served stats request", r.URL.String())
	})

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	var listener net.Listener
	var err error
	var port int
	if configPort != 0 {
		port = configPort
		listener, err = net.Listen("tcp", ":"+strconv.Itoa(port))
	} else {
		for i := 0; i < 10; i++ {
			port = BridgeHTTPServerPort + i
			if listener, err = net.Listen("tcp", ":"+strconv.Itoa(port)); err == nil {
				break
			}
		}
	}

	if err != nil {
		srv.lg.Warnf("Unable to start HTTP server")
		return 0
	}

	fmt.Printf("Launching HTTP server on port %d\n", port)
	go func() {
		if err := http.Serve(listener, mux); err != nil {
			srv.lg.Errorf("HTTP server error: %v", err)
		}
	}()

	return port
}

type bridgeStatus struct {
	Callsign      string
	PowerOn       bool
	Ready         bool
	Clients       int
	QueueLen      int
	Cadence       time.Duration
	PendingAnswer bool
	LastPoll      string
	Sent          int64
	Received      int64
	Polls         int64
	PollFailures  int64
	SendFailures  int64
	LastError     string
}

func (bs bridgeStatus) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("callsign", bs.Callsign),
		slog.Bool("power_on", bs.PowerOn),
		slog.Bool("ready", bs.Ready),
		slog.Int("clients", bs.Clients),
		slog.Int("queue_len", bs.QueueLen),
		slog.Duration("cadence", bs.Cadence),
		slog.Bool("pending_answer", bs.PendingAnswer),
		slog.Int64("sent", bs.Sent),
		slog.Int64("received", bs.Received),
		slog.Int64("polls", bs.Polls))
}

func (s *Server) getBridgeStatus() bridgeStatus {
	st := s.session.State()

	lastPoll := "never"
	if !st.Poll.LastPollAt.IsZero() {
		lastPoll = time.Since(st.Poll.LastPollAt).Round(time.Second).String() + " ago"
		if !st.Poll.LastPollSucceeded {
			lastPoll += " (failed)"
		}
	}

	return bridgeStatus{
		Callsign:      st.Callsign,
		PowerOn:       st.PowerOn,
		Ready:         st.Ready,
		Clients:       s.session.ClientCount(),
		QueueLen:      st.QueueLen,
		Cadence:       st.Poll.Cadence,
		PendingAnswer: st.Poll.PendingAnswer,
		LastPoll:      lastPoll,
		Sent:          st.Stats.MessagesSent,
		Received:      st.Stats.MessagesReceived,
		Polls:         st.Stats.PollsCompleted,
		PollFailures:  st.Stats.PollFailures,
		SendFailures:  st.Stats.SendFailures,
		LastError:     st.LastError,
	}
}

var templateFuncs = template.FuncMap{
	"bytes": func(v int64) string { return util.ByteCount(v).String() },
	"event": func(e hoppie.Event) string { return e.String() },
}

var statsTemplate = template.Must(template.New("").Funcs(templateFuncs).Parse(`
<!DOCTYPE html>
<html>
<head>
<title>hoppie hour</title>
</head>
<style>
table {
  border-collapse: collapse;
  width: 100%;
}

th, td {
  border: 1px solid #dddddd;
  padding: 8px;
  text-align: left;
}

tr:nth-child(even) {
  background-color: #f2f2f2;
}

#log {
    font-family: "Courier New", monospace;  /* use a monospace font */
    width: 100%;
    height: 500px;
    font-size: 12px;
    overflow: auto;  /* add scrollbars as necessary */
    white-space: pre-wrap;  /* wrap text */
    border: 1px solid #ccc;
    padding: 10px;
}
</style>
<body>
<h1>Server Status</h1>
<ul>
  <li>Uptime: {{.Uptime}}</li>
  <li>CPU usage: {{.CPUUsage}}%</li>
  <li>Bandwidth: {{bytes .RX}} RX, {{bytes .TX}} TX</li>
  <li>Allocated memory: {{.AllocMemory}} MB</li>
  <li>Total allocated memory: {{.TotalAllocMemory}} MB</li>
  <li>System memory: {{.SysMemory}} MB</li>
  <li>Host memory used: {{.HostMemoryUsed}}%</li>
  <li>Garbage collection passes: {{.NumGC}}</li>
  <li>Running goroutines: {{.NumGoRoutines}}</li>
</ul>

<h1>Bridge Status</h1>
<ul>
  <li>Callsign: <tt>{{if .Bridge.Callsign}}{{.Bridge.Callsign}}{{else}}(unset){{end}}</tt></li>
  <li>Power: {{if .Bridge.PowerOn}}on{{else}}off{{end}}</li>
  <li>Ready: {{.Bridge.Ready}}</li>
  <li>Connected clients: {{.Bridge.Clients}}</li>
  <li>Send queue length: {{.Bridge.QueueLen}}</li>
  <li>Poll cadence: {{.Bridge.Cadence}}{{if .Bridge.PendingAnswer}} (answer pending){{end}}</li>
  <li>Last poll: {{.Bridge.LastPoll}}</li>
  <li>Sent: {{.Bridge.Sent}}, received: {{.Bridge.Received}}</li>
  <li>Polls: {{.Bridge.Polls}} ({{.Bridge.PollFailures}} failed), send failures: {{.Bridge.SendFailures}}</li>
{{if .Bridge.LastError}}  <li>Last error: <tt>{{.Bridge.LastError}}</tt></li>
{{end}}</ul>

<h1>Slots</h1>
<table>
  <tr>
  <th>Name</th>
  <th>Kind</th>
  <th>Writable</th>
  <th>Value</th>
  </tr>
{{range .Slots}}  <tr>
  <td><tt>{{.Name}}</tt></td>
  <td>{{.Kind}}</td>
  <td>{{.Writable}}</td>
  <td><tt>{{if eq .Kind.String "string"}}{{.String}}{{else}}{{.Bool}}{{end}}</tt></td>
</tr>
{{end}}</table>

<h1>Recent Events</h1>
<table>
  <tr>
  <th>Time</th>
  <th>Event</th>
  </tr>
{{range .Events}}  <tr>
  <td>{{.Time.Format "15:04:05"}}</td>
  <td><tt>{{event .}}</tt></td>
</tr>
{{end}}</table>

</body>
</html>
`))

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// cpu.Percent samples over its interval, so gather the host stats
	// concurrently rather than serializing the waits.
	var usage []float64
	var hostUsed int
	var eg errgroup.Group
	eg.Go(func() error {
		var err error
		usage, err = cpu.Percent(time.Second, false)
		return err
	})
	eg.Go(func() error {
		vm, err := mem.VirtualMemory()
		if err == nil {
			hostUsed = int(gomath.Round(vm.UsedPercent))
		}
		return err
	})
	if err := eg.Wait(); err != nil {
		s.lg.Warnf("host stats: %v", err)
	}
	var cpuUsage int
	if len(usage) > 0 {
		cpuUsage = int(gomath.Round(usage[0]))
	}

	stats := serverStats{
		Uptime:           time.Since(s.lg.Start).Round(time.Second),
		AllocMemory:      m.Alloc / (1024 * 1024),
		TotalAllocMemory: m.TotalAlloc / (1024 * 1024),
		SysMemory:        m.Sys / (1024 * 1024),
		HostMemoryUsed:   hostUsed,
		NumGC:            m.NumGC,
		NumGoRoutines:    runtime.NumGoroutine(),
		CPUUsage:         cpuUsage,

		Bridge: s.getBridgeStatus(),
		Events: s.session.RecentEvents(),
		Slots:  s.registry.Dump(),
	}

	stats.RX, stats.TX = util.GetLoggedRPCBandwidth()

	statsTemplate.Execute(w, stats)
}
