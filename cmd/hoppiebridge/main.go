// cmd/hoppiebridge/main.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

// This file contains the implementation of the main() function, which
// initializes the system and then runs the bridge server until the
// process is signaled to exit.

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmp/hoppiebridge/hoppie"
	"github.com/mmp/hoppiebridge/log"
	"github.com/mmp/hoppiebridge/server"
	"github.com/mmp/hoppiebridge/util"
)

var (
	// Command-line options override the saved configuration.
	cpuprofile       = flag.String("cpuprofile", "", "write CPU profile to file")
	memprofile       = flag.String("memprofile", "", "write memory profile to this file")
	logLevel         = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
	logDir           = flag.String("logdir", "", "log file directory")
	logon            = flag.String("logon", "", "Hoppie network logon code")
	callsign         = flag.String("callsign", "", "station callsign to start with")
	serverPort       = flag.Int("port", server.BridgeServerPort, "port to listen on for client RPC connections")
	httpPort         = flag.Int("httpport", 0, "status page port; with 0, scanning starts at the default")
	acarsURL         = flag.String("acars", "", "ACARS server URL")
	pollInterval     = flag.Duration("poll", 0, "poll interval")
	fastPollInterval = flag.Duration("fastpoll", 0, "poll interval used while an answer is pending")
	drainInterval    = flag.Duration("drain", 0, "minimum spacing between outbound messages")
	answerTimeout    = flag.Duration("answertimeout", 0, "how long to wait for an answer before reverting to the regular poll interval; 0 waits indefinitely")
	captureFilename  = flag.String("capture", "", "record every ACARS exchange to this file")
	replayFilename   = flag.String("replay", "", "serve ACARS exchanges from this capture file instead of the network")
	replayRate       = flag.Float64("replayrate", 1, "replay pacing multiplier; 0 replays without delays")
	resetConfig      = flag.Bool("resetconfig", false, "discard the saved configuration and start fresh")
)

func main() {
	flag.Parse()

	// Initialize the logging system first and foremost.
	lg := log.New(*logLevel, *logDir)
	defer lg.CatchAndReportCrash()

	profiler, err := util.CreateProfiler(*cpuprofile, *memprofile)
	if err != nil {
		lg.Errorf("%v", err)
	}
	defer profiler.Cleanup()

	config, configErr := LoadOrMakeDefaultConfig(lg)
	if configErr != nil {
		fmt.Fprintf(os.Stderr, "Configuration file error (continuing with defaults): %v\n", configErr)
	}
	if *resetConfig {
		config = getDefaultConfig()
	}
	config.OverrideFromFlags()

	if config.Logon == "" {
		fmt.Fprintln(os.Stderr, "No logon code configured; pass -logon or edit the config file.")
		fmt.Fprintln(os.Stderr, "The bridge will poll nothing and reject sends until one is set.")
	}

	transport, capture, err := makeTransport(config, lg)
	if err != nil {
		lg.Errorf("%v", err)
		os.Exit(1)
	}
	if capture != nil {
		defer capture.Close()
	}

	srv, e := server.LaunchServerAsync(server.ServerLaunchConfig{
		Port:      *serverPort,
		HTTPPort:  *httpPort,
		Bridge:    config.BridgeConfig(),
		Callsign:  config.Callsign,
		PowerOn:   config.StartPowered,
		Transport: transport,
	}, lg)
	if e.HaveErrors() {
		e.PrintErrors(lg)
		os.Exit(1)
	}

	fmt.Printf("hoppiebridge: RPC on port %d, status at http://localhost:%d/sup\n",
		srv.RPCPort(), srv.HTTPPort())

	util.MonitorCPUUsage(95, false, lg)
	util.MonitorMemoryUsage(128 /* trigger MB */, 64 /* delta MB */, lg)

	go updateStatus(srv, config, lg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(os.Stderr, "Caught signal, shutting down...")
	srv.Shutdown()
	config.SaveIfChanged(lg)
}

// makeTransport builds the transport stack per the config: a replay
// file if one was given, otherwise HTTP, optionally wrapped so that
// every exchange is recorded.
func makeTransport(config *Config, lg *log.Logger) (hoppie.Transport, *hoppie.SessionCapture, error) {
	if *replayFilename != "" {
		if *captureFilename != "" {
			return nil, nil, fmt.Errorf("-capture and -replay cannot be used together")
		}
		tr, err := hoppie.MakeReplayTransport(*replayFilename, float32(*replayRate))
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %v", *replayFilename, err)
		}
		fmt.Printf("Replaying ACARS exchanges from %s\n", *replayFilename)
		return tr, nil, nil
	}

	timeout := config.RequestTimeout
	if timeout == 0 {
		timeout = hoppie.DefaultRequestTimeout
	}
	var tr hoppie.Transport = hoppie.MakeHTTPTransport(config.ACARSServerURL, timeout, lg)

	if *captureFilename != "" {
		capture, err := hoppie.NewSessionCapture(*captureFilename)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %v", *captureFilename, err)
		}
		fmt.Printf("Recording ACARS exchanges to %s\n", *captureFilename)
		return hoppie.MakeCaptureTransport(tr, capture), capture, nil
	}

	return tr, nil, nil
}

// updateStatus feeds the Discord presence updater from the bridge
// snapshot.
func updateStatus(srv *server.Server, config *Config, lg *log.Logger) {
	start := time.Now()
	for {
		st := srv.BridgeState()
		SetDiscordStatus(DiscordStatus{
			Callsign: st.Callsign,
			Ready:    st.Ready,
			Sent:     st.Stats.MessagesSent,
			Received: st.Stats.MessagesReceived,
			Start:    start,
		}, config, lg)

		time.Sleep(10 * time.Second)
	}
}
