// server/server.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"net"
	"net/rpc"
	"os"
	"strconv"

	"github.com/mmp/hoppiebridge/dref"
	"github.com/mmp/hoppiebridge/hoppie"
	"github.com/mmp/hoppiebridge/log"
	"github.com/mmp/hoppiebridge/util"
)

// Version history
// 1: initial RPC protocol
// 2: structured send/receive slots alongside the legacy JSON records
// 3: capture/replay, Connect returns the slot vocabulary
const BridgeSerializeVersion = 3

const BridgeServerAddress = "localhost"
const BridgeServerPort = 8700 + BridgeRPCVersion
const BridgeRPCVersion = BridgeSerializeVersion
const BridgeHTTPServerPort = 6850

type ServerLaunchConfig struct {
	Port     int // if 0, finds an open one
	HTTPPort int // if 0, starts scanning at BridgeHTTPServerPort
	Bridge   hoppie.Config
	// Callsign and PowerOn seed the corresponding slots; a connected
	// simulator host overrides them by writing the slots itself.
	Callsign string
	PowerOn  bool
	// Transport overrides the default HTTP transport; capture and replay
	// wrappers come in this way.
	Transport hoppie.Transport
}

// Server ties together the registry, the event stream, the session, and
// the RPC listener. The dispatcher reaches everything through it.
type Server struct {
	lg       *log.Logger
	session  *Session
	registry *dref.Registry
	events   *hoppie.EventStream

	rpcPort  int
	httpPort int
	listener net.Listener
	done     chan struct{}
}

func (s *Server) RPCPort() int  { return s.rpcPort }
func (s *Server) HTTPPort() int { return s.httpPort }

// BridgeState returns a copy of the most recent tick's snapshot, for
// in-process status displays that don't want an RPC connection.
func (s *Server) BridgeState() hoppie.State { return s.session.State() }

// Shutdown stops the accept loop and the session tick loop; the session
// shuts the bridge down in turn.
func (s *Server) Shutdown() {
	close(s.done)
	s.listener.Close()
}

func LaunchServer(config ServerLaunchConfig, lg *log.Logger) {
	util.MonitorCPUUsage(95, true /* panic if wedged */, lg)
	util.MonitorMemoryUsage(128 /* trigger MB */, 64 /* delta MB */, lg)

	_, server, e := makeServer(config, lg)
	if e.HaveErrors() {
		e.PrintErrors(lg)
		os.Exit(1)
	}
	server()
}

func LaunchServerAsync(config ServerLaunchConfig, lg *log.Logger) (*Server, util.ErrorLogger) {
	srv, server, e := makeServer(config, lg)
	if e.HaveErrors() {
		return nil, e
	}

	go server()

	return srv, e
}

func makeServer(config ServerLaunchConfig, lg *log.Logger) (*Server, func(), util.ErrorLogger) {
	var listener net.Listener
	var err error
	var errorLogger util.ErrorLogger
	var rpcPort int
	if config.Port == 0 {
		if listener, err = net.Listen("tcp", ":0"); err != nil {
			errorLogger.Error(err)
			return nil, nil, errorLogger
		}
		rpcPort = listener.Addr().(*net.TCPAddr).Port
	} else if listener, err = net.Listen("tcp", ":"+strconv.Itoa(config.Port)); err == nil {
		rpcPort = config.Port
	} else {
		errorLogger.Error(err)
		return nil, nil, errorLogger
	}

	registry := dref.New(lg)
	declareSlots(registry, &errorLogger)
	if errorLogger.HaveErrors() {
		return nil, nil, errorLogger
	}

	if config.Callsign != "" {
		if err := registry.SetString(dref.CallsignSlot, config.Callsign); err != nil {
			errorLogger.Error(err)
		}
	}
	if err := registry.SetBool(dref.AvionicsPowerSlot, config.PowerOn); err != nil {
		errorLogger.Error(err)
	}

	events := hoppie.NewEventStream(lg)

	transport := config.Transport
	if transport == nil {
		transport = hoppie.MakeHTTPTransport(hoppie.DefaultServerURL, hoppie.DefaultRequestTimeout, lg)
	}

	bridge := hoppie.NewBridge(config.Bridge, transport, events, lg)
	session := NewSession(bridge, registry, events, lg)

	srv := &Server{
		lg:       lg,
		session:  session,
		registry: registry,
		events:   events,
		rpcPort:  rpcPort,
		listener: listener,
		done:     make(chan struct{}),
	}

	serverFunc := func() {
		server := rpc.NewServer()
		if err := server.RegisterName("Bridge", &dispatcher{s: srv}); err != nil {
			lg.Errorf("unable to register dispatcher: %v", err)
			os.Exit(1)
		}

		go session.Run(srv.done)

		srv.httpPort = launchHTTPServer(srv, config.HTTPPort)

		lg.Infof("Listening on %+v", listener)

		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-srv.done:
					return
				default:
					lg.Errorf("Accept error: %v", err)
					continue
				}
			}
			lg.Infof("%s: new connection", conn.RemoteAddr())

			if cc, err := util.MakeCompressedConn(util.MakeLoggingConn(conn, lg)); err != nil {
				lg.Errorf("MakeCompressedConn: %v", err)
			} else {
				codec := util.MakeMessagepackServerCodec(cc, lg)
				codec = util.MakeLoggingServerCodec(conn.RemoteAddr().String(), codec, lg)
				go server.ServeCodec(codec)
			}
		}
	}

	return srv, serverFunc, errorLogger
}
