// cmd/hoppieclient/main.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

// Command-line client for a running bridge server: send messages, poke
// the registry slots, and watch traffic interactively.

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mmp/hoppiebridge/client"
	"github.com/mmp/hoppiebridge/dref"
	"github.com/mmp/hoppiebridge/log"
	"github.com/mmp/hoppiebridge/server"

	"github.com/goforj/godump"
	"github.com/pkg/browser"
)

var (
	serverAddress = flag.String("server", "", "bridge server address; port defaults to the standard one")
	logLevel      = flag.String("loglevel", "warn", "logging level: debug, info, warn, error")
	logDir        = flag.String("logdir", "", "log file directory")
	clientName    = flag.String("name", "hoppieclient", "client name reported to the server")

	setCallsign = flag.String("callsign", "", "set the station callsign")
	setPower    = flag.String("power", "", "set avionics power: on or off")

	sendTo     = flag.String("to", "", "message recipient (with -packet)")
	sendType   = flag.String("type", "telex", "message type for -to/-packet")
	sendPacket = flag.String("packet", "", "message text")
	metar      = flag.String("metar", "", "request the METAR for the given station")
	atis       = flag.String("atis", "", "request the VATSIM ATIS for the given station")
	ping       = flag.String("ping", "", "ping a station, or \"all\"")

	clearInbox = flag.Bool("clear", false, "clear the received-message slots")
	readError  = flag.Bool("error", false, "read and clear the error slot")
	showState  = flag.Bool("state", false, "print a bridge state summary")
	dumpState  = flag.Bool("dump", false, "dump the full state structure")
	listSlots  = flag.Bool("slots", false, "list the registry slots and their values")
	setSlot    = flag.String("set", "", "write a slot, as name=value")

	watch      = flag.Bool("watch", false, "interactive status display")
	follow     = flag.Bool("events", false, "print events as they happen until interrupted")
	openStatus = flag.Bool("web", false, "open the server status page in a browser")
)

func main() {
	flag.Parse()

	lg := log.New(*logLevel, *logDir)
	defer lg.CatchAndReportCrash()

	c, err := client.Connect(*serverAddress, *clientName, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", *serverAddress, err)
		os.Exit(1)
	}
	defer c.Disconnect()

	fail := func(err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	acted := false

	if *setCallsign != "" {
		fail(c.SetCallsign(*setCallsign))
		acted = true
	}
	if *setPower != "" {
		switch *setPower {
		case "on":
			fail(c.SetPower(true))
		case "off":
			fail(c.SetPower(false))
		default:
			fail(fmt.Errorf("%s: -power wants \"on\" or \"off\"", *setPower))
		}
		acted = true
	}
	if *setSlot != "" {
		fail(writeSlot(c, *setSlot))
		acted = true
	}
	if *clearInbox {
		fail(c.ClearInbox())
		acted = true
	}

	if *metar != "" {
		fail(c.SubmitMessage("SERVER", "inforeq", "METAR "+strings.ToUpper(*metar)))
		acted = true
	}
	if *atis != "" {
		fail(c.SubmitMessage("SERVER", "inforeq", "VATATIS "+strings.ToUpper(*atis)))
		acted = true
	}
	if *ping != "" {
		fail(c.SubmitMessage(*ping, "ping", ""))
		acted = true
	}
	if *sendTo != "" || *sendPacket != "" {
		if *sendTo == "" {
			fail(fmt.Errorf("-packet needs a recipient; pass -to"))
		}
		fail(c.SubmitMessage(*sendTo, *sendType, *sendPacket))
		acted = true
	}

	if *readError {
		e, err := c.ReadError()
		fail(err)
		if e != "" {
			fmt.Printf("error: %s\n", e)
		} else {
			fmt.Println("no error")
		}
		acted = true
	}
	if *listSlots {
		slots, err := c.GetSlots()
		fail(err)
		printSlots(slots)
		acted = true
	}
	if *dumpState {
		update, err := c.GetStateUpdate()
		fail(err)
		godump.Dump(update)
		acted = true
	}
	if *openStatus {
		fail(openStatusPage(c))
		acted = true
	}
	if *follow {
		fail(followEvents(c))
		acted = true
	}
	if *watch {
		fail(runWatch(c))
		acted = true
	}

	// With no other action requested, print the state summary.
	if *showState || !acted {
		update, err := c.GetStateUpdate()
		fail(err)
		printState(update)
	}
}

// writeSlot parses a name=value argument and writes it with the type
// the server declared for that slot.
func writeSlot(c *client.Client, arg string) error {
	name, value, ok := strings.Cut(arg, "=")
	if !ok {
		return fmt.Errorf("%s: expected name=value", arg)
	}

	for _, s := range c.Slots() {
		if s.Name != name {
			continue
		}
		if s.Kind == dref.BoolKind {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("%s: %v", arg, err)
			}
			return c.SetBoolSlot(name, b)
		}
		return c.SetStringSlot(name, value)
	}
	return fmt.Errorf("%s: no such slot", name)
}

func printSlots(slots []dref.SlotValue) {
	w := 0
	for _, s := range slots {
		w = max(w, len(s.Name))
	}
	for _, s := range slots {
		rw := " "
		if s.Writable {
			rw = "w"
		}
		if s.Kind == dref.BoolKind {
			fmt.Printf("%-*s %s %v\n", w, s.Name, rw, s.Bool)
		} else {
			fmt.Printf("%-*s %s %q\n", w, s.Name, rw, s.String)
		}
	}
}

func printState(update *server.StateUpdate) {
	st := update.State

	onoff := "off"
	if st.PowerOn {
		onoff = "on"
	}
	fmt.Printf("callsign %q, power %s, ready %v\n", st.Callsign, onoff, st.Ready)

	cadence := st.Poll.Cadence.String()
	if st.Poll.PendingAnswer {
		cadence += " (answer pending)"
	}
	fmt.Printf("polling every %s", cadence)
	if !st.Poll.LastPollAt.IsZero() {
		ago := time.Since(st.Poll.LastPollAt).Round(time.Second)
		if st.Poll.LastPollSucceeded {
			fmt.Printf("; last poll %s ago", ago)
		} else {
			fmt.Printf("; last poll %s ago failed", ago)
		}
	}
	fmt.Println()

	fmt.Printf("queued %d, sent %d, received %d; %d polls (%d failed), %d send failures\n",
		st.QueueLen, st.Stats.MessagesSent, st.Stats.MessagesReceived,
		st.Stats.PollsCompleted, st.Stats.PollFailures, st.Stats.SendFailures)

	if st.HaveMessage {
		fmt.Printf("latest message: [%s] %s %s", st.Latest.Origin, st.Latest.From, st.Latest.Type)
		if st.Latest.Packet != "" {
			fmt.Printf(" {%s}", st.Latest.Packet)
		}
		fmt.Println()
	}
	if st.LastError != "" {
		fmt.Printf("last error: %s\n", st.LastError)
	}
	for _, ev := range update.Events {
		fmt.Printf("event: %s\n", ev.String())
	}
}

func followEvents(c *client.Client) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			return nil
		case <-ticker.C:
			update, err := c.GetStateUpdate()
			if err != nil {
				return err
			}
			for _, ev := range update.Events {
				fmt.Printf("%s %s\n", ev.Time.Format("15:04:05"), ev.String())
			}
		}
	}
}

func openStatusPage(c *client.Client) error {
	if c.HTTPPort() == 0 {
		return fmt.Errorf("server has no status page")
	}
	host, _, err := net.SplitHostPort(c.Hostname())
	if err != nil {
		host = c.Hostname()
	}
	return browser.OpenURL(fmt.Sprintf("http://%s/sup", net.JoinHostPort(host, strconv.Itoa(c.HTTPPort()))))
}
