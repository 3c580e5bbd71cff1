// cmd/hoppieclient/watch.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmp/hoppiebridge/client"
	"github.com/mmp/hoppiebridge/hoppie"
	"github.com/mmp/hoppiebridge/server"

	"github.com/gdamore/tcell/v2"
)

const watchEventHistory = 256

type watchState struct {
	update *server.StateUpdate
	events []hoppie.Event
	notice string
	err    error
}

func (ws *watchState) refresh(c *client.Client) {
	update, err := c.GetStateUpdate()
	if err != nil {
		ws.err = err
		return
	}
	ws.err = nil
	ws.update = update
	ws.events = append(ws.events, update.Events...)
	if n := len(ws.events); n > watchEventHistory {
		ws.events = ws.events[n-watchEventHistory:]
	}
}

// runWatch is a live status display: the bridge state at the top, the
// event log below. 'c' clears the inbox, 'e' takes the error slot, 'q'
// quits.
func runWatch(c *client.Client) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	screen.SetStyle(tcell.StyleDefault.
		Background(tcell.ColorReset).
		Foreground(tcell.ColorReset))

	// Wake the event loop once a second to refresh from the server.
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				_ = screen.PostEvent(tcell.NewEventInterrupt(nil))
			}
		}
	}()

	var state watchState
	state.refresh(c)

	for {
		renderWatch(screen, c, &state)
		screen.Show()

		switch ev := screen.PollEvent().(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
				(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
				return nil
			}
			if ev.Key() == tcell.KeyRune && ev.Rune() == 'c' {
				if err := c.ClearInbox(); err != nil {
					state.notice = err.Error()
				} else {
					state.notice = "inbox cleared"
				}
			}
			if ev.Key() == tcell.KeyRune && ev.Rune() == 'e' {
				if e, err := c.ReadError(); err != nil {
					state.notice = err.Error()
				} else if e == "" {
					state.notice = "no error"
				} else {
					state.notice = "error: " + e
				}
			}
		case *tcell.EventInterrupt:
			state.refresh(c)
		case *tcell.EventResize:
			screen.Sync()
		}
	}
}

func renderWatch(screen tcell.Screen, c *client.Client, state *watchState) {
	screen.Clear()
	width, height := screen.Size()

	styleDefault := tcell.StyleDefault
	styleHeader := tcell.StyleDefault.Bold(true).Reverse(true)
	styleLabel := tcell.StyleDefault.Foreground(tcell.ColorTeal)
	styleError := tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleHelp := tcell.StyleDefault.Foreground(tcell.ColorGray)

	title := " hoppie watch - " + c.Hostname() + " "
	help := " [c]=Clear inbox [e]=Read error [q]=Quit "
	drawText(screen, 0, 0, width, styleHeader,
		title+strings.Repeat(" ", max(0, width-len(title)-len(help)))+help)

	if state.err != nil {
		drawText(screen, 0, 2, width, styleError, " "+state.err.Error())
		return
	}
	if state.update == nil {
		drawText(screen, 0, 2, width, styleDefault, " waiting for state...")
		return
	}
	st := state.update.State

	y := 2
	line := func(label, value string, style tcell.Style) {
		drawText(screen, 1, y, 10, styleLabel, label)
		drawText(screen, 12, y, width-12, style, value)
		y++
	}

	callsign := st.Callsign
	if callsign == "" {
		callsign = "(unset)"
	}
	power := "off"
	if st.PowerOn {
		power = "on"
	}
	ready := "NOT READY"
	readyStyle := styleError
	if st.Ready {
		ready, readyStyle = "ready", styleDefault.Foreground(tcell.ColorGreen)
	}
	line("station", fmt.Sprintf("%s  power %s", callsign, power), styleDefault)
	line("link", ready, readyStyle)

	cadence := st.Poll.Cadence.String()
	if st.Poll.PendingAnswer {
		cadence += "  (answer pending)"
	}
	lastPoll := "never"
	if !st.Poll.LastPollAt.IsZero() {
		lastPoll = time.Since(st.Poll.LastPollAt).Round(time.Second).String() + " ago"
		if !st.Poll.LastPollSucceeded {
			lastPoll += " (failed)"
		}
	}
	line("polling", fmt.Sprintf("every %s, last %s", cadence, lastPoll), styleDefault)
	line("traffic", fmt.Sprintf("queued %d, sent %d, received %d, %d send failures",
		st.QueueLen, st.Stats.MessagesSent, st.Stats.MessagesReceived, st.Stats.SendFailures), styleDefault)

	if st.HaveMessage {
		msg := fmt.Sprintf("[%s] %s %s", st.Latest.Origin, st.Latest.From, st.Latest.Type)
		if st.Latest.Packet != "" {
			msg += " {" + st.Latest.Packet + "}"
		}
		line("latest", msg, styleDefault.Bold(true))
	}
	if st.LastError != "" {
		line("error", st.LastError, styleError)
	}
	if state.notice != "" {
		line("", state.notice, styleHelp)
	}

	y++
	drawText(screen, 0, y, width, styleLabel, " events")
	y++

	// Show the tail of the event log, newest at the bottom.
	rows := height - y
	events := state.events
	if rows > 0 && len(events) > rows {
		events = events[len(events)-rows:]
	}
	for _, ev := range events {
		drawText(screen, 1, y, width-1, styleDefault,
			ev.Time.Format("15:04:05")+" "+ev.String())
		y++
	}
}

func drawText(screen tcell.Screen, x, y, maxWidth int, style tcell.Style, text string) {
	col := 0
	for _, r := range text {
		if col >= maxWidth {
			break
		}
		screen.SetContent(x+col, y, r, nil, style)
		col++
	}
	// Fill remaining space
	for col < maxWidth {
		screen.SetContent(x+col, y, ' ', nil, style)
		col++
	}
}
