// hoppie/poll.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hoppie

import (
	"log/slog"
	"time"
)

// Normal and fast poll cadences; fast applies while an answer-expecting
// send is outstanding.
const (
	DefaultPollInterval     = 65 * time.Second
	DefaultFastPollInterval = 20 * time.Second
)

// PollState is the externally-visible scheduling state; Snapshot exposes
// it and the status page displays it.
type PollState struct {
	Cadence           time.Duration
	PendingAnswer     bool
	LastPollAt        time.Time
	LastPollSucceeded bool
}

func (s PollState) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("cadence", s.Cadence),
		slog.Bool("pending_answer", s.PendingAnswer),
		slog.Time("last_poll_at", s.LastPollAt),
		slog.Bool("last_poll_succeeded", s.LastPollSucceeded))
}

// pollScheduler decides when the next poll goes out. The cadence is
// recomputed whenever pendingAnswer changes, not just at tick boundaries,
// so a send at the normal cadence re-arms the next poll to the fast one
// before it fires.
type pollScheduler struct {
	state         PollState
	normal, fast  time.Duration
	answerTimeout time.Duration // zero waits indefinitely
	pendingSince  time.Time
	succeededOnce bool
}

func makePollScheduler(normal, fast, answerTimeout time.Duration) *pollScheduler {
	return &pollScheduler{
		state:         PollState{Cadence: normal},
		normal:        normal,
		fast:          fast,
		answerTimeout: answerTimeout,
	}
}

func (p *pollScheduler) Due(now time.Time) bool {
	return now.Sub(p.state.LastPollAt) >= p.state.Cadence
}

func (p *pollScheduler) MarkPolled(now time.Time) {
	p.state.LastPollAt = now
}

func (p *pollScheduler) PollCompleted(ok bool) {
	p.state.LastPollSucceeded = ok
	if ok {
		p.succeededOnce = true
	}
}

func (p *pollScheduler) SetPendingAnswer(now time.Time) {
	p.state.PendingAnswer = true
	p.pendingSince = now
	p.recompute()
}

func (p *pollScheduler) ClearPendingAnswer() {
	p.state.PendingAnswer = false
	p.recompute()
}

// ExpirePendingAnswer clears the pending-answer flag if the configured
// answer timeout has elapsed without a reply; it reports whether it did.
func (p *pollScheduler) ExpirePendingAnswer(now time.Time) bool {
	if p.answerTimeout == 0 || !p.state.PendingAnswer {
		return false
	}
	if now.Sub(p.pendingSince) < p.answerTimeout {
		return false
	}
	p.ClearPendingAnswer()
	return true
}

func (p *pollScheduler) recompute() {
	if p.state.PendingAnswer {
		p.state.Cadence = p.fast
	} else {
		p.state.Cadence = p.normal
	}
}
