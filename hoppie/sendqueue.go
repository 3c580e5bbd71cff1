// hoppie/sendqueue.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hoppie

import (
	"time"
)

// SendQueue holds outbound messages submitted by the host until the
// scheduling loop dispatches them, at most one per drain interval, in
// submission order. It is only touched from the bridge's update thread.
type SendQueue struct {
	messages     []OutboundMessage
	interval     time.Duration
	lastDispatch time.Time
}

func MakeSendQueue(interval time.Duration) *SendQueue {
	return &SendQueue{interval: interval}
}

func (q *SendQueue) Enqueue(m OutboundMessage) {
	q.messages = append(q.messages, m)
}

// PopDue returns the next message if one is queued and the drain interval
// has elapsed since the previous dispatch; the caller must then actually
// dispatch it.
func (q *SendQueue) PopDue(now time.Time) (OutboundMessage, bool) {
	if len(q.messages) == 0 || now.Sub(q.lastDispatch) < q.interval {
		return OutboundMessage{}, false
	}

	m := q.messages[0]
	q.messages = q.messages[1:]
	q.lastDispatch = now
	return m, true
}

func (q *SendQueue) Len() int {
	return len(q.messages)
}
