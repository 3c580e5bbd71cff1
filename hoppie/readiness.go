// hoppie/readiness.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hoppie

// readiness derives the single operational flag the host sees: power on,
// callsign configured, and at least one successful poll. Loss of power or
// callsign revokes it immediately; by default a later poll failure does
// not, since the link itself recovers on the next poll.
type readiness struct {
	ready               bool
	revokeOnPollFailure bool
}

// Recompute updates the flag from the current inputs and reports whether
// it changed.
func (r *readiness) Recompute(powerOn, callsignSet bool, p *pollScheduler) bool {
	polled := p.succeededOnce
	if r.revokeOnPollFailure {
		polled = p.state.LastPollSucceeded
	}

	ready := powerOn && callsignSet && polled
	changed := ready != r.ready
	r.ready = ready
	return changed
}

func (r *readiness) Ready() bool {
	return r.ready
}
