// dref/names.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package dref

// The slot names the session declares. The legacy send_queue and
// poll_queue slots carry whole JSON records for hosts that predate the
// structured fields; both forms stay in sync.
const (
	SendQueueSlot  = "hoppiebridge/send_queue"
	SendToSlot     = "hoppiebridge/send/to"
	SendTypeSlot   = "hoppiebridge/send/type"
	SendPacketSlot = "hoppiebridge/send/packet"
	SendSubmitSlot = "hoppiebridge/send/submit"

	PollQueueSlot  = "hoppiebridge/poll_queue"
	RecvOriginSlot = "hoppiebridge/recv/origin"
	RecvFromSlot   = "hoppiebridge/recv/from"
	RecvTypeSlot   = "hoppiebridge/recv/type"
	RecvPacketSlot = "hoppiebridge/recv/packet"
	ClearInboxSlot = "hoppiebridge/clear_inbox"

	CallsignSlot = "hoppiebridge/callsign"
	ReadySlot    = "hoppiebridge/ready"
	ErrorSlot    = "hoppiebridge/error"

	// The simulator's avionics bus powers the bridge on and off.
	AvionicsPowerSlot = "sim/cockpit/electrical/avionics_on"
)
