// hoppie/messages.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hoppie

import (
	"fmt"
	"log/slog"
)

// MessageType is one of the message types understood by the ACARS
// network; the values are the strings that go out on the wire.
type MessageType string

const (
	ProgressMessageType        MessageType = "progress"
	CPDLCMessageType           MessageType = "cpdlc"
	TelexMessageType           MessageType = "telex"
	PingMessageType            MessageType = "ping"
	InfoRequestMessageType     MessageType = "inforeq"
	PositionRequestMessageType MessageType = "posreq"
	PositionMessageType        MessageType = "position"
	DataRequestMessageType     MessageType = "datareq"
	PollMessageType            MessageType = "poll"
	PeekMessageType            MessageType = "peek"
)

var messageTypeDescription = map[MessageType]string{
	ProgressMessageType:        "progress report",
	CPDLCMessageType:           "controller-pilot data link",
	TelexMessageType:           "telex",
	PingMessageType:            "ping",
	InfoRequestMessageType:     "information request",
	PositionRequestMessageType: "position request",
	PositionMessageType:        "position report",
	DataRequestMessageType:     "data request",
	PollMessageType:            "poll",
	PeekMessageType:            "peek",
}

// answerExpectingTypes holds the types where the station addressed is
// expected to send something back; dispatching one of these switches the
// poll scheduler to the fast cadence until the reply shows up.
var answerExpectingTypes = map[MessageType]interface{}{
	CPDLCMessageType:           nil,
	InfoRequestMessageType:     nil,
	PositionRequestMessageType: nil,
	DataRequestMessageType:     nil,
	TelexMessageType:           nil,
	PingMessageType:            nil,
}

func (t MessageType) Valid() bool {
	_, ok := messageTypeDescription[t]
	return ok
}

func (t MessageType) Description() string {
	if d, ok := messageTypeDescription[t]; ok {
		return d
	}
	return string(t)
}

func (t MessageType) ExpectsAnswer() bool {
	_, ok := answerExpectingTypes[t]
	return ok
}

// OutboundMessage is a fully-specified request to the ACARS server. It is
// created when the host submits a send (or by the poll scheduler for
// polls), handed to the transport exactly once, and never mutated.
type OutboundMessage struct {
	Logon  string
	From   string
	To     string
	Type   MessageType
	Packet string
}

// Validate checks the parts of the message that come from the host
// record; logon and from are bridge state and are checked at dispatch.
func (m OutboundMessage) Validate() error {
	if m.To == "" {
		return ErrMissingRecipient
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%q: %w", m.Type, ErrInvalidMessageType)
	}
	return nil
}

func (m OutboundMessage) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("from", m.From),
		slog.String("to", m.To),
		slog.String("type", string(m.Type)),
		slog.String("packet", m.Packet))
}

// Origin distinguishes how an inbound message reached us.
type Origin int

const (
	// PollOrigin marks content that arrived piggybacked on a scheduled poll.
	PollOrigin Origin = iota
	// ResponseOrigin marks a direct reply to an answer-expecting send.
	ResponseOrigin
)

func (o Origin) String() string {
	return [...]string{"poll", "response"}[o]
}

// InboundMessage is a decoded message from the ACARS server, either
// delivered by a poll or returned directly in response to a send.
type InboundMessage struct {
	Origin Origin
	From   string
	Type   string
	Packet string
}

func (m InboundMessage) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("origin", m.Origin.String()),
		slog.String("from", m.From),
		slog.String("type", m.Type),
		slog.String("packet", m.Packet))
}
