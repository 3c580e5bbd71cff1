// hoppie/inbox.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hoppie

// Inbox is the single-slot mailbox for the most recent inbound message.
// A new arrival overwrites any unread prior value; only an explicit clear
// from the host empties it. This matches the host boundary, which has one
// set of receive slots, not a queue.
type Inbox struct {
	current InboundMessage
	rawLine string // the wire line the current message came from
	have    bool
}

// RoutePoll decodes a poll response payload and returns the messages it
// carried, in delivery order; each is published to the slot in turn so
// the slot ends up holding the last one.
func (ib *Inbox) RoutePoll(raw string) ([]InboundMessage, error) {
	wire, err := ParsePayload(raw)
	if err != nil {
		return nil, err
	}

	var msgs []InboundMessage
	for _, wm := range wire {
		m := InboundMessage{
			Origin: PollOrigin,
			From:   wm.From,
			Type:   wm.Type,
			Packet: wm.Packet,
		}
		ib.publish(m, raw)
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// RouteResponse decodes the direct response to an answer-expecting send.
// The sender and type of the published message come from the request the
// response answers, since the server labels direct responses with its own
// tokens rather than the station's.
func (ib *Inbox) RouteResponse(raw string, req OutboundMessage) ([]InboundMessage, error) {
	wire, err := ParsePayload(raw)
	if err != nil {
		return nil, err
	}

	var msgs []InboundMessage
	for _, wm := range wire {
		m := InboundMessage{
			Origin: ResponseOrigin,
			From:   req.To,
			Type:   string(req.Type),
			Packet: wm.Packet,
		}
		ib.publish(m, raw)
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (ib *Inbox) publish(m InboundMessage, raw string) {
	ib.current = m
	ib.rawLine = raw
	ib.have = true
}

// Clear resets the slot; a pure state transition with no network effect.
func (ib *Inbox) Clear() {
	ib.current = InboundMessage{}
	ib.rawLine = ""
	ib.have = false
}

func (ib *Inbox) Latest() (InboundMessage, bool) {
	return ib.current, ib.have
}

// Record returns the legacy slot encoding of the current message's raw
// response line, or the empty string if the slot is clear.
func (ib *Inbox) Record() string {
	if !ib.have {
		return ""
	}
	return InboundRecord{Response: ib.rawLine}.Encode()
}
