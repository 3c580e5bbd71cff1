// hoppie/codec.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hoppie

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mmp/hoppiebridge/util"
)

///////////////////////////////////////////////////////////////////////////
// Host boundary records

// OutboundRecord is the flat encoding of a send request on the host
// boundary; the bridge fills in logon and sender at dispatch time.
type OutboundRecord struct {
	To     string `json:"to"`
	Type   string `json:"type"`
	Packet string `json:"packet"`
}

// InboundRecord wraps the raw server response line for the legacy
// poll-queue slot.
type InboundRecord struct {
	Response string `json:"response"`
}

func DecodeOutboundRecord(s string) (OutboundRecord, error) {
	b := []byte(s)
	if dups := util.FindDuplicateJSONKeys(b); len(dups) > 0 {
		return OutboundRecord{}, MalformedMessageError{Err: "duplicate record keys: " + strings.Join(dups, ", ")}
	}

	var r OutboundRecord
	if err := util.UnmarshalJSONBytes(b, &r); err != nil {
		return OutboundRecord{}, MalformedMessageError{Err: err.Error()}
	}
	if r.To == "" {
		return OutboundRecord{}, MalformedMessageError{Err: ErrMissingRecipient.Error()}
	}
	if !MessageType(r.Type).Valid() {
		return OutboundRecord{}, MalformedMessageError{Err: fmt.Sprintf("%q: %s", r.Type, ErrInvalidMessageType)}
	}
	return r, nil
}

func (r OutboundRecord) Encode() string {
	b, _ := json.Marshal(r)
	return string(b)
}

// Message returns the outbound message for the record with the session's
// logon and callsign filled in.
func (r OutboundRecord) Message(logon, from string) OutboundMessage {
	return OutboundMessage{
		Logon:  logon,
		From:   from,
		To:     r.To,
		Type:   MessageType(r.Type),
		Packet: r.Packet,
	}
}

func (r InboundRecord) Encode() string {
	b, _ := json.Marshal(r)
	return string(b)
}

///////////////////////////////////////////////////////////////////////////
// Wire format

// WireMessage is one brace-delimited {from type {packet}} group from a
// server response payload.
type WireMessage struct {
	From   string
	Type   string
	Packet string
}

// ParseRejection reports whether the response line is a rejection from
// the server rather than a success, returning the reason if so. Anything
// that doesn't start with "ok" counts as a rejection.
func ParseRejection(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(t, "error"); ok {
		rest = strings.TrimSpace(rest)
		if reason, _, err := cutBracedGroup(rest); err == nil {
			return reason, true
		}
		return rest, true
	}
	if t != "ok" && !strings.HasPrefix(t, "ok ") && !strings.HasPrefix(t, "ok\t") && !strings.HasPrefix(t, "ok{") {
		return t, true
	}
	return "", false
}

// ParsePayload parses an "ok ..." response line into its message groups.
// A bare "ok" yields no messages; each group must have the form
// {from type {packet}}, where the packet braces may be omitted for
// messages that carry no content.
func ParsePayload(text string) ([]WireMessage, error) {
	t := strings.TrimSpace(text)
	rest, ok := strings.CutPrefix(t, "ok")
	if !ok {
		return nil, MalformedMessageError{Err: "response does not begin with ok: " + truncate(text)}
	}

	var msgs []WireMessage
	rest = strings.TrimSpace(rest)
	for rest != "" {
		var m WireMessage
		var err error
		if m, rest, err = parseMessageGroup(rest); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
		rest = strings.TrimSpace(rest)
	}
	return msgs, nil
}

// parseMessageGroup parses one message group at the start of s and
// returns the remainder of s after it.
func parseMessageGroup(s string) (WireMessage, string, error) {
	var m WireMessage

	group, rest, err := cutBracedGroup(s)
	if err != nil {
		return m, s, err
	}

	from, r, ok := strings.Cut(strings.TrimSpace(group), " ")
	if from == "" {
		return m, s, MalformedMessageError{Err: "missing message sender: " + truncate(group)}
	}
	if !ok {
		return m, s, MalformedMessageError{Err: "missing message type: " + truncate(group)}
	}
	m.From = from

	r = strings.TrimSpace(r)
	ty, r, _ := cutToken(r)
	if ty == "" {
		return m, s, MalformedMessageError{Err: "missing message type: " + truncate(group)}
	}
	m.Type = ty

	r = strings.TrimSpace(r)
	if r != "" {
		packet, r2, err := cutBracedGroup(r)
		if err != nil {
			return m, s, MalformedMessageError{Err: "malformed message packet: " + truncate(group)}
		}
		if strings.TrimSpace(r2) != "" {
			return m, s, MalformedMessageError{Err: "trailing junk after packet: " + truncate(group)}
		}
		m.Packet = packet
	}

	return m, rest, nil
}

// cutBracedGroup returns the contents of the brace-balanced group at the
// start of s and the remainder after its closing brace.
func cutBracedGroup(s string) (string, string, error) {
	if s == "" || s[0] != '{' {
		return "", s, MalformedMessageError{Err: "expected {: " + truncate(s)}
	}

	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", s, MalformedMessageError{Err: "unterminated group: " + truncate(s)}
}

// cutToken splits off the leading token up to a space or an opening
// brace; unlike strings.Cut it doesn't require the separator to exist.
func cutToken(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '{' {
			return s[:i], s[i:], true
		}
	}
	return s, "", false
}

func truncate(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
