// hoppie/codec_test.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hoppie

import (
	"strings"
	"testing"
)

func TestParsePayloadEmpty(t *testing.T) {
	for _, text := range []string{"ok", "ok ", "  ok  "} {
		msgs, err := ParsePayload(text)
		if err != nil {
			t.Errorf("%q: unexpected error %v", text, err)
		}
		if len(msgs) != 0 {
			t.Errorf("%q: got %d messages, expected none", text, len(msgs))
		}
	}
}

func TestParsePayloadMessages(t *testing.T) {
	msgs, err := ParsePayload("ok {D-ATIS telex {EDDM ATIS A 221650Z}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, expected 1", len(msgs))
	}
	if msgs[0].From != "D-ATIS" || msgs[0].Type != "telex" || msgs[0].Packet != "EDDM ATIS A 221650Z" {
		t.Errorf("got %+v", msgs[0])
	}

	// Multiple groups come back in delivery order.
	msgs, err = ParsePayload("ok {STN1 telex {FIRST}} {STN2 cpdlc {SECOND}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, expected 2", len(msgs))
	}
	if msgs[0].From != "STN1" || msgs[0].Packet != "FIRST" {
		t.Errorf("first message: got %+v", msgs[0])
	}
	if msgs[1].From != "STN2" || msgs[1].Type != "cpdlc" || msgs[1].Packet != "SECOND" {
		t.Errorf("second message: got %+v", msgs[1])
	}
}

func TestParsePayloadNestedBraces(t *testing.T) {
	// CPDLC packets carry their own braced fields; they must survive
	// intact.
	msgs, err := ParsePayload("ok {SERVER cpdlc {/data2/1//Y/REQUEST {LOGON}}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, expected 1", len(msgs))
	}
	if msgs[0].Packet != "/data2/1//Y/REQUEST {LOGON}" {
		t.Errorf("packet mangled: %q", msgs[0].Packet)
	}
}

func TestParsePayloadNoPacket(t *testing.T) {
	msgs, err := ParsePayload("ok {EDDF ping}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].From != "EDDF" || msgs[0].Type != "ping" || msgs[0].Packet != "" {
		t.Errorf("got %+v", msgs)
	}
}

func TestParsePayloadMalformed(t *testing.T) {
	for _, text := range []string{
		"error {illegal logon code}",
		"ok {EDDF telex {HI}",        // unterminated
		"ok {EDDF}",                  // no type
		"ok { telex {HI}}",           // no sender
		"ok junk {EDDF telex {HI}}",  // junk between groups
		"ok {EDDF telex {HI} extra}", // junk after packet
	} {
		if _, err := ParsePayload(text); err == nil {
			t.Errorf("%q: expected error", text)
		}
	}
}

func TestParseRejection(t *testing.T) {
	if reason, rejected := ParseRejection("error {illegal logon code}"); !rejected {
		t.Errorf("rejection not detected")
	} else if reason != "illegal logon code" {
		t.Errorf("got reason %q", reason)
	}

	if reason, rejected := ParseRejection("<html>server busy</html>"); !rejected {
		t.Errorf("rejection not detected")
	} else if !strings.Contains(reason, "server busy") {
		t.Errorf("got reason %q", reason)
	}

	for _, text := range []string{"ok", "ok {EDDF telex {HI}}"} {
		if reason, rejected := ParseRejection(text); rejected {
			t.Errorf("%q: spuriously rejected with %q", text, reason)
		}
	}
}

func TestOutboundRecordRoundTrip(t *testing.T) {
	canonical := `{"to":"EDDF","type":"telex","packet":"REQUEST ATIS"}`
	r, err := DecodeOutboundRecord(canonical)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Encode() != canonical {
		t.Errorf("round trip changed record: %q", r.Encode())
	}

	// Field order on input doesn't matter; the encoding is canonical.
	r, err = DecodeOutboundRecord(`{"packet":"REQUEST ATIS","to":"EDDF","type":"telex"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Encode() != canonical {
		t.Errorf("got %q, expected %q", r.Encode(), canonical)
	}
}

func TestDecodeOutboundRecordErrors(t *testing.T) {
	for _, s := range []string{
		`{"type":"telex","packet":"HI"}`,             // no recipient
		`{"to":"EDDF","type":"bogus","packet":"X"}`,  // unknown type
		`{"to":"EDDF","type":"telex","packet":"HI"`,  // truncated JSON
		`{"to":"EDDF","to":"EDDM","type":"telex"}`,   // duplicate key
		`{"to":"EDDF","type":"poll","type":"telex"}`, // duplicate key
	} {
		if _, err := DecodeOutboundRecord(s); err == nil {
			t.Errorf("%q: expected error", s)
		}
	}
}

func TestInboundRecordEncode(t *testing.T) {
	r := InboundRecord{Response: `ok {D-ATIS telex {EDDM ATIS A}}`}
	enc := r.Encode()
	if enc != `{"response":"ok {D-ATIS telex {EDDM ATIS A}}"}` {
		t.Errorf("got %q", enc)
	}
}
