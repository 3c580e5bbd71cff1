// hoppie/capture_test.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hoppie

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestCaptureReplay(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "session.hbsess")

	cap, err := NewSessionCapture(fn)
	if err != nil {
		t.Fatalf("creating capture: %v", err)
	}

	inner := &testTransport{}
	inner.setScript(func(m OutboundMessage) (string, error) {
		switch m.Type {
		case PollMessageType:
			return "ok {D-ATIS telex {EDDM ATIS A}}", nil
		case TelexMessageType:
			return "", TransportError{Kind: TransportTimeout, Err: "deadline exceeded"}
		default:
			return "ok", nil
		}
	})
	tr := MakeCaptureTransport(inner, cap)

	poll := OutboundMessage{Logon: "s3cr3t", From: "N123AB", To: "N123AB", Type: PollMessageType}
	if raw, err := tr.Exchange(poll); err != nil || raw != "ok {D-ATIS telex {EDDM ATIS A}}" {
		t.Fatalf("poll exchange: %q, %v", raw, err)
	}
	telex := OutboundMessage{Logon: "s3cr3t", From: "N123AB", To: "EDDF", Type: TelexMessageType, Packet: "HELLO"}
	if _, err := tr.Exchange(telex); err == nil {
		t.Fatalf("telex exchange should have failed")
	}
	progress := OutboundMessage{Logon: "s3cr3t", From: "N123AB", To: "EDDF", Type: ProgressMessageType}
	if raw, err := tr.Exchange(progress); err != nil || raw != "ok" {
		t.Fatalf("progress exchange: %q, %v", raw, err)
	}

	if err := cap.Close(); err != nil {
		t.Fatalf("closing capture: %v", err)
	}

	// Replay the session with pacing disabled; each channel gets its own
	// recorded exchanges back in order.
	rt, err := MakeReplayTransport(fn, 0)
	if err != nil {
		t.Fatalf("opening replay: %v", err)
	}

	if raw, err := rt.Exchange(poll); err != nil || raw != "ok {D-ATIS telex {EDDM ATIS A}}" {
		t.Errorf("replayed poll: %q, %v", raw, err)
	}

	_, err = rt.Exchange(telex)
	var te TransportError
	if !errors.As(err, &te) {
		t.Fatalf("replayed telex: got %v, expected transport error", err)
	}
	if te.Kind != TransportTimeout || te.Err != "deadline exceeded" {
		t.Errorf("replayed error changed: %+v", te)
	}

	if raw, err := rt.Exchange(progress); err != nil || raw != "ok" {
		t.Errorf("replayed progress: %q, %v", raw, err)
	}

	// The recording is exhausted now on both channels.
	if _, err := rt.Exchange(poll); err == nil {
		t.Errorf("expected exhaustion error on poll channel")
	}
	if _, err := rt.Exchange(telex); err == nil {
		t.Errorf("expected exhaustion error on send channel")
	}
}

func TestReplayDrivesBridge(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "session.hbsess")

	cap, err := NewSessionCapture(fn)
	if err != nil {
		t.Fatalf("creating capture: %v", err)
	}
	inner := &testTransport{}
	inner.setScript(func(m OutboundMessage) (string, error) {
		if m.Type == PollMessageType {
			return "ok {EDDF cpdlc {UNABLE}}", nil
		}
		return "ok", nil
	})
	tr := MakeCaptureTransport(inner, cap)
	if _, err := tr.Exchange(OutboundMessage{Type: PollMessageType}); err != nil {
		t.Fatalf("capture exchange: %v", err)
	}
	if err := cap.Close(); err != nil {
		t.Fatalf("closing capture: %v", err)
	}

	rt, err := MakeReplayTransport(fn, 0)
	if err != nil {
		t.Fatalf("opening replay: %v", err)
	}
	b := NewBridge(Config{Logon: "s3cr3t"}, rt, nil, nil)
	b.SetPower(true)
	b.SetCallsign("N123AB")
	step(b, time.Now())

	s := b.Snapshot()
	if !s.HaveMessage || s.Latest.From != "EDDF" || s.Latest.Packet != "UNABLE" {
		t.Errorf("replayed poll not delivered: %+v", s.Latest)
	}
}
