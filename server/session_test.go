// server/session_test.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmp/hoppiebridge/dref"
	"github.com/mmp/hoppiebridge/hoppie"
	"github.com/mmp/hoppiebridge/util"
)

type testTransport struct {
	mu   sync.Mutex
	reqs []hoppie.OutboundMessage
	fn   func(hoppie.OutboundMessage) (string, error)
}

func (t *testTransport) Exchange(m hoppie.OutboundMessage) (string, error) {
	t.mu.Lock()
	t.reqs = append(t.reqs, m)
	fn := t.fn
	t.mu.Unlock()

	if fn != nil {
		return fn(m)
	}
	return "ok", nil
}

func (t *testTransport) requests() []hoppie.OutboundMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]hoppie.OutboundMessage(nil), t.reqs...)
}

type sessionTestEnv struct {
	session   *Session
	registry  *dref.Registry
	events    *hoppie.EventStream
	transport *testTransport
}

func makeTestSession(t *testing.T) *sessionTestEnv {
	t.Helper()

	registry := dref.New(nil)
	var e util.ErrorLogger
	declareSlots(registry, &e)
	if e.HaveErrors() {
		t.Fatalf("slot declaration failed: %s", e.String())
	}

	events := hoppie.NewEventStream(nil)
	t.Cleanup(events.Destroy)

	tr := &testTransport{}
	bridge := hoppie.NewBridge(hoppie.Config{Logon: "s3cr3t"}, tr, events, nil)

	return &sessionTestEnv{
		session:   NewSession(bridge, registry, events, nil),
		registry:  registry,
		events:    events,
		transport: tr,
	}
}

// step runs a tick, waits for any in-flight exchanges, then ticks again
// so their outcome is published to the slots.
func (env *sessionTestEnv) step(t *testing.T, now time.Time) {
	t.Helper()
	env.session.Tick(now)
	env.session.bridge.Sync(time.Second, now)
	env.session.Tick(now)
}

func (env *sessionTestEnv) mustString(t *testing.T, name string) string {
	t.Helper()
	s, err := env.registry.String(name)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return s
}

func (env *sessionTestEnv) mustBool(t *testing.T, name string) bool {
	t.Helper()
	b, err := env.registry.Bool(name)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return b
}

func TestSessionSlotPump(t *testing.T) {
	env := makeTestSession(t)
	env.transport.fn = func(m hoppie.OutboundMessage) (string, error) {
		if m.Type == hoppie.PollMessageType {
			return "ok {EDDF telex {HELLO THERE}}", nil
		}
		return "ok", nil
	}

	if err := env.registry.WriteString(dref.CallsignSlot, "N123AB"); err != nil {
		t.Fatal(err)
	}
	if err := env.registry.WriteBool(dref.AvionicsPowerSlot, true); err != nil {
		t.Fatal(err)
	}

	env.step(t, time.Now())

	if got := env.mustString(t, dref.RecvFromSlot); got != "EDDF" {
		t.Errorf("recv from: got %q, want EDDF", got)
	}
	if got := env.mustString(t, dref.RecvTypeSlot); got != "telex" {
		t.Errorf("recv type: got %q, want telex", got)
	}
	if got := env.mustString(t, dref.RecvPacketSlot); got != "HELLO THERE" {
		t.Errorf("recv packet: got %q", got)
	}
	if !env.mustBool(t, dref.ReadySlot) {
		t.Errorf("ready slot not set after successful poll")
	}
	if rec := env.mustString(t, dref.PollQueueSlot); !strings.Contains(rec, "HELLO THERE") {
		t.Errorf("poll queue record %q missing message text", rec)
	}

	// The host trigger clears every received-message slot.
	if err := env.registry.WriteBool(dref.ClearInboxSlot, true); err != nil {
		t.Fatal(err)
	}
	env.step(t, time.Now())

	if got := env.mustString(t, dref.RecvFromSlot); got != "" {
		t.Errorf("recv from after clear: got %q, want empty", got)
	}
	if got := env.mustString(t, dref.PollQueueSlot); got != "" {
		t.Errorf("poll queue after clear: got %q, want empty", got)
	}
	if !env.mustBool(t, dref.ReadySlot) {
		t.Errorf("clearing the inbox should not revoke readiness")
	}
}

func TestSessionStructuredSend(t *testing.T) {
	env := makeTestSession(t)

	for name, value := range map[string]string{
		dref.CallsignSlot:   "N123AB",
		dref.SendToSlot:     "EDDF",
		dref.SendTypeSlot:   "telex",
		dref.SendPacketSlot: "REQUEST ATIS",
	} {
		if err := env.registry.WriteString(name, value); err != nil {
			t.Fatal(err)
		}
	}
	if err := env.registry.WriteBool(dref.SendSubmitSlot, true); err != nil {
		t.Fatal(err)
	}

	env.step(t, time.Now())

	reqs := env.transport.requests()
	var sent []hoppie.OutboundMessage
	for _, m := range reqs {
		if m.Type != hoppie.PollMessageType {
			sent = append(sent, m)
		}
	}
	if len(sent) != 1 {
		t.Fatalf("got %d non-poll requests, want 1", len(sent))
	}
	if sent[0].To != "EDDF" || sent[0].Type != hoppie.TelexMessageType || sent[0].Packet != "REQUEST ATIS" {
		t.Errorf("unexpected request %+v", sent[0])
	}
	if sent[0].From != "N123AB" || sent[0].Logon != "s3cr3t" {
		t.Errorf("credentials not filled in: %+v", sent[0])
	}

	if got := env.session.State().Stats.MessagesSent; got != 1 {
		t.Errorf("messages sent: got %d, want 1", got)
	}

	// The trigger resets; another tick must not send again.
	env.step(t, time.Now())
	if got := env.session.State().Stats.MessagesSent; got != 1 {
		t.Errorf("trigger fired twice: %d messages sent", got)
	}
}

func TestSessionLegacyRecordSend(t *testing.T) {
	env := makeTestSession(t)

	if err := env.registry.WriteString(dref.CallsignSlot, "N123AB"); err != nil {
		t.Fatal(err)
	}
	rec := `{"to": "EDDF", "type": "telex", "packet": "REQUEST ATIS"}`
	if err := env.registry.WriteString(dref.SendQueueSlot, rec); err != nil {
		t.Fatal(err)
	}

	env.step(t, time.Now())

	var sent []hoppie.OutboundMessage
	for _, m := range env.transport.requests() {
		if m.Type != hoppie.PollMessageType {
			sent = append(sent, m)
		}
	}
	if len(sent) != 1 || sent[0].To != "EDDF" || sent[0].Packet != "REQUEST ATIS" {
		t.Fatalf("unexpected requests %+v", sent)
	}
}

func TestSessionErrorSlot(t *testing.T) {
	env := makeTestSession(t)

	// No callsign: the bridge must reject at dispatch and report via the
	// error slot; nothing reaches the transport.
	rec := `{"to": "EDDF", "type": "telex", "packet": "HELLO"}`
	if err := env.registry.WriteString(dref.SendQueueSlot, rec); err != nil {
		t.Fatal(err)
	}

	env.step(t, time.Now())

	if got, err := env.registry.TakeString(dref.ErrorSlot); err != nil {
		t.Fatal(err)
	} else if got != hoppie.ErrMissingCallsign.Error() {
		t.Errorf("error slot: got %q, want %q", got, hoppie.ErrMissingCallsign.Error())
	}

	// Clear-on-read.
	if got, err := env.registry.TakeString(dref.ErrorSlot); err != nil {
		t.Fatal(err)
	} else if got != "" {
		t.Errorf("error slot not cleared by read: %q", got)
	}

	for _, m := range env.transport.requests() {
		if m.Type != hoppie.PollMessageType {
			t.Errorf("rejected message reached the transport: %+v", m)
		}
	}

	// The sticky copy stays visible in the state snapshot.
	if got := env.session.State().LastError; got != hoppie.ErrMissingCallsign.Error() {
		t.Errorf("state last error: got %q", got)
	}
}

func TestSessionMalformedRecord(t *testing.T) {
	env := makeTestSession(t)

	if err := env.registry.WriteString(dref.CallsignSlot, "N123AB"); err != nil {
		t.Fatal(err)
	}
	if err := env.registry.WriteString(dref.SendQueueSlot, `{"type": "telex"`); err != nil {
		t.Fatal(err)
	}

	env.step(t, time.Now())

	if got, err := env.registry.TakeString(dref.ErrorSlot); err != nil {
		t.Fatal(err)
	} else if got == "" {
		t.Errorf("malformed record did not surface an error")
	}
}

func TestClientLifecycle(t *testing.T) {
	env := makeTestSession(t)

	token, err := env.session.AddClient("test")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.session.CheckToken(token); err != nil {
		t.Errorf("CheckToken: %v", err)
	}
	if err := env.session.CheckToken("bogus"); !errors.Is(err, ErrInvalidClientToken) {
		t.Errorf("bogus token: got %v, want ErrInvalidClientToken", err)
	}

	if err := env.registry.WriteString(dref.CallsignSlot, "N123AB"); err != nil {
		t.Fatal(err)
	}
	env.step(t, time.Now())

	update, err := env.session.GetStateUpdate(token)
	if err != nil {
		t.Fatal(err)
	}
	if update.State.Callsign != "N123AB" {
		t.Errorf("state callsign: got %q", update.State.Callsign)
	}

	if err := env.session.RemoveClient(token); err != nil {
		t.Fatal(err)
	}
	if err := env.session.CheckToken(token); !errors.Is(err, ErrInvalidClientToken) {
		t.Errorf("token still valid after sign-off: %v", err)
	}
	if _, err := env.session.GetStateUpdate(token); !errors.Is(err, ErrInvalidClientToken) {
		t.Errorf("GetStateUpdate after sign-off: %v", err)
	}
}

func TestClientEventDelivery(t *testing.T) {
	env := makeTestSession(t)

	token, err := env.session.AddClient("test")
	if err != nil {
		t.Fatal(err)
	}

	if err := env.registry.WriteString(dref.CallsignSlot, "N123AB"); err != nil {
		t.Fatal(err)
	}
	rec := `{"to": "EDDF", "type": "telex", "packet": "HELLO"}`
	if err := env.registry.WriteString(dref.SendQueueSlot, rec); err != nil {
		t.Fatal(err)
	}
	env.step(t, time.Now())

	update, err := env.session.GetStateUpdate(token)
	if err != nil {
		t.Fatal(err)
	}
	var sawSubmit, sawSent bool
	for _, ev := range update.Events {
		sawSubmit = sawSubmit || ev.Type == hoppie.MessageSubmittedEvent
		sawSent = sawSent || ev.Type == hoppie.MessageSentEvent
	}
	if !sawSubmit || !sawSent {
		t.Errorf("missing events: submit %v sent %v (%d events)", sawSubmit, sawSent, len(update.Events))
	}

	// Events are consumed per client; a second call gets nothing new.
	update, err = env.session.GetStateUpdate(token)
	if err != nil {
		t.Fatal(err)
	}
	if len(update.Events) != 0 {
		t.Errorf("second update redelivered %d events", len(update.Events))
	}
}

func TestDispatcherSubmit(t *testing.T) {
	env := makeTestSession(t)
	srv := &Server{session: env.session, registry: env.registry}
	d := &dispatcher{s: srv}

	token, err := env.session.AddClient("test")
	if err != nil {
		t.Fatal(err)
	}

	args := &SubmitMessageArgs{ClientToken: token, To: "EDDF", Type: "telex", Packet: "HELLO"}
	if err := d.SubmitMessage(args, &struct{}{}); err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	if rec := env.mustString(t, dref.SendQueueSlot); !strings.Contains(rec, "EDDF") {
		t.Errorf("send queue slot: %q", rec)
	}

	// Validation errors come back synchronously.
	args = &SubmitMessageArgs{ClientToken: token, To: "EDDF", Type: "bogus", Packet: ""}
	if err := d.SubmitMessage(args, &struct{}{}); !errors.Is(err, hoppie.ErrInvalidMessageType) {
		t.Errorf("bad type: got %v", err)
	}
	args = &SubmitMessageArgs{ClientToken: token, To: "", Type: "telex", Packet: "HELLO"}
	if err := d.SubmitMessage(args, &struct{}{}); !errors.Is(err, hoppie.ErrMissingRecipient) {
		t.Errorf("no recipient: got %v", err)
	}

	args = &SubmitMessageArgs{ClientToken: "bogus", To: "EDDF", Type: "telex", Packet: "HELLO"}
	if err := d.SubmitMessage(args, &struct{}{}); !errors.Is(err, ErrInvalidClientToken) {
		t.Errorf("bogus token: got %v", err)
	}

	// Writes to read-only slots are refused.
	sargs := &SetStringSlotArgs{ClientToken: token, Name: dref.RecvFromSlot, Value: "X"}
	if err := d.SetStringSlot(sargs, &struct{}{}); !errors.Is(err, dref.ErrSlotReadOnly) {
		t.Errorf("read-only write: got %v", err)
	}
}

func TestErrorDecodeRoundTrip(t *testing.T) {
	// The RPC layer flattens errors to strings; TryDecodeErrorString is
	// what clients use to get sentinels back.
	for _, err := range []error{
		ErrInvalidClientToken, ErrRPCTimeout, ErrRPCVersionMismatch,
		hoppie.ErrMissingCallsign, hoppie.ErrInvalidMessageType,
		dref.ErrSlotReadOnly, dref.ErrUnknownSlot,
	} {
		if got := TryDecodeErrorString(err.Error()); !errors.Is(got, err) {
			t.Errorf("%q: decoded to %v", err.Error(), got)
		}
	}

	if got := TryDecodeErrorString("something else entirely"); got != nil {
		t.Errorf("unknown error string decoded to %v", got)
	}
}
