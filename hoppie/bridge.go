// hoppie/bridge.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hoppie

import (
	"log/slog"
	"time"

	"github.com/mmp/hoppiebridge/log"
)

// DefaultDrainInterval is how often the send queue dispatches a queued
// message.
const DefaultDrainInterval = 5 * time.Second

// Config carries the construction-time knobs of the bridge engine; zero
// durations take the defaults.
type Config struct {
	Logon            string
	PollInterval     time.Duration
	FastPollInterval time.Duration
	DrainInterval    time.Duration
	// AnswerTimeout stops forcing the fast poll cadence if no reply to
	// an answer-expecting send arrives within it; zero waits
	// indefinitely.
	AnswerTimeout time.Duration
	// RevokeReadyOnPollFailure makes a failed poll revoke readiness
	// rather than treating the first success as a latch.
	RevokeReadyOnPollFailure bool
}

func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.FastPollInterval == 0 {
		c.FastPollInterval = DefaultFastPollInterval
	}
	if c.DrainInterval == 0 {
		c.DrainInterval = DefaultDrainInterval
	}
	return c
}

type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	PollsCompleted   int64
	PollFailures     int64
	SendFailures     int64
}

// State is a point-in-time snapshot of the bridge, safe to hand across
// threads; everything in it is a value.
type State struct {
	Callsign     string
	PowerOn      bool
	Ready        bool
	Poll         PollState
	QueueLen     int
	SendInFlight bool
	PollInFlight bool
	HaveMessage  bool
	Latest       InboundMessage
	LatestRecord string
	LastError    string
	Stats        Stats
}

type exchangeResult struct {
	request OutboundMessage
	raw     string
	err     error
}

// Bridge is the message-exchange engine: it owns the send queue, the
// poll scheduler, the inbox, and the readiness state, and drives the
// transport from its Update tick. All methods other than the transport
// goroutines it launches internally must be called from a single thread;
// exchange results are marshaled back onto that thread via channels, with
// at most one request in flight per logical channel.
type Bridge struct {
	config      Config
	transport   Transport
	eventStream *EventStream
	lg          *log.Logger

	callsign string
	powerOn  bool

	queue *SendQueue
	poll  *pollScheduler
	inbox Inbox
	ready readiness

	// Non-nil while an exchange is in flight on that channel.
	sendCh chan exchangeResult
	pollCh chan exchangeResult

	lastError string
	stats     Stats
}

func NewBridge(config Config, tr Transport, es *EventStream, lg *log.Logger) *Bridge {
	config = config.withDefaults()
	return &Bridge{
		config:      config,
		transport:   tr,
		eventStream: es,
		lg:          lg,
		queue:       MakeSendQueue(config.DrainInterval),
		poll:        makePollScheduler(config.PollInterval, config.FastPollInterval, config.AnswerTimeout),
		ready:       readiness{revokeOnPollFailure: config.RevokeReadyOnPollFailure},
	}
}

///////////////////////////////////////////////////////////////////////////
// Host-facing operations

func (b *Bridge) SetCallsign(cs string) {
	if cs == b.callsign {
		return
	}
	b.lg.Info("callsign changed", slog.String("callsign", cs))
	b.callsign = cs
	b.recomputeReadiness()
}

func (b *Bridge) Callsign() string {
	return b.callsign
}

func (b *Bridge) SetPower(on bool) {
	if on == b.powerOn {
		return
	}
	b.lg.Info("host power changed", slog.Bool("on", on))
	b.powerOn = on
	b.recomputeReadiness()
}

// SubmitRecord queues a send submitted through the legacy JSON slot.
func (b *Bridge) SubmitRecord(s string) error {
	r, err := DecodeOutboundRecord(s)
	if err != nil {
		b.lg.Warn("rejecting malformed send record", slog.String("record", s),
			slog.Any("error", err))
		return err
	}
	b.enqueue(OutboundMessage{To: r.To, Type: MessageType(r.Type), Packet: r.Packet})
	return nil
}

// Submit queues a send submitted through the structured slots.
func (b *Bridge) Submit(to, ty, packet string) error {
	m := OutboundMessage{To: to, Type: MessageType(ty), Packet: packet}
	if err := m.Validate(); err != nil {
		b.lg.Warn("rejecting send", slog.Any("message", m), slog.Any("error", err))
		return err
	}
	b.enqueue(m)
	return nil
}

func (b *Bridge) enqueue(m OutboundMessage) {
	b.queue.Enqueue(m)
	b.postEvent(Event{Type: MessageSubmittedEvent, Station: m.To,
		MessageType: string(m.Type), Packet: m.Packet})
}

func (b *Bridge) ClearInbox() {
	b.inbox.Clear()
	b.postEvent(Event{Type: InboxClearedEvent})
}

func (b *Bridge) Latest() (InboundMessage, bool) {
	return b.inbox.Latest()
}

func (b *Bridge) Ready() bool {
	return b.ready.Ready()
}

// TakeError returns the most recent surfaced error and clears it.
func (b *Bridge) TakeError() string {
	s := b.lastError
	b.lastError = ""
	return s
}

func (b *Bridge) Snapshot() State {
	latest, have := b.inbox.Latest()
	return State{
		Callsign:     b.callsign,
		PowerOn:      b.powerOn,
		Ready:        b.ready.Ready(),
		Poll:         b.poll.state,
		QueueLen:     b.queue.Len(),
		SendInFlight: b.sendCh != nil,
		PollInFlight: b.pollCh != nil,
		HaveMessage:  have,
		Latest:       latest,
		LatestRecord: b.inbox.Record(),
		LastError:    b.lastError,
		Stats:        b.stats,
	}
}

///////////////////////////////////////////////////////////////////////////
// Scheduling

// Update runs one cooperative tick: apply any finished exchanges, then
// start whatever the elapsed time calls for. It never blocks; all timing
// is elapsed-time checks against now.
func (b *Bridge) Update(now time.Time) {
	b.processResults(now)

	if b.poll.ExpirePendingAnswer(now) {
		b.lg.Info("gave up waiting for an answer", slog.Duration("timeout", b.config.AnswerTimeout))
	}

	b.maybeLaunchPoll(now)
	b.maybeLaunchSend(now)

	b.recomputeReadiness()
}

// Sync waits up to timeout for in-flight exchanges to finish and applies
// their results; useful at shutdown and in tests. Regular operation goes
// through the non-blocking Update path instead.
func (b *Bridge) Sync(timeout time.Duration, now time.Time) {
	deadline := time.After(timeout)
	for b.sendCh != nil || b.pollCh != nil {
		if b.sendCh != nil {
			select {
			case res := <-b.sendCh:
				b.sendCh = nil
				b.handleSendResult(res, now)
			case <-deadline:
				return
			}
		}
		if b.pollCh != nil {
			select {
			case res := <-b.pollCh:
				b.pollCh = nil
				b.handlePollResult(res, now)
			case <-deadline:
				return
			}
		}
	}
	b.recomputeReadiness()
}

// Shutdown abandons any in-flight exchange; the transport goroutines
// deliver into buffered channels and exit on their own. Nothing is
// persisted.
func (b *Bridge) Shutdown() {
	b.lg.Info("bridge shutting down", slog.Any("stats", b.stats))
	b.sendCh = nil
	b.pollCh = nil
}

func (b *Bridge) processResults(now time.Time) {
	if b.sendCh != nil {
		select {
		case res := <-b.sendCh:
			b.sendCh = nil
			b.handleSendResult(res, now)
		default:
		}
	}
	if b.pollCh != nil {
		select {
		case res := <-b.pollCh:
			b.pollCh = nil
			b.handlePollResult(res, now)
		default:
		}
	}
}

func (b *Bridge) maybeLaunchPoll(now time.Time) {
	// Polls need the logon as well; without it the server would reject
	// every request, so don't bother asking.
	if b.pollCh != nil || !b.powerOn || b.callsign == "" || b.config.Logon == "" {
		return
	}
	if !b.poll.Due(now) {
		return
	}

	m := OutboundMessage{
		Logon: b.config.Logon,
		From:  b.callsign,
		To:    b.callsign,
		Type:  PollMessageType,
	}
	b.poll.MarkPolled(now)
	b.pollCh = b.launchExchange(m)
}

func (b *Bridge) maybeLaunchSend(now time.Time) {
	if b.sendCh != nil {
		return
	}
	m, ok := b.queue.PopDue(now)
	if !ok {
		return
	}

	// The logon and callsign are session state rather than message
	// content; check them at dispatch and fill them in here.
	if b.config.Logon == "" {
		b.dropSend(m, ErrMissingLogon.Error())
		return
	}
	if b.callsign == "" {
		b.dropSend(m, ErrMissingCallsign.Error())
		return
	}
	m.Logon = b.config.Logon
	m.From = b.callsign

	if m.Type.ExpectsAnswer() {
		// Set immediately on dispatch, independent of the eventual
		// response.
		b.poll.SetPendingAnswer(now)
	}
	b.sendCh = b.launchExchange(m)
}

func (b *Bridge) launchExchange(m OutboundMessage) chan exchangeResult {
	ch := make(chan exchangeResult, 1)
	go func() {
		raw, err := b.transport.Exchange(m)
		ch <- exchangeResult{request: m, raw: raw, err: err}
	}()
	return ch
}

func (b *Bridge) dropSend(m OutboundMessage, reason string) {
	b.lg.Warn("dropping queued message", slog.Any("message", m), slog.String("reason", reason))
	b.surfaceError(reason)
	b.postEvent(Event{Type: TransportErrorEvent, Channel: "send", Station: m.To,
		MessageType: string(m.Type), Err: reason})
}

func (b *Bridge) handleSendResult(res exchangeResult, now time.Time) {
	if res.err != nil {
		// Fire and forget: the message is dropped, not requeued,
		// matching the delivery guarantees of the service itself.
		b.stats.SendFailures++
		b.lg.Warn("send failed", slog.Any("message", res.request), slog.Any("error", res.err))
		b.surfaceError(res.err.Error())
		b.postEvent(Event{Type: TransportErrorEvent, Channel: "send", Station: res.request.To,
			MessageType: string(res.request.Type), Err: res.err.Error()})
		return
	}

	b.stats.MessagesSent++
	b.postEvent(Event{Type: MessageSentEvent, Station: res.request.To,
		MessageType: string(res.request.Type), Packet: res.request.Packet})

	if !res.request.Type.ExpectsAnswer() {
		return
	}

	// The direct response may carry the answer right away.
	msgs, err := b.inbox.RouteResponse(res.raw, res.request)
	if err != nil {
		b.lg.Error("malformed response payload", slog.String("response", res.raw),
			slog.Any("error", err))
		return
	}
	if len(msgs) > 0 {
		b.poll.ClearPendingAnswer()
		for _, m := range msgs {
			b.noteReceived(m, now)
		}
	}
}

func (b *Bridge) handlePollResult(res exchangeResult, now time.Time) {
	if res.err != nil {
		b.poll.PollCompleted(false)
		b.stats.PollFailures++
		b.lg.Warn("poll failed", slog.Any("error", res.err))
		b.surfaceError(res.err.Error())
		b.postEvent(Event{Type: TransportErrorEvent, Channel: "poll", Err: res.err.Error()})
		return
	}

	b.poll.PollCompleted(true)
	b.stats.PollsCompleted++

	msgs, err := b.inbox.RoutePoll(res.raw)
	if err != nil {
		b.lg.Error("malformed poll payload", slog.String("response", res.raw),
			slog.Any("error", err))
		return
	}
	if len(msgs) > 0 {
		// A real message ends the fast-poll wait; when a station
		// answers later rather than in the direct response, the answer
		// arrives here.
		b.poll.ClearPendingAnswer()
		for _, m := range msgs {
			b.noteReceived(m, now)
		}
	}
	b.postEvent(Event{Type: PollCompletedEvent, Time: now})
}

func (b *Bridge) noteReceived(m InboundMessage, now time.Time) {
	b.stats.MessagesReceived++
	b.lg.Info("message received", slog.Any("message", m))
	b.postEvent(Event{Type: MessageReceivedEvent, Time: now, Station: m.From,
		MessageType: m.Type, Packet: m.Packet})
}

func (b *Bridge) surfaceError(s string) {
	b.lastError = s
}

func (b *Bridge) postEvent(e Event) {
	if b.eventStream != nil {
		b.eventStream.Post(e)
	}
}

func (b *Bridge) recomputeReadiness() {
	if b.ready.Recompute(b.powerOn, b.callsign != "", b.poll) {
		b.lg.Info("readiness changed", slog.Bool("ready", b.ready.Ready()))
		b.postEvent(Event{Type: ReadinessChangedEvent, Ready: b.ready.Ready()})
	}
}
