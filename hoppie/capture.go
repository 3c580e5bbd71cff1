// hoppie/capture.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hoppie

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// CapturedExchange records one round trip with the ACARS server,
// timestamped so a replay can reproduce the original pacing.
type CapturedExchange struct {
	Time     time.Time
	Request  OutboundMessage
	Response string
	Failed   bool
	ErrKind  TransportErrorKind
	Err      string
}

// SessionCapture appends exchanges to a zstd-compressed msgpack stream on
// disk; sessions from live runs can then be replayed for debugging
// without talking to the network.
type SessionCapture struct {
	mu  sync.Mutex
	f   *os.File
	zw  *zstd.Encoder
	enc *msgpack.Encoder
}

func NewSessionCapture(filename string) (*SessionCapture, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &SessionCapture{f: f, zw: zw, enc: msgpack.NewEncoder(zw)}, nil
}

func (s *SessionCapture) Record(ex CapturedExchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ex)
}

func (s *SessionCapture) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.zw.Close(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// CaptureTransport wraps another transport and records every exchange
// that passes through it.
type CaptureTransport struct {
	inner Transport
	cap   *SessionCapture
}

func MakeCaptureTransport(inner Transport, cap *SessionCapture) *CaptureTransport {
	return &CaptureTransport{inner: inner, cap: cap}
}

func (t *CaptureTransport) Exchange(m OutboundMessage) (string, error) {
	raw, err := t.inner.Exchange(m)

	ex := CapturedExchange{Time: time.Now(), Request: m, Response: raw}
	if err != nil {
		ex.Failed = true
		var te TransportError
		if errors.As(err, &te) {
			ex.ErrKind = te.Kind
			ex.Err = te.Err
		} else {
			ex.ErrKind = TransportUnreachable
			ex.Err = err.Error()
		}
	}
	// A failed write just loses the capture, not the session.
	_ = t.cap.Record(ex)

	return raw, err
}

// ReplayTransport serves exchanges from a recorded session instead of the
// network. Polls and sends run on independent schedules, so each channel
// replays its own recorded exchanges in order; the response to the next
// poll is the recorded response to the session's next poll, regardless of
// how the two runs' clocks line up.
type ReplayTransport struct {
	mu        sync.Mutex
	exchanges []CapturedExchange
	next      map[string]int

	streamStart time.Time
	replayStart time.Time
	rate        float32
}

// MakeReplayTransport opens a captured session for replay. rate scales
// the original pacing (2 replays twice as fast); zero disables pacing
// entirely and answers immediately.
func MakeReplayTransport(filename string, rate float32) (*ReplayTransport, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	defer zr.Close()

	t := &ReplayTransport{
		next:        make(map[string]int),
		replayStart: time.Now(),
		rate:        rate,
	}

	dec := msgpack.NewDecoder(zr)
	for {
		var ex CapturedExchange
		if err := dec.Decode(&ex); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%s: decoding captured exchange: %w", filename, err)
		}
		t.exchanges = append(t.exchanges, ex)
	}
	if len(t.exchanges) > 0 {
		t.streamStart = t.exchanges[0].Time
	}

	return t, nil
}

func (t *ReplayTransport) Exchange(m OutboundMessage) (string, error) {
	ch := exchangeChannel(m.Type)

	t.mu.Lock()
	idx := -1
	for i := t.next[ch]; i < len(t.exchanges); i++ {
		if exchangeChannel(t.exchanges[i].Request.Type) == ch {
			idx = i
			break
		}
	}
	if idx == -1 {
		t.mu.Unlock()
		return "", TransportError{Kind: TransportUnreachable, Err: "replay session exhausted"}
	}
	t.next[ch] = idx + 1
	ex := t.exchanges[idx]
	t.mu.Unlock()

	if t.rate > 0 {
		// Hold the response until the stream reaches the recorded time.
		offset := time.Duration(float64(ex.Time.Sub(t.streamStart)) / float64(t.rate))
		time.Sleep(time.Until(t.replayStart.Add(offset)))
	}

	if ex.Failed {
		return "", TransportError{Kind: ex.ErrKind, Err: ex.Err}
	}
	return ex.Response, nil
}

func exchangeChannel(ty MessageType) string {
	if ty == PollMessageType || ty == PeekMessageType {
		return "poll"
	}
	return "send"
}
