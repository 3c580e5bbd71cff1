// hoppie/transport.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hoppie

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmp/hoppiebridge/log"
)

// DefaultServerURL is the production ACARS endpoint.
const DefaultServerURL = "https://www.hoppie.nl/acars/system/connect.html"

// DefaultRequestTimeout bounds a single exchange with the server so a
// slow or unreachable endpoint can't stall the scheduler for more than
// one cycle.
const DefaultRequestTimeout = 15 * time.Second

// Transport performs one request/response exchange with the ACARS
// server. Implementations never retry; the caller owns retry policy.
// Exchange is called from the bridge's I/O goroutines and so must be safe
// for concurrent use.
type Transport interface {
	Exchange(m OutboundMessage) (string, error)
}

type HTTPTransport struct {
	url    string
	client *http.Client
	lg     *log.Logger
}

func MakeHTTPTransport(serverURL string, timeout time.Duration, lg *log.Logger) *HTTPTransport {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPTransport{
		url:    serverURL,
		client: &http.Client{Timeout: timeout},
		lg:     lg,
	}
}

func (t *HTTPTransport) Exchange(m OutboundMessage) (string, error) {
	start := time.Now()

	resp, err := t.client.PostForm(t.url, url.Values{
		"logon":  {m.Logon},
		"from":   {m.From},
		"to":     {m.To},
		"type":   {string(m.Type)},
		"packet": {m.Packet},
	})
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", TransportError{Kind: TransportServerRejected,
			Err: fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(err)
	}

	text := strings.TrimSpace(string(body))
	t.lg.Debug("exchange", slog.Any("request", m), slog.String("response", text),
		slog.Duration("elapsed", time.Since(start)))

	if reason, rejected := ParseRejection(text); rejected {
		return "", TransportError{Kind: TransportServerRejected, Err: reason}
	}
	return text, nil
}

func classifyTransportError(err error) TransportError {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return TransportError{Kind: TransportTimeout, Err: err.Error()}
	}
	return TransportError{Kind: TransportUnreachable, Err: err.Error()}
}
