// hoppie/errors.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hoppie

import (
	"errors"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMissingCallsign    = errors.New("callsign not set")
	ErrMissingLogon       = errors.New("logon code not set")
	ErrMissingRecipient   = errors.New("message recipient not specified")
	ErrNoMessage          = errors.New("no message available")
)

// MalformedMessageError is returned when a host record or a server
// response can't be decoded; the previous state is always left untouched.
type MalformedMessageError struct {
	Err string
}

func (m MalformedMessageError) Error() string {
	return m.Err
}

// TransportErrorKind classifies failures of the exchange with the ACARS
// server.
type TransportErrorKind int

const (
	// TransportTimeout: the request did not complete within the deadline.
	TransportTimeout TransportErrorKind = iota
	// TransportUnreachable: connection or protocol-level failure.
	TransportUnreachable
	// TransportServerRejected: the server answered but refused the request.
	TransportServerRejected
)

func (k TransportErrorKind) String() string {
	return [...]string{"timeout", "unreachable", "server rejected"}[k]
}

type TransportError struct {
	Kind TransportErrorKind
	Err  string
}

func (t TransportError) Error() string {
	if t.Err == "" {
		return t.Kind.String()
	}
	return t.Kind.String() + ": " + t.Err
}
