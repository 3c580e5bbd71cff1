// server/errors.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"errors"

	"github.com/mmp/hoppiebridge/dref"
	"github.com/mmp/hoppiebridge/hoppie"
)

var (
	ErrInvalidClientToken = errors.New("Invalid client token")
	ErrRPCTimeout         = errors.New("RPC call timed out")
	ErrRPCVersionMismatch = errors.New("Client and server RPC versions don't match")
	ErrServerDisconnected = errors.New("Server disconnected")
)

// The net/rpc package flattens errors to strings in transit; this map
// lets clients recover the sentinel errors so that errors.Is works on
// their side of the wire.
var errorStringToError = map[string]error{
	hoppie.ErrInvalidMessageType.Error(): hoppie.ErrInvalidMessageType,
	hoppie.ErrMissingCallsign.Error():    hoppie.ErrMissingCallsign,
	hoppie.ErrMissingLogon.Error():       hoppie.ErrMissingLogon,
	hoppie.ErrMissingRecipient.Error():   hoppie.ErrMissingRecipient,
	hoppie.ErrNoMessage.Error():          hoppie.ErrNoMessage,

	dref.ErrUnknownSlot.Error():      dref.ErrUnknownSlot,
	dref.ErrSlotTypeMismatch.Error(): dref.ErrSlotTypeMismatch,
	dref.ErrSlotReadOnly.Error():     dref.ErrSlotReadOnly,
	dref.ErrSlotRedeclared.Error():   dref.ErrSlotRedeclared,

	ErrInvalidClientToken.Error(): ErrInvalidClientToken,
	ErrRPCTimeout.Error():         ErrRPCTimeout,
	ErrRPCVersionMismatch.Error(): ErrRPCVersionMismatch,
	ErrServerDisconnected.Error(): ErrServerDisconnected,
}

func TryDecodeError(e error) error {
	if e == nil {
		return e
	}
	if err, ok := errorStringToError[e.Error()]; ok {
		return err
	}
	return e
}

func TryDecodeErrorString(s string) error {
	if err, ok := errorStringToError[s]; ok {
		return err
	}
	return nil
}
