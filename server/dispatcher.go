// server/dispatcher.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"encoding/json"

	"github.com/mmp/hoppiebridge/dref"
	"github.com/mmp/hoppiebridge/hoppie"
)

type dispatcher struct {
	s *Server
}

type ConnectArgs struct {
	Version    int
	ClientName string
}

type ConnectResult struct {
	ClientToken string
	Slots       []dref.SlotValue
	HTTPPort    int
}

const ConnectRPC = "Bridge.Connect"

func (bd *dispatcher) Connect(args *ConnectArgs, result *ConnectResult) error {
	// Most of the methods in this file are called from the RPC dispatcher,
	// which spawns up goroutines as needed to handle requests, so if we
	// want to catch and report panics, all of the methods need to start
	// like this...
	defer bd.s.lg.CatchAndReportCrash()

	if args.Version != BridgeRPCVersion {
		return ErrRPCVersionMismatch
	}

	token, err := bd.s.session.AddClient(args.ClientName)
	if err != nil {
		return err
	}

	result.ClientToken = token
	result.Slots = bd.s.registry.Dump()
	result.HTTPPort = bd.s.httpPort
	return nil
}

const SignOffRPC = "Bridge.SignOff"

func (bd *dispatcher) SignOff(token string, _ *struct{}) error {
	defer bd.s.lg.CatchAndReportCrash()

	return bd.s.session.RemoveClient(token)
}

// StateUpdate is what GetStateUpdate returns: the state snapshot from
// the most recent tick plus the events posted since the client's last
// call.
type StateUpdate struct {
	State  hoppie.State
	Events []hoppie.Event
}

const GetStateUpdateRPC = "Bridge.GetStateUpdate"

func (bd *dispatcher) GetStateUpdate(token string, update *StateUpdate) error {
	defer bd.s.lg.CatchAndReportCrash()

	u, err := bd.s.session.GetStateUpdate(token)
	if err != nil {
		return err
	}
	*update = *u
	return nil
}

type SubmitMessageArgs struct {
	ClientToken string
	To          string
	Type        string
	Packet      string
}

const SubmitMessageRPC = "Bridge.SubmitMessage"

// SubmitMessage validates the message and hands it to the session via
// the send queue slot. Validation here gives the caller a synchronous
// error for a bad type or recipient; configuration problems like a
// missing callsign only show up at dispatch and are reported through
// the error slot.
func (bd *dispatcher) SubmitMessage(args *SubmitMessageArgs, _ *struct{}) error {
	defer bd.s.lg.CatchAndReportCrash()

	if err := bd.s.session.CheckToken(args.ClientToken); err != nil {
		return err
	}

	m := hoppie.OutboundMessage{
		To:     args.To,
		Type:   hoppie.MessageType(args.Type),
		Packet: args.Packet,
	}
	if err := m.Validate(); err != nil {
		return err
	}

	rec, err := json.Marshal(hoppie.OutboundRecord{To: args.To, Type: args.Type, Packet: args.Packet})
	if err != nil {
		return err
	}
	return bd.s.registry.WriteString(dref.SendQueueSlot, string(rec))
}

type SubmitRecordArgs struct {
	ClientToken string
	Record      string
}

const SubmitRecordRPC = "Bridge.SubmitRecord"

func (bd *dispatcher) SubmitRecord(args *SubmitRecordArgs, _ *struct{}) error {
	defer bd.s.lg.CatchAndReportCrash()

	if err := bd.s.session.CheckToken(args.ClientToken); err != nil {
		return err
	}

	if _, err := hoppie.DecodeOutboundRecord(args.Record); err != nil {
		return err
	}
	return bd.s.registry.WriteString(dref.SendQueueSlot, args.Record)
}

type SetCallsignArgs struct {
	ClientToken string
	Callsign    string
}

const SetCallsignRPC = "Bridge.SetCallsign"

func (bd *dispatcher) SetCallsign(args *SetCallsignArgs, _ *struct{}) error {
	defer bd.s.lg.CatchAndReportCrash()

	if err := bd.s.session.CheckToken(args.ClientToken); err != nil {
		return err
	}
	return bd.s.registry.WriteString(dref.CallsignSlot, args.Callsign)
}

type SetPowerArgs struct {
	ClientToken string
	On          bool
}

const SetPowerRPC = "Bridge.SetPower"

func (bd *dispatcher) SetPower(args *SetPowerArgs, _ *struct{}) error {
	defer bd.s.lg.CatchAndReportCrash()

	if err := bd.s.session.CheckToken(args.ClientToken); err != nil {
		return err
	}
	return bd.s.registry.WriteBool(dref.AvionicsPowerSlot, args.On)
}

const ClearInboxRPC = "Bridge.ClearInbox"

func (bd *dispatcher) ClearInbox(token string, _ *struct{}) error {
	defer bd.s.lg.CatchAndReportCrash()

	if err := bd.s.session.CheckToken(token); err != nil {
		return err
	}
	return bd.s.registry.WriteBool(dref.ClearInboxSlot, true)
}

const ReadErrorRPC = "Bridge.ReadError"

// ReadError takes the current contents of the error slot, clearing it.
// An empty result means no error has been reported since the last call.
func (bd *dispatcher) ReadError(token string, result *string) error {
	defer bd.s.lg.CatchAndReportCrash()

	if err := bd.s.session.CheckToken(token); err != nil {
		return err
	}

	e, err := bd.s.registry.TakeString(dref.ErrorSlot)
	if err != nil {
		return err
	}
	*result = e
	return nil
}

const GetSlotsRPC = "Bridge.GetSlots"

func (bd *dispatcher) GetSlots(token string, result *[]dref.SlotValue) error {
	defer bd.s.lg.CatchAndReportCrash()

	if err := bd.s.session.CheckToken(token); err != nil {
		return err
	}
	*result = bd.s.registry.Dump()
	return nil
}

type SetStringSlotArgs struct {
	ClientToken string
	Name        string
	Value       string
}

const SetStringSlotRPC = "Bridge.SetStringSlot"

// SetStringSlot is the generic write path for simulator adapters that
// mirror the registry wholesale rather than using the typed methods
// above. Read-only slots return ErrSlotReadOnly.
func (bd *dispatcher) SetStringSlot(args *SetStringSlotArgs, _ *struct{}) error {
	defer bd.s.lg.CatchAndReportCrash()

	if err := bd.s.session.CheckToken(args.ClientToken); err != nil {
		return err
	}
	return bd.s.registry.WriteString(args.Name, args.Value)
}

type SetBoolSlotArgs struct {
	ClientToken string
	Name        string
	Value       bool
}

const SetBoolSlotRPC = "Bridge.SetBoolSlot"

func (bd *dispatcher) SetBoolSlot(args *SetBoolSlotArgs, _ *struct{}) error {
	defer bd.s.lg.CatchAndReportCrash()

	if err := bd.s.session.CheckToken(args.ClientToken); err != nil {
		return err
	}
	return bd.s.registry.WriteBool(args.Name, args.Value)
}
