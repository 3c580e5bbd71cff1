// client/client.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package client

import (
	"fmt"
	"net"
	"net/rpc"
	"strconv"
	"strings"
	"time"

	"github.com/mmp/hoppiebridge/dref"
	"github.com/mmp/hoppiebridge/log"
	"github.com/mmp/hoppiebridge/server"
	"github.com/mmp/hoppiebridge/util"
)

// Client is a connection to a bridge server with typed methods that
// mirror the RPC surface. All calls are synchronous with a timeout;
// RPC errors are decoded back to the sentinel errors the server package
// defines so that errors.Is works on this side of the wire.
type Client struct {
	client   *RPCClient
	token    string
	hostname string
	slots    []dref.SlotValue
	httpPort int
	lg       *log.Logger
}

type RPCClient struct {
	*rpc.Client
}

func getClient(hostname string, lg *log.Logger) (*RPCClient, error) {
	conn, err := net.Dial("tcp", hostname)
	if err != nil {
		return nil, err
	}

	cc, err := util.MakeCompressedConn(util.MakeLoggingConn(conn, lg))
	if err != nil {
		return nil, err
	}

	codec := util.MakeMessagepackClientCodec(cc)
	codec = util.MakeLoggingClientCodec(hostname, codec, lg)
	return &RPCClient{rpc.NewClientWithCodec(codec)}, nil
}

func (c *RPCClient) callWithTimeout(serviceMethod string, args any, reply any) error {
	call := c.Go(serviceMethod, args, reply, nil)
	issueTime := time.Now()

	// Race-instrumented binaries run slowly enough that the usual
	// timeout gives spurious failures.
	timeout := util.Select(log.RaceEnabled, 15*time.Second, 5*time.Second)

	for {
		select {
		case <-call.Done:
			return call.Error

		case <-time.After(timeout):
			if !util.DebuggerIsRunning() {
				return fmt.Errorf("%s (after %s): %w", serviceMethod,
					time.Since(issueTime).Round(time.Second), server.ErrRPCTimeout)
			}
		}
	}
}

// Connect dials the server, performs the version handshake, and signs
// on as clientName. The hostname may omit the port, in which case the
// default server port is used.
func Connect(hostname string, clientName string, lg *log.Logger) (*Client, error) {
	if hostname == "" {
		hostname = server.BridgeServerAddress
	}
	if !strings.Contains(hostname, ":") {
		hostname += ":" + strconv.Itoa(server.BridgeServerPort)
	}

	client, err := getClient(hostname, lg)
	if err != nil {
		return nil, err
	}

	var cr server.ConnectResult
	start := time.Now()
	args := server.ConnectArgs{Version: server.BridgeRPCVersion, ClientName: clientName}
	if err := client.callWithTimeout(server.ConnectRPC, &args, &cr); err != nil {
		client.Close()
		return nil, server.TryDecodeError(err)
	}
	lg.Debugf("%s: connected in %s", hostname, time.Since(start))

	return &Client{
		client:   client,
		token:    cr.ClientToken,
		hostname: hostname,
		slots:    cr.Slots,
		httpPort: cr.HTTPPort,
		lg:       lg,
	}, nil
}

func (c *Client) call(serviceMethod string, args any, reply any) error {
	return server.TryDecodeError(c.client.callWithTimeout(serviceMethod, args, reply))
}

// Slots returns the slot vocabulary the server reported at connect
// time, with the values it had then; GetSlots fetches current values.
func (c *Client) Slots() []dref.SlotValue { return c.slots }

func (c *Client) Hostname() string { return c.hostname }

// HTTPPort is the server's status page port, as reported at connect
// time; 0 if the server couldn't start its HTTP listener.
func (c *Client) HTTPPort() int { return c.httpPort }

// Disconnect signs off and closes the connection. The client is
// unusable afterwards.
func (c *Client) Disconnect() error {
	err := c.call(server.SignOffRPC, c.token, nil)
	c.client.Close()
	return err
}

func (c *Client) GetStateUpdate() (*server.StateUpdate, error) {
	var update server.StateUpdate
	if err := c.call(server.GetStateUpdateRPC, c.token, &update); err != nil {
		return nil, err
	}
	return &update, nil
}

func (c *Client) SubmitMessage(to, msgType, packet string) error {
	return c.call(server.SubmitMessageRPC, &server.SubmitMessageArgs{
		ClientToken: c.token,
		To:          to,
		Type:        msgType,
		Packet:      packet,
	}, nil)
}

func (c *Client) SubmitRecord(record string) error {
	return c.call(server.SubmitRecordRPC, &server.SubmitRecordArgs{
		ClientToken: c.token,
		Record:      record,
	}, nil)
}

func (c *Client) SetCallsign(callsign string) error {
	return c.call(server.SetCallsignRPC, &server.SetCallsignArgs{
		ClientToken: c.token,
		Callsign:    callsign,
	}, nil)
}

func (c *Client) SetPower(on bool) error {
	return c.call(server.SetPowerRPC, &server.SetPowerArgs{
		ClientToken: c.token,
		On:          on,
	}, nil)
}

func (c *Client) ClearInbox() error {
	return c.call(server.ClearInboxRPC, c.token, nil)
}

// ReadError takes the server's error slot; empty means no error since
// the last read.
func (c *Client) ReadError() (string, error) {
	var e string
	err := c.call(server.ReadErrorRPC, c.token, &e)
	return e, err
}

func (c *Client) GetSlots() ([]dref.SlotValue, error) {
	var slots []dref.SlotValue
	if err := c.call(server.GetSlotsRPC, c.token, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func (c *Client) SetStringSlot(name, value string) error {
	return c.call(server.SetStringSlotRPC, &server.SetStringSlotArgs{
		ClientToken: c.token,
		Name:        name,
		Value:       value,
	}, nil)
}

func (c *Client) SetBoolSlot(name string, value bool) error {
	return c.call(server.SetBoolSlotRPC, &server.SetBoolSlotArgs{
		ClientToken: c.token,
		Name:        name,
		Value:       value,
	}, nil)
}
