// Package tunnelevent defines the event and command vocabulary that flows
// between a tunnel driver (C9/C10) and its connector: commands flow in on
// an inbound channel, events flow out on an outbound channel, per the
// concurrency model's single-inbound/single-outbound channel invariant.
package tunnelevent

import "github.com/ancwrd1/snx-rs-sub001/internal/model"

// Kind discriminates the outbound events a tunnel driver can emit.
type Kind int

const (
	Connected Kind = iota
	Disconnected
	RekeyCheck
	RemoteControlData
	TrafficStats
)

// Event is one outbound occurrence from a running tunnel.
type Event struct {
	Kind     Kind
	Data     []byte // valid when Kind == RemoteControlData
	Err      error  // set when Disconnected was caused by an error
	BytesIn  uint64 // valid when Kind == TrafficStats: cumulative totals
	BytesOut uint64 // valid when Kind == TrafficStats: cumulative totals
}

// CommandKind discriminates the inbound commands a caller can send to a
// running tunnel driver.
type CommandKind int

const (
	Terminate CommandKind = iota
	ReKey
)

// Command is one inbound instruction to a running tunnel driver.
type Command struct {
	Kind CommandKind
	// Signout is only meaningful for Terminate: true when the user
	// initiated the disconnect, false when the driver is tearing itself
	// down after a fatal error. Only a user-initiated terminate signs out
	// of the gateway session.
	Signout bool
	// Session carries the new IPsec session material for a ReKey command.
	Session *model.IpsecSession
}
