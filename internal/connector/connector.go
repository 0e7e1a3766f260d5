// Package connector implements the TunnelConnector state machines (C11):
// the SSL and IPsec variants each drive the CCC authentication handshake
// to completion and then hand off to their respective tunnel driver.
package connector

import (
	"context"

	"github.com/ancwrd1/snx-rs-sub001/internal/model"
	"github.com/ancwrd1/snx-rs-sub001/internal/tunnelevent"
)

// TunnelConnector is the capability boundary a caller (the status API /
// CLI command layer) drives a connection through: authenticate (possibly
// across several MFA factors), establish the tunnel, forward tunnel
// events, and terminate cleanly.
type TunnelConnector interface {
	// Authenticate submits the first factor of the configured login
	// option and returns the resulting session, which may still be
	// PendingChallenge if more factors are required.
	Authenticate(ctx context.Context) (*model.VpnSession, error)
	// ChallengeCode submits a follow-up MFA factor against a session
	// returned by a prior Authenticate/ChallengeCode call.
	ChallengeCode(ctx context.Context, session *model.VpnSession, code string) (*model.VpnSession, error)
	// RestoreSession attempts to recover a previously Authenticated session
	// without re-running the MFA sequence. Connectors that have no such
	// mechanism return apperror.NotImplemented.
	RestoreSession(ctx context.Context) (*model.VpnSession, error)
	// CreateTunnel brings up the data-plane tunnel for an Authenticated
	// session and blocks until it ends; events are delivered on events
	// and commands are accepted on commands.
	CreateTunnel(ctx context.Context, session *model.VpnSession, commands <-chan tunnelevent.Command, events chan<- tunnelevent.Event) error
	// TerminateTunnel best-effort signs out of the gateway session.
	TerminateTunnel(ctx context.Context, session *model.VpnSession) error
	// HandleTunnelEvent reacts to an event emitted by the running tunnel
	// driver that the driver itself cannot resolve (the protocol is
	// pull-based: a RekeyCheck means "ask the gateway whether new SA
	// material is available", not "here is new SA material"). It returns
	// a command to send back to the driver, or nil if the event requires
	// no response.
	HandleTunnelEvent(ctx context.Context, session *model.VpnSession, event tunnelevent.Event) (*tunnelevent.Command, error)
}
