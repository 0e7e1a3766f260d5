package connector

import (
	"context"
	"crypto/tls"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
	"github.com/ancwrd1/snx-rs-sub001/internal/ccc"
	"github.com/ancwrd1/snx-rs-sub001/internal/model"
	"github.com/ancwrd1/snx-rs-sub001/internal/sexpr"
	"github.com/ancwrd1/snx-rs-sub001/internal/tunnel/ssl"
	"github.com/ancwrd1/snx-rs-sub001/internal/tunnelevent"
)

// SSLConnector drives the SSL-tunnel login sequence and, once
// authenticated, the SSL data-plane driver.
type SSLConnector struct {
	params *model.TunnelParams
	client *ccc.Client
}

// NewSSLConnector builds a connector for the given tunnel configuration.
func NewSSLConnector(params *model.TunnelParams) *SSLConnector {
	return &SSLConnector{
		params: params,
		client: ccc.New(params.ServerName, params.IgnoreServerCert),
	}
}

// LoginOption resolves the gateway's advertised login recipe matching the
// configured login type, for callers (CLI prompt sequencing) that need the
// factor list before authenticating.
func (c *SSLConnector) LoginOption(ctx context.Context) (*model.LoginOption, error) {
	info, err := c.client.GetServerInfo(ctx)
	if err != nil {
		return nil, err
	}
	for i := range info.LoginOptions {
		if info.LoginOptions[i].ID == c.params.LoginType {
			return &info.LoginOptions[i], nil
		}
	}
	return nil, apperror.Newf(apperror.Config, "ssl: login option %q not offered by gateway", c.params.LoginType)
}

// Authenticate implements TunnelConnector. A configured username/password
// short-circuits straight to the gateway's authenticate call; an empty
// username (certificate, SAML, or OTP-only flows) still issues the call
// with blank credentials so the gateway decides the first prompt.
func (c *SSLConnector) Authenticate(ctx context.Context) (*model.VpnSession, error) {
	password := ""
	if c.params.Password != nil {
		password = c.params.Password.Reveal()
	}

	result, err := c.client.Authenticate(ctx, c.params.LoginType, c.params.UserName, password)
	if err != nil {
		return nil, err
	}
	return &model.VpnSession{CCCSessionID: result.SessionID, State: result.State}, nil
}

// ChallengeCode implements TunnelConnector.
func (c *SSLConnector) ChallengeCode(ctx context.Context, session *model.VpnSession, code string) (*model.VpnSession, error) {
	result, err := c.client.ChallengeCode(ctx, session.CCCSessionID, code)
	if err != nil {
		return nil, err
	}
	return &model.VpnSession{CCCSessionID: result.SessionID, State: result.State}, nil
}

// RestoreSession implements TunnelConnector. This client keeps no
// persisted session store, so resuming a prior CCC session is never
// possible.
func (c *SSLConnector) RestoreSession(ctx context.Context) (*model.VpnSession, error) {
	return nil, apperror.New(apperror.NotImplemented, "ssl: restore_session not supported")
}

// HandleTunnelEvent implements TunnelConnector. It never returns a command:
// the SSL driver emits no RekeyCheck events and does not surface inbound
// Control frames as events.
func (c *SSLConnector) HandleTunnelEvent(ctx context.Context, session *model.VpnSession, event tunnelevent.Event) (*tunnelevent.Command, error) {
	return nil, nil
}

// CreateTunnel implements TunnelConnector: it dials the gateway's SSL
// tunnel endpoint, authenticates the transport with the session's active
// key, and runs the multiplex driver until termination. It emits Connected
// once the handshake succeeds and Disconnected when the driver returns.
func (c *SSLConnector) CreateTunnel(ctx context.Context, session *model.VpnSession, commands <-chan tunnelevent.Command, events chan<- tunnelevent.Event) error {
	authenticated, ok := session.State.(model.Authenticated)
	if !ok {
		return apperror.New(apperror.Auth, "ssl: create_tunnel called before authentication completed")
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: c.params.IgnoreServerCert}
	hello := sexpr.Obj("hello",
		sexpr.Field("active_key", sexpr.Val(authenticated.ActiveKey)),
		sexpr.Field("protocol_version", sexpr.Val("1")),
	)

	conn, err := ssl.Dial(ctx, sslEndpoint(c.params.ServerName), tlsConfig, hello)
	if err != nil {
		return err
	}

	driver := ssl.New(conn, commands, events)
	events <- tunnelevent.Event{Kind: tunnelevent.Connected}
	err = driver.Run(ctx)
	events <- tunnelevent.Event{Kind: tunnelevent.Disconnected, Err: err}
	return err
}

// TerminateTunnel implements TunnelConnector.
func (c *SSLConnector) TerminateTunnel(ctx context.Context, session *model.VpnSession) error {
	return c.client.Signout(ctx, session.CCCSessionID)
}

func sslEndpoint(serverName string) string {
	return serverName + ":443"
}
