package connector

import (
	"context"
	"fmt"
	"net"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
	"github.com/ancwrd1/snx-rs-sub001/internal/ccc"
	"github.com/ancwrd1/snx-rs-sub001/internal/model"
	"github.com/ancwrd1/snx-rs-sub001/internal/natt"
	"github.com/ancwrd1/snx-rs-sub001/internal/platform"
	"github.com/ancwrd1/snx-rs-sub001/internal/tunnel/ipsec"
	"github.com/ancwrd1/snx-rs-sub001/internal/tunnelevent"
)

// IPsecConnector drives the CCC login handshake and, on success, fetches
// ESP key material and runs the IPsec tunnel driver. IKE/ISAKMP negotiation
// itself is treated as an external black box: this connector only consumes
// the gateway-issued SA keys, it does not speak ISAKMP.
type IPsecConnector struct {
	params *model.TunnelParams
	client *ccc.Client
}

// NewIPsecConnector builds a connector for the given tunnel configuration.
func NewIPsecConnector(params *model.TunnelParams) *IPsecConnector {
	return &IPsecConnector{
		params: params,
		client: ccc.New(params.ServerName, params.IgnoreServerCert),
	}
}

// Authenticate implements TunnelConnector.
func (c *IPsecConnector) Authenticate(ctx context.Context) (*model.VpnSession, error) {
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
func (c *IPsecConnector) ChallengeCode(ctx context.Context, session *model.VpnSession, code string) (*model.VpnSession, error) {
	result, err := c.client.ChallengeCode(ctx, session.CCCSessionID, code)
	if err != nil {
		return nil, err
	}
	return &model.VpnSession{CCCSessionID: result.SessionID, State: result.State}, nil
}

// RestoreSession implements TunnelConnector. This client keeps no
// persisted session store, so resuming a prior CCC session is never
// possible.
func (c *IPsecConnector) RestoreSession(ctx context.Context) (*model.VpnSession, error) {
	return nil, apperror.New(apperror.NotImplemented, "ipsec: restore_session not supported")
}

// HandleTunnelEvent implements TunnelConnector. get_ipsec_keys is
// pull-based: a RekeyCheck means "ask the gateway whether it has new SA
// material offered", not that new material already arrived. Any other
// answer than a fresh IpsecSession (including no change) is not worth a
// ReKey command; an offered session whose inbound and outbound SPIs match
// the current one counts as no change.
func (c *IPsecConnector) HandleTunnelEvent(ctx context.Context, session *model.VpnSession, event tunnelevent.Event) (*tunnelevent.Command, error) {
	if event.Kind != tunnelevent.RekeyCheck {
		return nil, nil
	}

	keys, err := c.client.GetIpsecKeys(ctx, session.CCCSessionID)
	if err != nil {
		return nil, err
	}
	if cur := session.IpsecSession; cur != nil && cur.EspIn.Spi == keys.Session.EspIn.Spi && cur.EspOut.Spi == keys.Session.EspOut.Spi {
		return nil, nil
	}
	session.IpsecSession = keys.Session

	return &tunnelevent.Command{Kind: tunnelevent.ReKey, Session: keys.Session}, nil
}

// CreateTunnel implements TunnelConnector: it fetches office-mode settings
// and ESP keys, computes the route set, installs kernel state through the
// platform configurator, and runs the IPsec driver until termination.
func (c *IPsecConnector) CreateTunnel(ctx context.Context, session *model.VpnSession, commands <-chan tunnelevent.Command, events chan<- tunnelevent.Event) error {
	authenticated, ok := session.State.(model.Authenticated)
	if !ok {
		return apperror.New(apperror.Auth, "ipsec: create_tunnel called before authentication completed")
	}

	settings, err := c.client.GetClientSettings(ctx, session.CCCSessionID, authenticated.ActiveKey)
	if err != nil {
		return err
	}

	keys, err := c.client.GetIpsecKeys(ctx, session.CCCSessionID)
	if err != nil {
		return err
	}
	session.IpsecSession = keys.Session

	gateway := net.ParseIP(c.params.ServerName)
	if gateway == nil {
		ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", c.params.ServerName)
		if err != nil || len(ips) == 0 {
			return apperror.Newf(apperror.Network, "ipsec: resolve gateway address %q", c.params.ServerName)
		}
		gateway = ips[0]
	}

	nattPort := natt.DefaultPort
	socket, err := natt.Listen(&net.UDPAddr{Port: 0})
	if err != nil {
		return err
	}
	defer socket.Close()

	prober := natt.NewProber(gateway)
	if err := prober.Probe(socket); err != nil {
		return err
	}

	routes := computeRoutes(settings, c.params)

	configurator := platform.New()
	driver := ipsec.New(configurator, socket, fmt.Sprintf("%s:%d", c.params.ServerName, 18234), func(ctx context.Context) error {
		return c.client.Signout(ctx, session.CCCSessionID)
	}, commands, events)

	params := platform.ConfigureParams{
		GatewayAddr: gateway,
		Session:     session.IpsecSession,
		NATTPort:    nattPort,
		Routes:      routes,
		FullTunnel:  len(routes) == 0,
		DisableIPv6: c.params.IPv6 == model.IPv6Disable,
	}

	return driver.Run(ctx, params)
}

// TerminateTunnel implements TunnelConnector.
func (c *IPsecConnector) TerminateTunnel(ctx context.Context, session *model.VpnSession) error {
	return c.client.Signout(ctx, session.CCCSessionID)
}

// computeRoutes converts the office-mode policy into the set of routes to
// install: the "updated_policies" address ranges when the gateway supplied
// any (the common case), falling back to the single legacy "subnet" field
// otherwise. Either way, routes contained within params.IgnoreRoutes are
// dropped (scenario 5's split-exclude behavior).
func computeRoutes(settings *ccc.ClientSettings, params *model.TunnelParams) []*net.IPNet {
	if settings == nil {
		return nil
	}

	var nets []*net.IPNet
	if len(settings.Ranges) > 0 {
		nets = platform.RangesToSubnets(settings.Ranges)
	} else if settings.Subnet != "" {
		if _, subnet, err := net.ParseCIDR(settings.Subnet); err == nil {
			nets = []*net.IPNet{subnet}
		}
	}
	if len(nets) == 0 {
		return nil
	}

	ignore := platform.ParseCIDRList(params.IgnoreRoutes)
	return platform.FilterIgnored(nets, ignore)
}
