//go:build linux

package platform

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/vishvananda/netlink"
	"go.uber.org/multierr"

	"github.com/ancwrd1/snx-rs-sub001/internal/model"
)

// LinuxConfigurator installs and tears down the kernel-level IPsec state
// for a tunnel using vishvananda/netlink's XFRM and routing APIs.
type LinuxConfigurator struct {
	mu sync.Mutex

	gateway  net.IP
	nattPort int

	link netlink.Link

	inState, outState     *netlink.XfrmState
	inPolicy, outPolicy   *netlink.XfrmPolicy
	keepaliveRule         *netlink.Rule
	splitRoutes           []*netlink.Route
	fullTunnelRoute       *netlink.Route
	gatewayEscapeRule     *netlink.Rule
	ipv6Disabled          bool
	dnsApplied            bool
}

// NewLinuxConfigurator builds a not-yet-configured LinuxConfigurator.
func NewLinuxConfigurator() *LinuxConfigurator {
	return &LinuxConfigurator{}
}

// Configure implements IpsecConfigurator.
func (c *LinuxConfigurator) Configure(ctx context.Context, params ConfigureParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if params.Session == nil {
		return fmt.Errorf("platform: configure: no ipsec session")
	}
	c.gateway = params.GatewayAddr
	c.nattPort = params.NATTPort

	inner := net.ParseIP(params.Session.InnerIPv4)
	if inner == nil {
		return fmt.Errorf("platform: configure: invalid inner address %q", params.Session.InnerIPv4)
	}

	link, err := createTunnelLink(inner)
	if err != nil {
		return err
	}
	c.link = link

	in, out, err := installStates(c.gateway, inner, params.Session, c.nattPort)
	if err != nil {
		c.rollback()
		return err
	}
	c.inState, c.outState = in, out

	inPolicy, outPolicy, err := installPolicies(c.gateway, inner, in, out)
	if err != nil {
		c.rollback()
		return err
	}
	c.inPolicy, c.outPolicy = inPolicy, outPolicy

	rule, err := installKeepaliveRouting(c.gateway)
	if err != nil {
		c.rollback()
		return err
	}
	c.keepaliveRule = rule

	linkIndex := link.Attrs().Index
	if params.FullTunnel {
		route, escapeRule, err := installFullTunnelRoute(linkIndex, c.gateway)
		if err != nil {
			c.rollback()
			return err
		}
		c.fullTunnelRoute, c.gatewayEscapeRule = route, escapeRule
	} else {
		routes, err := installSplitRoutes(linkIndex, params.Routes)
		if err != nil {
			c.rollback()
			return err
		}
		c.splitRoutes = routes
	}

	if params.DisableIPv6 {
		if err := disableIPv6(); err != nil {
			c.rollback()
			return err
		}
		c.ipv6Disabled = true
	}

	if len(params.DNSServers) > 0 || len(params.DNSSuffixes) > 0 {
		if err := applyDNS(tunnelLinkName, params.DNSServers, params.DNSSuffixes); err != nil {
			c.rollback()
			return err
		}
		c.dnsApplied = true
	}

	return nil
}

// Rekey implements IpsecConfigurator: it atomically swaps the ESP states
// for new SPIs/keys while leaving policies and routes untouched.
func (c *LinuxConfigurator) Rekey(ctx context.Context, session *model.IpsecSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inState == nil || c.outState == nil {
		return fmt.Errorf("platform: rekey: tunnel not configured")
	}
	inner := net.ParseIP(session.InnerIPv4)
	newIn := xfrmState(c.gateway, inner, session.EspIn, c.nattPort)
	newOut := xfrmState(inner, c.gateway, session.EspOut, c.nattPort)

	if err := netlink.XfrmStateUpdate(newIn); err != nil {
		if err := netlink.XfrmStateAdd(newIn); err != nil {
			return fmt.Errorf("platform: rekey inbound SA: %w", err)
		}
	}
	if err := netlink.XfrmStateUpdate(newOut); err != nil {
		if err := netlink.XfrmStateAdd(newOut); err != nil {
			return fmt.Errorf("platform: rekey outbound SA: %w", err)
		}
	}

	deleteState(c.inState)
	deleteState(c.outState)
	c.inState, c.outState = newIn, newOut
	return nil
}

// Cleanup implements IpsecConfigurator: it reverses every installation
// Configure performed, aggregating any teardown errors instead of stopping
// at the first one, and is safe to call more than once.
func (c *LinuxConfigurator) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollback()
}

func (c *LinuxConfigurator) rollback() error {
	var err error

	if c.dnsApplied {
		revertDNS(tunnelLinkName)
		c.dnsApplied = false
	}
	if c.ipv6Disabled {
		err = multierr.Append(err, restoreIPv6())
		c.ipv6Disabled = false
	}
	if c.fullTunnelRoute != nil || c.gatewayEscapeRule != nil {
		err = multierr.Append(err, removeRoute(c.fullTunnelRoute))
		err = multierr.Append(err, removeRule(c.gatewayEscapeRule))
		c.fullTunnelRoute, c.gatewayEscapeRule = nil, nil
	}
	if len(c.splitRoutes) > 0 {
		removeRoutes(c.splitRoutes)
		c.splitRoutes = nil
	}
	if c.keepaliveRule != nil {
		err = multierr.Append(err, removeKeepaliveRouting(c.keepaliveRule))
		c.keepaliveRule = nil
	}
	if c.inPolicy != nil || c.outPolicy != nil {
		err = multierr.Append(err, deletePolicy(c.inPolicy))
		err = multierr.Append(err, deletePolicy(c.outPolicy))
		c.inPolicy, c.outPolicy = nil, nil
	}
	if c.inState != nil || c.outState != nil {
		err = multierr.Append(err, deleteState(c.inState))
		err = multierr.Append(err, deleteState(c.outState))
		c.inState, c.outState = nil, nil
	}
	if c.link != nil {
		err = multierr.Append(err, removeTunnelLink(c.link))
		c.link = nil
	}
	return err
}
