// Package platform implements the IpsecConfigurator capability (C6): XFRM
// SA/policy installation, routing table/rule management for keepalive
// diversion and split/full-tunnel routing, DNS steering, and IPv6
// suppression. The Linux implementation is grounded on
// github.com/vishvananda/netlink; other platforms get a stub.
package platform

import (
	"context"
	"net"

	"github.com/ancwrd1/snx-rs-sub001/internal/model"
)

// ConfigureParams bundles everything Configure needs to install a tunnel's
// kernel state.
type ConfigureParams struct {
	// GatewayAddr is the security gateway's public IPv4 address.
	GatewayAddr net.IP
	// Session carries the negotiated SPI/key material and the inner
	// client address.
	Session *model.IpsecSession
	// NATTPort is the NAT-T UDP port to encapsulate ESP in; 0 means
	// native ESP with no UDP encapsulation.
	NATTPort int
	// Routes is the final, already-filtered set of subnets to route
	// through the tunnel (office-mode ranges minus ignore_routes).
	Routes []*net.IPNet
	// FullTunnel installs a default route through the tunnel plus a rule
	// diverting gateway-bound traffic around it.
	FullTunnel bool
	// DNSServers and DNSSuffixes are applied via the resolver
	// configurator when non-empty.
	DNSServers  []net.IP
	DNSSuffixes []string
	// DisableIPv6 suppresses the IPv6 data plane for the lifetime of the
	// connection via sysctl knobs.
	DisableIPv6 bool
}

// IpsecConfigurator is the platform capability boundary for installing and
// tearing down a tunnel's kernel-level state. Configure/Rekey/Cleanup
// follow the C9 driver's state machine exactly.
type IpsecConfigurator interface {
	// Configure installs inbound/outbound XFRM states and policies, the
	// keepalive routing table/rule, split or full-tunnel routes, and
	// (if requested) IPv6 suppression.
	Configure(ctx context.Context, params ConfigureParams) error
	// Rekey atomically replaces the ESP states with new SPIs/keys while
	// preserving the already-installed policies and routes.
	Rekey(ctx context.Context, session *model.IpsecSession) error
	// Cleanup reverses every installation Configure performed. It is
	// idempotent and must be safe to call multiple times, including
	// after a partially-failed Configure.
	Cleanup(ctx context.Context) error
}
