//go:build linux

package platform

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/ancwrd1/snx-rs-sub001/internal/keepalive"
)

// keepaliveTableID is the dedicated routing table used to divert gateway
// keepalive traffic away from the tunnel's default route.
const keepaliveTableID = 220

func linkIndexForRoutes(gateway net.IP) (int, error) {
	routes, err := netlink.RouteGet(gateway)
	if err != nil || len(routes) == 0 {
		return 0, fmt.Errorf("platform: resolve route to gateway %s: %w", gateway, err)
	}
	return routes[0].LinkIndex, nil
}

// installKeepaliveRouting adds a rule diverting keepalive-destined UDP
// traffic into keepaliveTableID, and a route in that table back out the
// gateway-facing interface so the diverted traffic still reaches the
// internet instead of being blackholed.
func installKeepaliveRouting(gateway net.IP) (*netlink.Rule, error) {
	linkIndex, err := linkIndexForRoutes(gateway)
	if err != nil {
		return nil, err
	}

	if err := netlink.RouteAdd(&netlink.Route{
		LinkIndex: linkIndex,
		Dst:       &net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)},
		Table:     keepaliveTableID,
	}); err != nil {
		return nil, fmt.Errorf("platform: add keepalive table route: %w", err)
	}

	rule := netlink.NewRule()
	rule.Table = keepaliveTableID
	rule.Dport = &netlink.RulePortRange{Start: uint16(keepalive.Port), End: uint16(keepalive.Port)}
	rule.IPProto = 17 // UDP

	if err := netlink.RuleAdd(rule); err != nil {
		return nil, fmt.Errorf("platform: add keepalive rule: %w", err)
	}
	return rule, nil
}

func removeKeepaliveRouting(rule *netlink.Rule) error {
	if rule == nil {
		return nil
	}
	netlink.RouteDel(&netlink.Route{Table: keepaliveTableID, Dst: &net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)}})
	return netlink.RuleDel(rule)
}

// installSplitRoutes adds one route per subnet through the tunnel's link.
func installSplitRoutes(linkIndex int, subnets []*net.IPNet) ([]*netlink.Route, error) {
	var installed []*netlink.Route
	for _, subnet := range subnets {
		route := &netlink.Route{LinkIndex: linkIndex, Dst: subnet}
		if err := netlink.RouteAdd(route); err != nil {
			removeRoutes(installed)
			return nil, fmt.Errorf("platform: add split route %s: %w", subnet, err)
		}
		installed = append(installed, route)
	}
	return installed, nil
}

// installFullTunnelRoute replaces the default route with one through the
// tunnel's link and installs a rule so gateway-bound traffic still escapes
// via the original table rather than looping back through the tunnel.
func installFullTunnelRoute(linkIndex int, gateway net.IP) (*netlink.Route, *netlink.Rule, error) {
	defaultRoute := &netlink.Route{
		LinkIndex: linkIndex,
		Dst:       &net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)},
	}
	if err := netlink.RouteAdd(defaultRoute); err != nil {
		return nil, nil, fmt.Errorf("platform: add full-tunnel default route: %w", err)
	}

	rule := netlink.NewRule()
	rule.Dst = &net.IPNet{IP: gateway, Mask: net.CIDRMask(32, 32)}
	rule.Table = keepaliveTableID
	rule.Invert = true
	if err := netlink.RuleAdd(rule); err != nil {
		netlink.RouteDel(defaultRoute)
		return nil, nil, fmt.Errorf("platform: add gateway-escape rule: %w", err)
	}
	return defaultRoute, rule, nil
}

func removeRoutes(routes []*netlink.Route) {
	for _, r := range routes {
		netlink.RouteDel(r)
	}
}

func removeRoute(r *netlink.Route) error {
	if r == nil {
		return nil
	}
	return netlink.RouteDel(r)
}

func removeRule(r *netlink.Rule) error {
	if r == nil {
		return nil
	}
	return netlink.RuleDel(r)
}
