//go:build linux

package platform

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/vishvananda/netlink"
)

// tunnelLinkName names the dummy interface this configurator creates to
// represent "the tunnel's virtual interface" that routes and policies are
// bound to.
const tunnelLinkName = "snxtun0"

// createTunnelLink brings up a dummy link carrying the client's assigned
// inner address, used as the XFRM policies' and split routes' egress
// device.
func createTunnelLink(innerAddr net.IP) (netlink.Link, error) {
	link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: tunnelLinkName}}
	if err := netlink.LinkAdd(link); err != nil {
		return nil, fmt.Errorf("platform: create tunnel link: %w", err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		netlink.LinkDel(link)
		return nil, fmt.Errorf("platform: bring up tunnel link: %w", err)
	}
	addr := &netlink.Addr{IPNet: &net.IPNet{IP: innerAddr, Mask: net.CIDRMask(32, 32)}}
	if err := netlink.AddrAdd(link, addr); err != nil {
		netlink.LinkDel(link)
		return nil, fmt.Errorf("platform: assign inner address: %w", err)
	}
	return link, nil
}

func removeTunnelLink(link netlink.Link) error {
	if link == nil {
		return nil
	}
	return netlink.LinkDel(link)
}

// sysctlPaths are the knobs toggled to suppress the IPv6 data plane for the
// lifetime of the connection, per spec 4.6.
var sysctlPaths = []string{
	"/proc/sys/net/ipv6/conf/all/disable_ipv6",
	"/proc/sys/net/ipv6/conf/default/disable_ipv6",
}

func disableIPv6() error {
	for _, p := range sysctlPaths {
		if err := writeSysctl(p, "1"); err != nil {
			return fmt.Errorf("platform: disable ipv6 via %s: %w", p, err)
		}
	}
	return nil
}

func restoreIPv6() error {
	for _, p := range sysctlPaths {
		_ = writeSysctl(p, "0")
	}
	return nil
}

func writeSysctl(path, value string) error {
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(value), 0644)
}

// applyDNS steers DNS through resolvectl when the platform tool is present,
// mirroring the teacher's "call the CLI when there is no clean syscall
// path" idiom (internal/ipsec/linux.go's swanctl fallback).
func applyDNS(linkName string, servers []net.IP, suffixes []string) error {
	if _, err := exec.LookPath("resolvectl"); err != nil {
		return nil
	}
	if len(servers) > 0 {
		args := append([]string{"dns", linkName}, ipsToStrings(servers)...)
		if err := exec.Command("resolvectl", args...).Run(); err != nil {
			return fmt.Errorf("platform: resolvectl dns: %w", err)
		}
	}
	if len(suffixes) > 0 {
		args := append([]string{"domain", linkName}, suffixes...)
		if err := exec.Command("resolvectl", args...).Run(); err != nil {
			return fmt.Errorf("platform: resolvectl domain: %w", err)
		}
	}
	return nil
}

func revertDNS(linkName string) {
	if _, err := exec.LookPath("resolvectl"); err != nil {
		return
	}
	exec.Command("resolvectl", "revert", linkName).Run()
}

func ipsToStrings(ips []net.IP) []string {
	out := make([]string, len(ips))
	for i, ip := range ips {
		out[i] = ip.String()
	}
	return out
}
