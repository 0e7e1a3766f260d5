package platform

import (
	"net"
	"testing"
)

func TestSplitExcludeRoutes(t *testing.T) {
	ranges := []AddressRange{
		{Start: net.ParseIP("10.1.0.0"), End: net.ParseIP("10.1.0.255")},
		{Start: net.ParseIP("192.168.1.0"), End: net.ParseIP("192.168.1.255")},
	}
	subnets := RangesToSubnets(ranges)
	ignore := ParseCIDRList([]string{"10.0.0.0/8"})
	allowed := FilterIgnored(subnets, ignore)

	if len(allowed) != 1 {
		t.Fatalf("expected exactly 1 route, got %d: %v", len(allowed), allowed)
	}
	if allowed[0].String() != "192.168.1.0/24" {
		t.Fatalf("expected 192.168.1.0/24, got %s", allowed[0].String())
	}
	for _, n := range allowed {
		if n.IP.String() == "10.1.0.0" {
			t.Fatalf("ignored subnet leaked through: %v", allowed)
		}
	}
}

func TestRangeToCIDRsExactBlock(t *testing.T) {
	got := rangeToCIDRs(net.ParseIP("10.1.0.0"), net.ParseIP("10.1.0.255"))
	if len(got) != 1 || got[0].String() != "10.1.0.0/24" {
		t.Fatalf("expected single /24, got %v", got)
	}
}

func TestRangeToCIDRsUnalignedSpansMultipleBlocks(t *testing.T) {
	got := rangeToCIDRs(net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.10"))
	if len(got) == 0 {
		t.Fatal("expected at least one CIDR block")
	}
	total := 0
	for _, n := range got {
		ones, bitsLen := n.Mask.Size()
		total += 1 << uint(bitsLen-ones)
	}
	if total != 10 {
		t.Fatalf("expected blocks to cover exactly 10 addresses, covered %d", total)
	}
}
