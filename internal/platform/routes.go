package platform

import (
	"encoding/binary"
	"math/bits"
	"net"
)

// AddressRange is a start-end inclusive IPv4 range as returned by the
// gateway's "updated_policies" office-mode data.
type AddressRange struct {
	Start net.IP
	End   net.IP
}

// RangesToSubnets converts each AddressRange into the minimal set of CIDR
// blocks that exactly cover it.
func RangesToSubnets(ranges []AddressRange) []*net.IPNet {
	var out []*net.IPNet
	for _, r := range ranges {
		out = append(out, rangeToCIDRs(r.Start, r.End)...)
	}
	return out
}

func ip4ToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	return binary.BigEndian.Uint32(v4)
}

func uint32ToIP4(v uint32) net.IP {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// rangeToCIDRs implements the standard range-to-CIDR-blocks algorithm: at
// each step, emit the largest block starting at "lo" that both aligns to a
// power-of-two boundary and does not overshoot "hi".
func rangeToCIDRs(start, end net.IP) []*net.IPNet {
	lo := uint64(ip4ToUint32(start))
	hi := uint64(ip4ToUint32(end))
	var out []*net.IPNet
	for lo <= hi {
		// Largest block size allowed by lo's alignment: the number of
		// trailing zero bits in lo (32 for lo == 0).
		alignBits := 32
		if lo != 0 {
			alignBits = bits.TrailingZeros32(uint32(lo))
		}

		// Largest block size that does not overshoot the remaining span.
		span := hi - lo + 1
		spanBits := bits.Len64(span) - 1

		prefixBitsFromAlign := 32 - alignBits
		prefixBitsFromSpan := 32 - spanBits
		prefixBits := prefixBitsFromAlign
		if prefixBitsFromSpan > prefixBits {
			prefixBits = prefixBitsFromSpan
		}

		blockSize := uint64(1) << uint(32-prefixBits)
		out = append(out, &net.IPNet{
			IP:   uint32ToIP4(uint32(lo)),
			Mask: net.CIDRMask(prefixBits, 32),
		})
		lo += blockSize
	}
	return out
}

// FilterIgnored drops any subnet in nets that is fully contained within one
// of the ignore subnets.
func FilterIgnored(nets []*net.IPNet, ignore []*net.IPNet) []*net.IPNet {
	var out []*net.IPNet
	for _, n := range nets {
		if !containedInAny(n, ignore) {
			out = append(out, n)
		}
	}
	return out
}

func containedInAny(n *net.IPNet, ignore []*net.IPNet) bool {
	for _, ig := range ignore {
		igOnes, _ := ig.Mask.Size()
		nOnes, _ := n.Mask.Size()
		if nOnes >= igOnes && ig.Contains(n.IP) {
			return true
		}
	}
	return false
}

// ParseCIDRList parses a StringList of CIDR strings, skipping any entry
// that fails to parse as a CIDR.
func ParseCIDRList(entries []string) []*net.IPNet {
	var out []*net.IPNet
	for _, e := range entries {
		_, n, err := net.ParseCIDR(e)
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}
