//go:build linux

package platform

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/ancwrd1/snx-rs-sub001/internal/model"
)

// installStates builds and adds the inbound and outbound XFRM states for
// session, returning them so Cleanup/Rekey can reverse or replace them.
func installStates(gateway net.IP, inner net.IP, session *model.IpsecSession, nattPort int) (in, out *netlink.XfrmState, err error) {
	in = xfrmState(gateway, inner, session.EspIn, nattPort)
	out = xfrmState(inner, gateway, session.EspOut, nattPort)

	if err := netlink.XfrmStateAdd(in); err != nil {
		return nil, nil, fmt.Errorf("platform: add inbound SA: %w", err)
	}
	if err := netlink.XfrmStateAdd(out); err != nil {
		netlink.XfrmStateDel(in)
		return nil, nil, fmt.Errorf("platform: add outbound SA: %w", err)
	}
	return in, out, nil
}

func xfrmState(src, dst net.IP, keys model.SaKeys, nattPort int) *netlink.XfrmState {
	state := &netlink.XfrmState{
		Src:   src,
		Dst:   dst,
		Proto: netlink.XFRM_PROTO_ESP,
		Mode:  netlink.XFRM_MODE_TUNNEL,
		Spi:   int(keys.Spi),
		Auth: &netlink.XfrmStateAlgo{
			Name: algoName(keys.AuthAlg),
			Key:  keys.AuthKey,
		},
		Crypt: &netlink.XfrmStateAlgo{
			Name: algoName(keys.EncAlg),
			Key:  keys.EncKey,
		},
		ESN: keys.ESN,
	}
	if nattPort > 0 {
		state.Encap = &netlink.XfrmStateEncap{
			Type:    netlink.XFRM_ENCAP_ESPINUDP,
			SrcPort: nattPort,
			DstPort: nattPort,
			OriginalAddress: dst,
		}
	}
	return state
}

// algoName maps the gateway's algorithm identifiers (as carried in SaKeys)
// onto the kernel crypto-API names XFRM expects.
func algoName(alg string) string {
	switch alg {
	case "aes256", "AES-256":
		return "cbc(aes)"
	case "sha1", "SHA1":
		return "hmac(sha1)"
	case "sha256", "SHA256":
		return "hmac(sha256)"
	default:
		return alg
	}
}

func deleteState(state *netlink.XfrmState) error {
	if state == nil {
		return nil
	}
	return netlink.XfrmStateDel(state)
}

// installPolicies installs the 0.0.0.0/0 in/out policies templated to the
// inbound/outbound SAs, per spec 4.6.
func installPolicies(gateway, inner net.IP, in, out *netlink.XfrmState) (inPolicy, outPolicy *netlink.XfrmPolicy, err error) {
	anyNet := &net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)}

	outPolicy = &netlink.XfrmPolicy{
		Src: anyNet,
		Dst: anyNet,
		Dir: netlink.XFRM_DIR_OUT,
		Tmpls: []netlink.XfrmPolicyTmpl{
			{Src: inner, Dst: gateway, Proto: netlink.XFRM_PROTO_ESP, Mode: netlink.XFRM_MODE_TUNNEL, Spi: out.Spi},
		},
	}
	inPolicy = &netlink.XfrmPolicy{
		Src: anyNet,
		Dst: anyNet,
		Dir: netlink.XFRM_DIR_IN,
		Tmpls: []netlink.XfrmPolicyTmpl{
			{Src: gateway, Dst: inner, Proto: netlink.XFRM_PROTO_ESP, Mode: netlink.XFRM_MODE_TUNNEL, Spi: in.Spi},
		},
	}

	if err := netlink.XfrmPolicyAdd(outPolicy); err != nil {
		return nil, nil, fmt.Errorf("platform: add outbound policy: %w", err)
	}
	if err := netlink.XfrmPolicyAdd(inPolicy); err != nil {
		netlink.XfrmPolicyDel(outPolicy)
		return nil, nil, fmt.Errorf("platform: add inbound policy: %w", err)
	}
	return inPolicy, outPolicy, nil
}

func deletePolicy(p *netlink.XfrmPolicy) error {
	if p == nil {
		return nil
	}
	return netlink.XfrmPolicyDel(p)
}
