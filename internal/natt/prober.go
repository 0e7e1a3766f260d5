package natt

import (
	"net"
	"time"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
)

// DefaultPort is the NAT-T UDP port (4500) ESP-in-UDP traffic uses.
const DefaultPort = 4500

// MaxProbes bounds how many probe attempts the NAT-T reachability check
// makes before giving up.
const MaxProbes = 3

const probeTimeout = 5 * time.Second

// Prober checks NAT-T reachability to a gateway by sending a 32-byte probe
// and expecting a 32-byte reply, retrying up to MaxProbes times.
type Prober struct {
	Address net.IP
	Port    int
}

// NewProber builds a Prober targeting DefaultPort on address.
func NewProber(address net.IP) *Prober {
	return &Prober{Address: address, Port: DefaultPort}
}

// Probe sends up to MaxProbes probes and returns nil on the first valid
// 32-byte reply, or a Timeout error if none of them succeed.
func (p *Prober) Probe(socket *Socket) error {
	addr := &net.UDPAddr{IP: p.Address, Port: p.Port}
	payload := make([]byte, 32)
	for attempt := 0; attempt < MaxProbes; attempt++ {
		reply, err := socket.SendReceiveTo(payload, probeTimeout, addr)
		if err != nil {
			continue
		}
		if len(reply) == 32 {
			return nil
		}
	}
	return apperror.New(apperror.Timeout, "natt: probe failed after max attempts")
}
