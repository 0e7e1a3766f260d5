// Package ipsec implements the IPsec tunnel driver (C9): it drives the
// platform configurator through Init -> Running -> Stopping -> Done,
// alongside a keepalive runner, a NAT-T listener, and a periodic
// rekey-check ticker, and emits Connected/Disconnected events on its
// outbound channel while listening for Terminate/ReKey commands on its
// inbound one.
package ipsec

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
	"github.com/ancwrd1/snx-rs-sub001/internal/keepalive"
	"github.com/ancwrd1/snx-rs-sub001/internal/natt"
	"github.com/ancwrd1/snx-rs-sub001/internal/platform"
	"github.com/ancwrd1/snx-rs-sub001/internal/tunnelevent"
)

// RekeyCheckInterval is the cadence of the secondary task that emits
// RekeyCheck events; the connector answers each one with a get_ipsec_keys
// round trip and issues a ReKey only when the offered SPIs differ from the
// current ones.
const RekeyCheckInterval = 10 * time.Second

// SignoutFunc best-effort notifies the gateway the session is ending; the
// driver ignores its error since teardown must proceed regardless.
type SignoutFunc func(ctx context.Context) error

// Driver runs one IPsec tunnel's lifetime: kernel state installation,
// liveness probing, and periodic rekey-check notification, until a
// Terminate command or a keepalive failure ends it.
type Driver struct {
	configurator platform.IpsecConfigurator
	socket       *natt.Socket
	keepaliveRun *keepalive.Runner
	signout      SignoutFunc

	commands <-chan tunnelevent.Command
	events   chan<- tunnelevent.Event

	ready *atomic.Bool
}

// alwaysOnline is the default OnlineProber when the caller has no better
// connectivity signal; it never gates keepalive sends.
type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

// socketTransport adapts a *natt.Socket, which addresses replies with
// *net.UDPAddr, to keepalive.Transport's string-address shape.
type socketTransport struct {
	socket *natt.Socket
}

func (t socketTransport) SendReceiveTo(payload []byte, timeout time.Duration, addr string) ([]byte, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, apperror.Wrap(apperror.Network, "ipsec: resolve keepalive address", err)
	}
	return t.socket.SendReceiveTo(payload, timeout, udpAddr)
}

// New builds a Driver. socket is the NAT-T UDP socket also used for ESP
// traffic; keepaliveDest is "host:port" for the gateway's liveness
// endpoint. signout may be nil when the driver should never sign out
// (e.g. a background rekey-only connector).
func New(configurator platform.IpsecConfigurator, socket *natt.Socket, keepaliveDest string, signout SignoutFunc, commands <-chan tunnelevent.Command, events chan<- tunnelevent.Event) *Driver {
	ready := &atomic.Bool{}
	runner := keepalive.NewRunner(socketTransport{socket: socket}, alwaysOnline{}, ready, keepaliveDest)
	return &Driver{
		configurator: configurator,
		socket:       socket,
		keepaliveRun: runner,
		signout:      signout,
		commands:     commands,
		events:       events,
		ready:        ready,
	}
}

// Run installs the tunnel and blocks until Terminate is received or the
// keepalive runner reports failure, then tears everything down. Once
// Configure has succeeded, every exit path runs Cleanup; if Configure itself
// fails, Run returns that error without calling Cleanup.
func (d *Driver) Run(ctx context.Context, params platform.ConfigureParams) error {
	if err := d.configurator.Configure(ctx, params); err != nil {
		return apperror.Wrap(apperror.Configure, "ipsec: configure", err)
	}
	d.ready.Store(true)
	d.events <- tunnelevent.Event{Kind: tunnelevent.Connected}

	// C8: start accepting inbound non-ESP datagrams on the NAT-T socket
	// (ESP itself is intercepted by the kernel's XFRM state, never reaching
	// here) now that the tunnel is in the Running state.
	listener := natt.StartListener(d.socket, d.events)

	stopKeepalive := make(chan struct{})
	keepaliveErr := make(chan error, 1)
	go func() {
		keepaliveErr <- d.keepaliveRun.Run(stopKeepalive)
	}()

	rekeyTicker := time.NewTicker(RekeyCheckInterval)
	defer rekeyTicker.Stop()

	var runErr error
	var signoutOnExit bool
	keepaliveDrained := false

loop:
	for {
		select {
		case cmd := <-d.commands:
			switch cmd.Kind {
			case tunnelevent.Terminate:
				signoutOnExit = cmd.Signout
				break loop
			case tunnelevent.ReKey:
				if cmd.Session != nil {
					d.ready.Store(false)
					if err := d.configurator.Rekey(ctx, cmd.Session); err != nil {
						runErr = apperror.Wrap(apperror.Configure, "ipsec: rekey", err)
						break loop
					}
					d.ready.Store(true)
				}
			}

		case err := <-keepaliveErr:
			keepaliveDrained = true
			if err != nil {
				runErr = err
			}
			break loop

		case <-rekeyTicker.C:
			select {
			case d.events <- tunnelevent.Event{Kind: tunnelevent.RekeyCheck}:
			default:
			}
		}
	}

	close(stopKeepalive)
	if !keepaliveDrained {
		<-keepaliveErr // the "first completion wins" teardown: keepalive goroutine is still exiting, wait for it
	}

	// Stopping -> Done: stop the NAT-T listener before the socket is torn
	// down by the caller.
	listener.Stop()

	if signoutOnExit && d.signout != nil {
		_ = d.signout(ctx)
	}

	if cleanupErr := d.configurator.Cleanup(ctx); cleanupErr != nil && runErr == nil {
		runErr = apperror.Wrap(apperror.Configure, "ipsec: cleanup", cleanupErr)
	}

	d.events <- tunnelevent.Event{Kind: tunnelevent.Disconnected, Err: runErr}
	return runErr
}
