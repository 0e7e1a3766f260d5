// Package supervisor orchestrates the single tunnel this process manages:
// it drives a connector.TunnelConnector through authenticate/challenge_code,
// launches the tunnel driver goroutine once a session is authenticated, and
// exposes the result as a statusapi.Controller. Grounded on the teacher's
// Agent (internal/agent/agent.go): a WaitGroup-guarded background loop,
// here started by Connect/SubmitChallenge and torn down by Disconnect.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
	"github.com/ancwrd1/snx-rs-sub001/internal/connector"
	"github.com/ancwrd1/snx-rs-sub001/internal/model"
	"github.com/ancwrd1/snx-rs-sub001/internal/tunnelevent"
)

// Supervisor implements statusapi.Controller by driving one
// connector.TunnelConnector across its full lifecycle: authenticate,
// optional MFA rounds, tunnel creation, and termination.
type Supervisor struct {
	params    *model.TunnelParams
	connector connector.TunnelConnector

	mu       sync.Mutex
	status   model.ConnectionStatus
	session  *model.VpnSession
	commands chan tunnelevent.Command
	events   chan tunnelevent.Event

	wg sync.WaitGroup
}

// New builds a Supervisor for the given connector, selected by the caller
// according to params.TunnelType (connector.NewSSLConnector or
// connector.NewIPsecConnector).
func New(params *model.TunnelParams, conn connector.TunnelConnector) *Supervisor {
	return &Supervisor{
		params:    params,
		connector: conn,
		status:    model.ConnectionStatus{Kind: model.StatusDisconnected},
	}
}

// Status implements statusapi.Controller.
func (s *Supervisor) Status() model.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Supervisor) setStatus(status model.ConnectionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// updateTrafficStats folds a TrafficStats event's cumulative counters into
// the current connection info, leaving everything else (since/mode)
// untouched.
func (s *Supervisor) updateTrafficStats(bytesIn, bytesOut uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Connection == nil {
		return
	}
	info := *s.status.Connection
	info.BytesIn = bytesIn
	info.BytesOut = bytesOut
	s.status.Connection = &info
}

// Connect implements statusapi.Controller: it authenticates the session and,
// if no further challenge is required, starts the tunnel in the
// background. If the gateway demands a factor response, Connect returns nil
// and Status reports StatusMfa until SubmitChallenge is called.
func (s *Supervisor) Connect(ctx echo.Context) error {
	s.mu.Lock()
	if s.status.Kind == model.StatusConnecting || s.status.Kind == model.StatusConnected {
		s.mu.Unlock()
		return apperror.New(apperror.Config, "supervisor: connect already in progress")
	}
	s.mu.Unlock()

	s.setStatus(model.ConnectionStatus{Kind: model.StatusConnecting})

	session, err := s.connector.Authenticate(ctx.Request().Context())
	if err != nil {
		s.setStatus(model.ConnectionStatus{Kind: model.StatusDisconnected, Error: err.Error()})
		return err
	}

	return s.advance(ctx.Request().Context(), session)
}

// SubmitChallenge implements statusapi.Controller: it answers the
// outstanding MFA factor and, once the gateway reports the session
// authenticated, starts the tunnel.
func (s *Supervisor) SubmitChallenge(ctx echo.Context, code string) error {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	if session == nil {
		return apperror.New(apperror.Config, "supervisor: no pending challenge")
	}

	next, err := s.connector.ChallengeCode(ctx.Request().Context(), session, code)
	if err != nil {
		s.setStatus(model.ConnectionStatus{Kind: model.StatusDisconnected, Error: err.Error()})
		return err
	}

	return s.advance(ctx.Request().Context(), next)
}

// advance inspects the session's state and either records the next pending
// challenge or, once authenticated, starts the tunnel driver.
func (s *Supervisor) advance(ctx context.Context, session *model.VpnSession) error {
	switch state := session.State.(type) {
	case model.PendingChallenge:
		s.mu.Lock()
		s.session = session
		s.mu.Unlock()
		s.setStatus(model.ConnectionStatus{Kind: model.StatusMfa, Challenge: &state.Challenge})
		return nil
	case model.Authenticated:
		s.mu.Lock()
		s.session = session
		s.mu.Unlock()
		return s.startTunnel(ctx, session)
	default:
		return apperror.Newf(apperror.Protocol, "supervisor: unrecognized session state %T", session.State)
	}
}

// startTunnel launches the tunnel driver goroutine and returns once the
// driver has either confirmed it connected or failed outright.
func (s *Supervisor) startTunnel(ctx context.Context, session *model.VpnSession) error {
	commands := make(chan tunnelevent.Command)
	events := make(chan tunnelevent.Event)

	s.mu.Lock()
	s.commands = commands
	s.events = events
	s.mu.Unlock()

	driverCtx, cancel := context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := s.connector.CreateTunnel(driverCtx, session, commands, events); err != nil {
			log.Error().Err(err).Msg("supervisor: tunnel driver exited with error")
		}
	}()

	ready := make(chan error, 1)
	s.wg.Add(1)
	go s.pumpEvents(driverCtx, events, commands, session, ready)

	select {
	case err := <-ready:
		return err
	case <-time.After(30 * time.Second):
		return apperror.New(apperror.Timeout, "supervisor: tunnel did not confirm within 30s")
	}
}

// pumpEvents consumes driver events for the lifetime of the tunnel. It
// reports the outcome of the first Connected/Disconnected event on ready,
// then keeps consuming events (updating status, driving rekey checks
// through the connector) until a Disconnected event arrives or the events
// channel is closed.
func (s *Supervisor) pumpEvents(ctx context.Context, events <-chan tunnelevent.Event, commands chan<- tunnelevent.Command, session *model.VpnSession, ready chan<- error) {
	defer s.wg.Done()
	since := time.Now()
	reported := false
	report := func(err error) {
		if !reported {
			reported = true
			ready <- err
		}
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				report(apperror.New(apperror.Protocol, "supervisor: tunnel driver exited before connecting"))
				return
			}
			switch ev.Kind {
			case tunnelevent.Connected:
				s.setStatus(model.ConnectionStatus{
					Kind:       model.StatusConnected,
					Connection: &model.ConnectionInfo{SinceUnixMillis: since.UnixMilli(), Mode: s.params.TunnelType},
				})
				report(nil)
			case tunnelevent.Disconnected:
				errMsg := ""
				if ev.Err != nil {
					errMsg = ev.Err.Error()
				}
				s.setStatus(model.ConnectionStatus{Kind: model.StatusDisconnected, Error: errMsg})
				report(ev.Err)
				return
			case tunnelevent.RekeyCheck:
				log.Debug().Msg("supervisor: rekey check requested")
				s.wg.Add(1)
				go s.handleRekeyCheck(ctx, ev, commands, session)
			case tunnelevent.RemoteControlData:
				log.Debug().Int("bytes", len(ev.Data)).Msg("supervisor: remote control data received")
			case tunnelevent.TrafficStats:
				s.updateTrafficStats(ev.BytesIn, ev.BytesOut)
			}
		}
	}
}

// handleRekeyCheck asks the connector whether the gateway has new SA
// material (the protocol is pull-based: a RekeyCheck event is only a
// prompt to ask, not new material itself) and forwards the resulting
// command to the driver. It runs off the event pump's own goroutine so a
// slow get_ipsec_keys round trip never stalls event delivery.
func (s *Supervisor) handleRekeyCheck(ctx context.Context, ev tunnelevent.Event, commands chan<- tunnelevent.Command, session *model.VpnSession) {
	defer s.wg.Done()

	cmd, err := s.connector.HandleTunnelEvent(ctx, session, ev)
	if err != nil {
		log.Warn().Err(err).Msg("supervisor: rekey check failed")
		return
	}
	if cmd == nil {
		return
	}

	select {
	case commands <- *cmd:
	case <-ctx.Done():
	}
}

// Disconnect implements statusapi.Controller: it requests termination of
// the running tunnel and waits for its driver goroutine to exit.
func (s *Supervisor) Disconnect(ctx echo.Context) error {
	s.mu.Lock()
	commands := s.commands
	session := s.session
	s.mu.Unlock()

	if commands == nil {
		s.setStatus(model.ConnectionStatus{Kind: model.StatusDisconnected})
		return nil
	}

	select {
	case commands <- tunnelevent.Command{Kind: tunnelevent.Terminate, Signout: true, Session: session.IpsecSession}:
	case <-time.After(5 * time.Second):
		return apperror.New(apperror.Timeout, "supervisor: terminate command not accepted within 5s")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("supervisor: tunnel goroutines did not exit within 10s")
	}

	s.mu.Lock()
	s.commands = nil
	s.events = nil
	s.session = nil
	s.mu.Unlock()

	s.setStatus(model.ConnectionStatus{Kind: model.StatusDisconnected})
	return nil
}

// String satisfies fmt.Stringer for logging the supervisor's tunnel target.
func (s *Supervisor) String() string {
	return fmt.Sprintf("Supervisor(%s, %s)", s.params.ServerName, s.params.TunnelType)
}
