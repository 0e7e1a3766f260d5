package keepalive

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
)

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

type stubTransport struct {
	fail  func(attempt int) bool
	calls int32
}

func (s *stubTransport) SendReceiveTo(payload []byte, timeout time.Duration, addr string) ([]byte, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if s.fail(int(n)) {
		return nil, apperror.New(apperror.Timeout, "stub: timed out")
	}
	return payload, nil
}

// runAccelerated drives r.Run on a millisecond clock instead of the real
// 20s/5s cadence, for the "budget exhausted" test where we don't need to
// exercise the actual timer durations, only the failure-counting logic.
func runAccelerated(r *Runner) error {
	r.intervalOverride = time.Millisecond
	r.retryOverride = time.Millisecond
	return r.Run(make(chan struct{}))
}

func TestBuildProbeLayout(t *testing.T) {
	probe := BuildProbe(0x0102030405060708)
	if len(probe) != probeLen {
		t.Fatalf("expected %d bytes, got %d", probeLen, len(probe))
	}
	if probe[0] != 0 || probe[1] != 0 || probe[2] != 0 || probe[3] != 0x11 {
		t.Fatalf("unexpected header bytes: %v", probe[0:4])
	}
	if probe[4] != 0 || probe[5] != 1 {
		t.Fatalf("unexpected type bytes: %v", probe[4:6])
	}
	if probe[6] != 0 || probe[7] != 2 {
		t.Fatalf("unexpected subtype bytes: %v", probe[6:8])
	}
	for _, b := range probe[16:] {
		if b != 0 {
			t.Fatalf("expected trailing zero padding, found %v", probe[16:])
		}
	}
}

func TestKeepaliveBudgetExhaustedAfterMaxRetries(t *testing.T) {
	transport := &stubTransport{fail: func(int) bool { return true }}
	r := NewRunner(transport, alwaysOnline{}, new(atomic.Bool), "gw:18234")
	r.Ready().Store(true)

	err := runAccelerated(r)
	if err == nil {
		t.Fatal("expected keepalive failure")
	}
	if !apperror.Is(err, apperror.KeepaliveFailure) {
		t.Fatalf("expected KeepaliveFailure kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "keepalive failed") {
		t.Fatalf("expected message to contain 'keepalive failed', got %q", err.Error())
	}
	if r.Failures() != MaxRetries {
		t.Fatalf("expected failures to reach exactly %d, got %d", MaxRetries, r.Failures())
	}
}

func TestKeepaliveCounterResetsOnSuccess(t *testing.T) {
	attempt := 0
	transport := &stubTransport{fail: func(n int) bool {
		attempt = n
		return n <= 2 // first two probes fail, then succeed forever
	}}
	r := NewRunner(transport, alwaysOnline{}, new(atomic.Bool), "gw:18234")
	r.Ready().Store(true)
	r.intervalOverride = time.Millisecond
	r.retryOverride = time.Millisecond

	stop := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(stop) }()

	time.Sleep(50 * time.Millisecond)
	close(stop)
	if err := <-errCh; err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if r.Failures() != 0 {
		t.Fatalf("expected failure counter reset to 0 after success, got %d (attempt=%d)", r.Failures(), attempt)
	}
}

func TestOnlineGatingSkipsSendsAndKeepsFailuresAtZero(t *testing.T) {
	transport := &stubTransport{fail: func(int) bool { return true }}
	r := NewRunner(transport, offlineProber{}, new(atomic.Bool), "gw:18234")
	r.Ready().Store(true)
	r.intervalOverride = time.Millisecond

	stop := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(stop) }()

	time.Sleep(30 * time.Millisecond)
	close(stop)
	<-errCh

	if atomic.LoadInt32(&transport.calls) != 0 {
		t.Fatalf("expected no probes sent while offline, got %d", transport.calls)
	}
	if r.Failures() != 0 {
		t.Fatalf("expected failure counter to stay 0 while offline, got %d", r.Failures())
	}
}

type offlineProber struct{}

func (offlineProber) Online() bool { return false }
