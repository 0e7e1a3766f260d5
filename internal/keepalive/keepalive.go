// Package keepalive implements the periodic liveness probe that keeps a
// gateway's NAT mapping alive and detects a dead tunnel: a fixed-format
// 84-byte probe sent at KEEPALIVE_INTERVAL, backing off to
// KEEPALIVE_RETRY_INTERVAL after a failure, giving up after
// KEEPALIVE_MAX_RETRIES consecutive failures.
package keepalive

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
)

const (
	// Interval is the normal liveness-probe cadence.
	Interval = 20 * time.Second
	// RetryInterval is the cadence used after a probe failure.
	RetryInterval = 5 * time.Second
	// ProbeTimeout bounds how long the runner waits for a reply.
	ProbeTimeout = 5 * time.Second
	// MaxRetries is the number of consecutive failures tolerated before
	// the runner gives up and reports keepalive failure.
	MaxRetries = 5
	// Port is the fixed UDP destination port the gateway expects
	// keepalive probes on.
	Port = 18234

	probeLen = 84
)

// BuildProbe constructs the 84-byte liveness probe packet:
// u32 be 0x00000011 | u16 be 0x0001 | u16 be 0x0002 | u64 be millis-since-epoch | 68 zero bytes.
func BuildProbe(nowUnixMillis int64) []byte {
	buf := make([]byte, probeLen)
	binary.BigEndian.PutUint32(buf[0:4], 0x00000011)
	binary.BigEndian.PutUint16(buf[4:6], 0x0001)
	binary.BigEndian.PutUint16(buf[6:8], 0x0002)
	binary.BigEndian.PutUint64(buf[8:16], uint64(nowUnixMillis))
	return buf
}

// OnlineProber reports whether the machine currently believes it has
// network connectivity; the keepalive loop gates sends on this.
type OnlineProber interface {
	Online() bool
}

// Transport is the minimal send/receive capability the runner needs; it is
// satisfied by *natt.Socket via an adapter in the ipsec tunnel driver, and
// directly by test stubs.
type Transport interface {
	SendReceiveTo(payload []byte, timeout time.Duration, addr string) ([]byte, error)
}

// Runner drives the keepalive loop described in the package doc.
type Runner struct {
	transport Transport
	online    OnlineProber
	ready     *atomic.Bool
	dest      string
	now       func() int64

	// intervalOverride and retryOverride let tests run the loop on a
	// compressed clock instead of the real 20s/5s cadence. Zero means use
	// the real Interval/RetryInterval constants.
	intervalOverride time.Duration
	retryOverride    time.Duration

	failures int
}

// NewRunner builds a Runner. ready must be the same atomic flag the tunnel
// driver clears during a rekey; dest is "host:port" for the gateway's
// keepalive endpoint.
func NewRunner(transport Transport, online OnlineProber, ready *atomic.Bool, dest string) *Runner {
	return &Runner{
		transport: transport,
		online:    online,
		ready:     ready,
		dest:      dest,
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

// Ready returns the shared ready flag this runner gates sends on.
func (r *Runner) Ready() *atomic.Bool {
	return r.ready
}

// SetIntervals overrides the normal/retry cadence, for callers (tests, or a
// driver wiring a compressed schedule) that need the loop to run faster than
// the real 20s/5s constants. Passing zero for either restores the default.
func (r *Runner) SetIntervals(interval, retry time.Duration) {
	r.intervalOverride = interval
	r.retryOverride = retry
}

func (r *Runner) interval() time.Duration {
	if r.intervalOverride != 0 {
		return r.intervalOverride
	}
	return Interval
}

func (r *Runner) retryInterval() time.Duration {
	if r.retryOverride != 0 {
		return r.retryOverride
	}
	return RetryInterval
}

// Run executes the keepalive loop until it either succeeds indefinitely
// (caller cancels via stopCh) or exhausts its failure budget, in which case
// it returns a KeepaliveFailure error.
func (r *Runner) Run(stopCh <-chan struct{}) error {
	interval := r.interval()
	for {
		timer := time.NewTimer(interval)
		select {
		case <-stopCh:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if r.online != nil && !r.online.Online() {
			r.failures = 0
			interval = r.interval()
			continue
		}
		if r.ready != nil && !r.ready.Load() {
			interval = r.interval()
			continue
		}

		probe := BuildProbe(r.now())
		_, err := r.transport.SendReceiveTo(probe, ProbeTimeout, r.dest)
		if err != nil {
			r.failures++
			if r.failures >= MaxRetries {
				return apperror.New(apperror.KeepaliveFailure, "keepalive failed")
			}
			interval = r.retryInterval()
			continue
		}
		r.failures = 0
		interval = r.interval()
	}
}

// Failures returns the current consecutive-failure count, for tests.
func (r *Runner) Failures() int {
	return r.failures
}
