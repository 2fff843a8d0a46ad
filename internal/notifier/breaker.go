package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/metrics"
)

type state int

const (
	closed state = iota
	open
	halfOpen
)

func (s state) String() string {
	switch s {
	case open:
		return "open"
	case halfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// MicroBreaker trips after failThreshold consecutive transport faults. Once
// openFor has elapsed the next caller becomes the trial; callers arriving
// while the trial is in flight wait for its outcome instead of failing, so a
// batch fanned out to many recipients is admitted as a whole when the
// backend has recovered.
type MicroBreaker struct {
	name string

	mu               sync.Mutex
	st               state
	consecutiveFails int
	failThreshold    int
	openFor          time.Duration
	nextTryAt        time.Time
	trialDone        chan struct{} // non-nil while a trial is in flight
	now              func() time.Time
}

func NewMicroBreaker(name string, threshold int, openFor time.Duration) *MicroBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	b := &MicroBreaker{name: name, failThreshold: threshold, openFor: openFor, now: time.Now}
	b.setState(closed)
	return b
}

// Ready reports whether a new dispatch may start: the circuit is closed, or
// its cool-down elapsed and no trial is running yet.
func (b *MicroBreaker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.st {
	case open:
		return b.now().After(b.nextTryAt)
	case halfOpen:
		return b.trialDone == nil
	default:
		return true
	}
}

// Acquire admits one attempt. A caller that finds a trial in flight blocks
// until the trial settles, ctx is done, or openFor passes, and is admitted
// only if the trial closed the circuit.
func (b *MicroBreaker) Acquire(ctx context.Context) bool {
	for {
		b.mu.Lock()
		switch b.st {
		case closed:
			b.mu.Unlock()
			return true
		case open:
			if !b.now().After(b.nextTryAt) {
				b.mu.Unlock()
				return false
			}
			b.startTrial()
			b.mu.Unlock()
			return true
		}

		// half-open
		if b.trialDone == nil {
			b.startTrial()
			b.mu.Unlock()
			return true
		}
		done := b.trialDone
		b.mu.Unlock()

		t := time.NewTimer(b.openFor)
		select {
		case <-done:
			t.Stop()
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
			return false
		}
	}
}

func (b *MicroBreaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFails = 0
	b.setState(closed)
	b.endTrial()
}

func (b *MicroBreaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.st == halfOpen {
		b.trip()
		return
	}

	b.consecutiveFails++
	if b.st == closed && b.consecutiveFails >= b.failThreshold {
		b.trip()
	}
}

// State reports the breaker state for logs.
func (b *MicroBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st.String()
}

// caller holds mu
func (b *MicroBreaker) startTrial() {
	b.setState(halfOpen)
	b.trialDone = make(chan struct{})
}

func (b *MicroBreaker) endTrial() {
	if b.trialDone != nil {
		close(b.trialDone)
		b.trialDone = nil
	}
}

func (b *MicroBreaker) trip() {
	b.setState(open)
	b.nextTryAt = b.now().Add(b.openFor)
	b.endTrial()
}

func (b *MicroBreaker) setState(s state) {
	b.st = s
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(s))
}
