package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/statuscheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chanSource struct {
	ch       chan statuscheck.Delivery
	failures atomic.Int32
}

func (s *chanSource) Fetch(ctx context.Context) (statuscheck.Delivery, error) {
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		return statuscheck.Delivery{}, errors.New("broker unreachable")
	}
	select {
	case d := <-s.ch:
		return d, nil
	case <-ctx.Done():
		return statuscheck.Delivery{}, ctx.Err()
	}
}

func (s *chanSource) Close() error { return nil }

type countingChecker struct {
	mu     sync.Mutex
	tokens []string
}

func (c *countingChecker) Name() string { return "twilio" }

func (c *countingChecker) CheckStatus(_ context.Context, token string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, token)
	return "delivered", nil
}

func (c *countingChecker) seen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}

func TestStatusWorker_ProcessesAndAcks(t *testing.T) {
	src := &chanSource{ch: make(chan statuscheck.Delivery, 8)}
	src.failures.Store(2)
	chk := &countingChecker{}

	var acked atomic.Int32
	ack := func(context.Context) error { acked.Add(1); return nil }
	for _, tok := range []string{"SM1", "SM2", "SM3"} {
		src.ch <- statuscheck.Delivery{
			Job: statuscheck.Job{Notifier: "twilio", Recipient: "+15550001111", Token: tok, DueAt: time.Now()},
			Ack: ack,
		}
	}

	w := NewStatusWorker(src, chk, zap.NewNop())
	w.Workers = 2
	w.RetryBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return acked.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, chk.seen())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestStatusWorker_UnackedOnShutdown(t *testing.T) {
	src := &chanSource{ch: make(chan statuscheck.Delivery, 1)}
	var acked atomic.Int32
	src.ch <- statuscheck.Delivery{
		Job: statuscheck.Job{Notifier: "twilio", Token: "SM9", DueAt: time.Now().Add(time.Hour)},
		Ack: func(context.Context) error { acked.Add(1); return nil },
	}

	w := NewStatusWorker(src, &countingChecker{}, zap.NewNop())
	w.Workers = 1

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Run(ctx))
	assert.Zero(t, acked.Load())
}

func TestStatusWorker_RequiresDependencies(t *testing.T) {
	w := NewStatusWorker(nil, nil, nil)
	assert.Error(t, w.Run(context.Background()))
}
