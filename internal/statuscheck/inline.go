package statuscheck

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Inline runs each job on its own goroutine inside the serving process.
// Pending jobs are abandoned on Close.
type Inline struct {
	checker Checker
	timeout time.Duration
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewInline(c Checker, timeout time.Duration, log *zap.Logger) *Inline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Inline{checker: c, timeout: timeout, log: log, ctx: ctx, cancel: cancel}
}

// Schedule detaches from the caller's context: the request that produced the
// job has usually finished by the time it runs.
func (s *Inline) Schedule(_ context.Context, job Job) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		Perform(s.ctx, s.checker, job, s.timeout, s.log)
	}()
	return nil
}

func (s *Inline) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}
