// Package statuscheck runs best-effort delivery-status polls after a message
// was handed to a transport. Results are logged only; they never reach the
// webhook caller.
package statuscheck

import (
	"context"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/metrics"
	"go.uber.org/zap"
)

// Job asks for the status of one sent message once DueAt has passed.
type Job struct {
	Notifier  string    `json:"notifier"`
	Recipient string    `json:"recipient"`
	Token     string    `json:"token"`
	DueAt     time.Time `json:"due_at"`
}

// Checker is implemented by notifiers whose backend can report delivery status.
type Checker interface {
	Name() string
	CheckStatus(ctx context.Context, token string) (string, error)
}

// Scheduler accepts jobs for later execution.
type Scheduler interface {
	Schedule(ctx context.Context, job Job) error
}

// Delivery is a job fetched from a Source; Ack marks it consumed.
type Delivery struct {
	Job Job
	Ack func(ctx context.Context) error
}

// Source yields scheduled jobs to a worker. Fetch blocks until a job is
// available or ctx is done.
type Source interface {
	Fetch(ctx context.Context) (Delivery, error)
	Close() error
}

// Perform waits until the job is due, polls the checker and logs the result.
// It returns the reported status, or "" when the check did not run.
func Perform(ctx context.Context, c Checker, job Job, timeout time.Duration, log *zap.Logger) string {
	if wait := time.Until(job.DueAt); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ""
		case <-t.C:
		}
	}

	if job.Notifier != "" && job.Notifier != c.Name() {
		log.Warn("status check skipped: notifier mismatch",
			zap.String("job_notifier", job.Notifier),
			zap.String("checker", c.Name()),
			zap.String("token", job.Token))
		return ""
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, err := c.CheckStatus(cctx, job.Token)
	if err != nil {
		metrics.StatusChecksTotal.WithLabelValues(c.Name(), "error").Inc()
		log.Warn("delivery status check failed",
			zap.String("notifier", c.Name()),
			zap.String("recipient", job.Recipient),
			zap.String("token", job.Token),
			zap.Error(err))
		return ""
	}

	metrics.StatusChecksTotal.WithLabelValues(c.Name(), status).Inc()
	log.Info("delivery status",
		zap.String("notifier", c.Name()),
		zap.String("recipient", job.Recipient),
		zap.String("token", job.Token),
		zap.String("status", status))
	return status
}
