package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/metrics"
	"github.com/jmehdipour/payment-alerts/internal/model"
	"github.com/jmehdipour/payment-alerts/internal/notifier"
	"github.com/jmehdipour/payment-alerts/internal/statuscheck"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type State string

const (
	StateNoAlert        State = "no_alert"
	StateSucceeded      State = "succeeded"
	StatePartialFailure State = "partial_failure"
)

// Outcome of a dispatch that reached the notifier, or StateNoAlert when it
// did not need to.
type Outcome struct {
	State  State
	Report model.DispatchReport
}

type Dispatcher struct {
	notifier    notifier.Notifier
	concurrency int
	scheduler   statuscheck.Scheduler
	statusDelay time.Duration
	log         *zap.Logger
}

type Option func(*Dispatcher)

// WithStatusChecks schedules a delivery-status poll, delay after sending, for
// every successful send that returned a tracking token.
func WithStatusChecks(s statuscheck.Scheduler, delay time.Duration) Option {
	return func(d *Dispatcher) {
		d.scheduler = s
		d.statusDelay = delay
	}
}

func NewDispatcher(n notifier.Notifier, concurrency int, log *zap.Logger, opts ...Option) *Dispatcher {
	if concurrency < 1 {
		concurrency = 4
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &Dispatcher{notifier: n, concurrency: concurrency, log: log}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends decision.Message to every recipient and reports one result
// per recipient, in recipient order. A failed recipient never stops the
// others. The returned error wraps notifier.ErrTransportUnavailable when the
// transport could not be used for any recipient; no report exists then.
func (d *Dispatcher) Dispatch(ctx context.Context, decision model.Decision, recipients []string) (Outcome, error) {
	if !decision.Alert || len(recipients) == 0 {
		return Outcome{State: StateNoAlert}, nil
	}

	name := d.notifier.Name()
	start := time.Now()

	if !d.notifier.Ready() {
		metrics.DispatchDuration.WithLabelValues("transport_unavailable").Observe(time.Since(start).Seconds())
		return Outcome{}, fmt.Errorf("%w: %s circuit open", notifier.ErrTransportUnavailable, name)
	}

	results := make([]model.DeliveryResult, len(recipients))
	errs := make([]error, len(recipients))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, rcpt := range recipients {
		g.Go(func() error {
			token, err := d.send(ctx, rcpt, decision.Message)
			errs[i] = err
			results[i] = model.DeliveryResult{Recipient: rcpt, Success: err == nil, TrackingToken: token}
			if err != nil {
				results[i].TrackingToken = ""
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	unavailable := 0
	for i, err := range errs {
		switch {
		case err == nil:
			metrics.DeliveriesTotal.WithLabelValues(name, "sent").Inc()
		case errors.Is(err, notifier.ErrTransportUnavailable):
			unavailable++
			metrics.DeliveriesTotal.WithLabelValues(name, "unavailable").Inc()
		default:
			metrics.DeliveriesTotal.WithLabelValues(name, "failed").Inc()
			d.log.Warn("delivery failed",
				zap.String("notifier", name),
				zap.String("recipient", recipients[i]),
				zap.Error(err))
		}
	}

	if unavailable == len(recipients) {
		metrics.DispatchDuration.WithLabelValues("transport_unavailable").Observe(time.Since(start).Seconds())
		return Outcome{}, fmt.Errorf("dispatch via %s: %w", name, errs[0])
	}

	report := model.DispatchReport{Results: results}
	for _, r := range results {
		if !r.Success {
			report.AnyFailure = true
			break
		}
	}

	state := StateSucceeded
	if report.AnyFailure {
		state = StatePartialFailure
	}
	metrics.DispatchDuration.WithLabelValues(string(state)).Observe(time.Since(start).Seconds())

	d.log.Info("alert dispatched",
		zap.String("notifier", name),
		zap.String("event_type", decision.EventType),
		zap.String("state", string(state)),
		zap.Int("recipients", len(recipients)),
		zap.Int("failed", report.Failed()),
		zap.Duration("took", time.Since(start)))

	d.scheduleStatusChecks(ctx, name, results)

	return Outcome{State: state, Report: report}, nil
}

// send shields the batch from a panicking transport.
func (d *Dispatcher) send(ctx context.Context, recipient, message string) (token string, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notifier panic", zap.Any("panic", r), zap.String("recipient", recipient))
			token, err = "", fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return d.notifier.Send(ctx, recipient, message)
}

func (d *Dispatcher) scheduleStatusChecks(ctx context.Context, name string, results []model.DeliveryResult) {
	if d.scheduler == nil {
		return
	}
	due := time.Now().Add(d.statusDelay)
	for _, r := range results {
		if !r.Success || r.TrackingToken == "" {
			continue
		}
		job := statuscheck.Job{Notifier: name, Recipient: r.Recipient, Token: r.TrackingToken, DueAt: due}
		if err := d.scheduler.Schedule(ctx, job); err != nil {
			d.log.Warn("schedule status check failed",
				zap.String("token", r.TrackingToken),
				zap.Error(err))
		}
	}
}
