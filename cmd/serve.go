package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/config"
	"github.com/jmehdipour/payment-alerts/internal/db"
	"github.com/jmehdipour/payment-alerts/internal/dispatcher"
	"github.com/jmehdipour/payment-alerts/internal/eventlog"
	httpSrv "github.com/jmehdipour/payment-alerts/internal/http"
	"github.com/jmehdipour/payment-alerts/internal/logger"
	"github.com/jmehdipour/payment-alerts/internal/notifier"
	"github.com/jmehdipour/payment-alerts/internal/statuscheck"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		lg := logger.Init(cfg.Log.Level)
		defer func() { _ = lg.Sync() }()

		for _, w := range cfg.Warnings() {
			lg.Warn(w)
		}

		n, err := notifier.New(cfg.Notifier)
		if err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
		lg.Info("notifier configured",
			zap.String("kind", n.Name()),
			zap.Int("recipients", len(cfg.Recipients)))

		sched, closeSched, err := newStatusScheduler(cmd.Context(), cfg, n, lg)
		if err != nil {
			return fmt.Errorf("status checks: %w", err)
		}
		defer closeSched()

		var opts []dispatcher.Option
		if sched != nil {
			opts = append(opts, dispatcher.WithStatusChecks(sched, cfg.StatusCheck.Delay))
		}
		disp := dispatcher.NewDispatcher(n, cfg.Dispatcher.Concurrency, lg, opts...)

		events := eventlog.Open(cfg.EventLog)
		defer func() { _ = events.Close() }()

		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			Recorder:   events,
			Dispatcher: disp,
			Recipients: cfg.Recipients,
			Log:        lg,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			lg.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("http server exited", zap.Error(err))
			}
		}

		timeout := cfg.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}

// newStatusScheduler picks where delivery-status jobs go. It returns a nil
// scheduler when polling is off or the notifier cannot report status.
func newStatusScheduler(ctx context.Context, cfg config.Config, n notifier.Notifier, lg *zap.Logger) (statuscheck.Scheduler, func(), error) {
	noop := func() {}
	if cfg.StatusCheck.Mode == "off" {
		return nil, noop, nil
	}
	checker, ok := n.(statuscheck.Checker)
	if !ok {
		lg.Info("status checks disabled: notifier cannot report delivery status", zap.String("notifier", n.Name()))
		return nil, noop, nil
	}

	switch cfg.StatusCheck.Mode {
	case "", "inline":
		s := statuscheck.NewInline(checker, cfg.StatusCheck.Timeout, lg)
		return s, func() { _ = s.Close() }, nil

	case "kafka":
		s, err := statuscheck.NewKafkaScheduler(cfg.Kafka)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil

	case "redis":
		rdb, err := db.NewRedisClient(ctx, db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("redis connect: %w", err)
		}
		return statuscheck.NewRedisScheduler(rdb, cfg.Redis.Key), func() { _ = rdb.Close() }, nil

	default:
		return nil, noop, fmt.Errorf("unknown status_check.mode %q", cfg.StatusCheck.Mode)
	}
}
