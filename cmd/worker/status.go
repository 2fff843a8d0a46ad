package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/payment-alerts/internal/config"
	"github.com/jmehdipour/payment-alerts/internal/db"
	"github.com/jmehdipour/payment-alerts/internal/logger"
	"github.com/jmehdipour/payment-alerts/internal/metrics"
	"github.com/jmehdipour/payment-alerts/internal/notifier"
	"github.com/jmehdipour/payment-alerts/internal/statuscheck"
	"github.com/jmehdipour/payment-alerts/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Poll delivery status for queued status-check jobs (kafka | redis)",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("source", "", "job source: kafka or redis (default: status_check.mode)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lg := logger.Init(cfg.Log.Level)
	defer func() { _ = lg.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) notifier must be able to report status
	n, err := notifier.New(cfg.Notifier)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	checker, ok := n.(statuscheck.Checker)
	if !ok {
		return fmt.Errorf("notifier %s cannot report delivery status", n.Name())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3) job source
	mode, _ := cmd.Flags().GetString("source")
	if mode == "" {
		mode = cfg.StatusCheck.Mode
	}

	var src statuscheck.Source
	switch mode {
	case "kafka":
		src = statuscheck.NewKafkaSource(cfg.Kafka, lg)
	case "redis":
		rdb, err := db.NewRedisClient(ctx, db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		src = statuscheck.NewRedisSource(rdb, cfg.Redis.Key, cfg.Redis.PollInterval, lg)
	default:
		return fmt.Errorf("status worker needs a kafka or redis source, got %q", mode)
	}
	defer func() { _ = src.Close() }()

	w := worker.NewStatusWorker(src, checker, lg)

	// tune knobs
	if cfg.StatusCheck.Workers > 0 {
		w.Workers = cfg.StatusCheck.Workers
	}
	if cfg.StatusCheck.Timeout > 0 {
		w.CheckTimeout = cfg.StatusCheck.Timeout
	}

	lg.Info("status worker started",
		zap.String("source", mode),
		zap.String("notifier", n.Name()),
		zap.Int("workers", w.Workers))

	return w.Run(ctx)
}
