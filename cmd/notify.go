package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmehdipour/payment-alerts/internal/config"
	"github.com/jmehdipour/payment-alerts/internal/dispatcher"
	"github.com/jmehdipour/payment-alerts/internal/logger"
	"github.com/jmehdipour/payment-alerts/internal/model"
	"github.com/jmehdipour/payment-alerts/internal/notifier"
	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify <message>",
	Short: "Send a message to the configured recipients and print the report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		lg := logger.Init(cfg.Log.Level)
		defer func() { _ = lg.Sync() }()

		recipients := cfg.Recipients
		if to, _ := cmd.Flags().GetStringSlice("to"); len(to) > 0 {
			recipients = config.NormalizeRecipients(to, cfg.Notifier.Kind)
		}
		if len(recipients) == 0 {
			return errors.New("no recipients: configure recipients or pass --to")
		}

		n, err := notifier.New(cfg.Notifier)
		if err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
		disp := dispatcher.NewDispatcher(n, cfg.Dispatcher.Concurrency, lg)

		decision := model.Decision{Alert: true, Message: strings.Join(args, " "), EventType: "manual"}
		out, err := disp.Dispatch(cmd.Context(), decision, recipients)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"ok": out.Report.OK(), "results": out.Report.Results}); err != nil {
			return err
		}
		if out.Report.AnyFailure {
			return fmt.Errorf("%d of %d deliveries failed", out.Report.Failed(), len(recipients))
		}
		return nil
	},
}

func init() {
	notifyCmd.Flags().StringSlice("to", nil, "override configured recipients (comma separated)")
}
