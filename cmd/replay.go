package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jmehdipour/payment-alerts/internal/classifier"
	"github.com/jmehdipour/payment-alerts/internal/config"
	"github.com/jmehdipour/payment-alerts/internal/eventlog"
	"github.com/jmehdipour/payment-alerts/internal/model"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay [event-log]",
	Short: "Classify every event in the raw event log without sending anything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			path = cfg.EventLog.Path
		}

		alertsOnly, _ := cmd.Flags().GetBool("alerts-only")
		return runReplay(cmd.OutOrStdout(), path, alertsOnly)
	},
}

func init() {
	replayCmd.Flags().Bool("alerts-only", false, "print only events that would raise an alert")
}

func runReplay(w io.Writer, path string, alertsOnly bool) error {
	entries, err := eventlog.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read event log: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tALERT\tMESSAGE")

	alerts := 0
	for _, e := range entries {
		d := classifier.Classify(model.ParseEnvelope(e.Raw))
		if d.Alert {
			alerts++
		} else if alertsOnly {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", e.Time.Format("2006-01-02T15:04:05.000Z"), d.EventType, d.Alert, d.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "%d events, %d alerts\n", len(entries), alerts)
	return nil
}
