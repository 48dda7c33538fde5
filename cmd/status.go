package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sentinel-cli/internal/monitoring"
)

var (
	statusLookback int
	statusAlert    bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a pipeline health snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, statusLookback)
		if err != nil {
			return eris.Wrap(err, "collect status")
		}

		if statusAlert {
			alerter := monitoring.NewAlerter(cfg.Monitoring)
			alerts := alerter.Evaluate(snap)
			sent := alerter.SendAlerts(ctx, alerts)
			zap.L().Info("status: alert evaluation",
				zap.Int("triggered", len(alerts)),
				zap.Int("sent", sent),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLookback, "lookback", 24, "lookback window in hours")
	statusCmd.Flags().BoolVar(&statusAlert, "alert", false, "evaluate thresholds and send webhook alerts")
	rootCmd.AddCommand(statusCmd)
}
