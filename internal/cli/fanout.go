package cli

import (
	"fmt"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/realtime"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var retryLimit int

var fanoutCmd = &cobra.Command{
	Use:   "fanout",
	Short: "Inspect and repair approval broadcasts",
}

var fanoutRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-send broadcast notifications that failed to write",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := connect()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		// Redis reaches clients streaming from the API nodes; without it
		// the notifications are still written and show up on next fetch.
		var hub realtime.Hub = realtime.NewMemoryHub()
		if cfg.RedisURL != "" {
			redisHub, err := realtime.NewRedisHub(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			hub = redisHub
		}
		defer hub.Close()

		svc := services.NewFanoutService(db, hub, metrics.New(prometheus.NewRegistry()), services.FanoutOptionsFromConfig(cfg))
		res, err := svc.RetryFailures(ctx, retryLimit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "attempted=%d resolved=%d failed=%d\n", res.Attempted, res.Resolved, res.Failed)
		return nil
	},
}

func init() {
	fanoutRetryCmd.Flags().IntVar(&retryLimit, "limit", 1000, "maximum failures to retry (0 = all)")
	fanoutCmd.AddCommand(fanoutRetryCmd)
}
