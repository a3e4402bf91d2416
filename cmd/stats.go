package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	statsWorker string
	statsLimit  int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize archived tasks and worker metrics from the store",
	RunE:  showStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsWorker, "worker", "", "show metrics for one worker")
	statsCmd.Flags().IntVar(&statsLimit, "limit", 20, "max records per section")
	rootCmd.AddCommand(statsCmd)
}

func showStats(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, err := st.QueryScheduledTasks(ctx, "", statsLimit)
	if err != nil {
		return err
	}
	fmt.Printf("archived tasks (%d):\n", len(records))
	for _, r := range records {
		fmt.Printf("  %-10s %-10s retries=%d %s\n", r.Status, r.Type, r.RetryCount, r.Payload)
	}

	if statsWorker == "" {
		return nil
	}

	metrics, err := st.QueryMetrics(ctx, statsWorker, statsLimit)
	if err != nil {
		return err
	}

	successes := 0
	var totalLatency time.Duration
	for _, m := range metrics {
		if m.Success {
			successes++
		}
		totalLatency += m.Latency()
	}

	fmt.Printf("\nworker %s (%d samples):\n", statsWorker, len(metrics))
	if len(metrics) > 0 {
		fmt.Printf("  success rate %.0f%%, avg latency %s\n",
			float64(successes)/float64(len(metrics))*100,
			(totalLatency / time.Duration(len(metrics))).Round(time.Millisecond))
	}
	return nil
}
