package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kairoai/engine/core/config"
	"github.com/kairoai/engine/core/engine"
	"github.com/kairoai/engine/core/goal"
	"github.com/kairoai/engine/core/intent"
	"github.com/kairoai/engine/core/store"
	"github.com/kairoai/engine/core/worker"
)

var (
	runGoalType string
	runAutonomy string
	runWatch    bool
)

var runCmd = &cobra.Command{
	Use:   "run <description>",
	Short: "Plan and execute a goal, polling until it settles",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoal,
}

func init() {
	runCmd.Flags().StringVar(&runGoalType, "type", "", "force a goal type instead of classifying")
	runCmd.Flags().StringVar(&runAutonomy, "autonomy", "fully_autonomous", "supervised, semi_autonomous, or fully_autonomous")
	runCmd.Flags().BoolVar(&runWatch, "watch-config", false, "reload config on file change")
	rootCmd.AddCommand(runCmd)
}

func runGoal(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := worker.NewRegistry()
	for _, capability := range intent.AllCapabilities() {
		registry.Register(newLocalWorker(capability))
	}

	eng, err := engine.New(cfg, registry, st, logger)
	if err != nil {
		return err
	}
	eng.Start()
	defer eng.Stop()

	if runWatch && configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
			logger.Info("config change observed; restart to apply engine sections")
		}, logger)
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	goalID, err := eng.CreateAutonomousGoal(args[0], runGoalType, goal.ParseAutonomy(runAutonomy))
	if err != nil {
		return err
	}
	fmt.Printf("goal %s created\n", goalID)

	for {
		snapshot, ok := eng.GoalStatus(goalID)
		if !ok {
			return fmt.Errorf("goal %s vanished", goalID)
		}
		fmt.Printf("  status=%s progress=%.0f%%\n", snapshot.Status, snapshot.Progress)

		if terminal(snapshot.Status) {
			printOutcome(snapshot)
			return nil
		}
		time.Sleep(time.Second)
	}
}

func terminal(status string) bool {
	switch status {
	case goal.StatusCompleted.String(), goal.StatusFailed.String(), goal.StatusCancelled.String(), goal.StatusAdapted.String():
		return true
	}
	return false
}

func printOutcome(snapshot goal.Snapshot) {
	fmt.Printf("\ngoal %s: %s\n", snapshot.ID, snapshot.Status)
	for _, sg := range snapshot.SubGoals {
		fmt.Printf("  [%s] %s (%s, %d attempt(s))\n", sg.Status, sg.Description, sg.Capability, sg.Attempts)
		if sg.Result != "" {
			fmt.Printf("      %s\n", sg.Result)
		}
		if sg.FailureReason != "" {
			fmt.Printf("      failed: %s\n", sg.FailureReason)
		}
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Driver == "memory" {
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(cfg.Store.SQLite)
}

// newLocalWorker returns the built-in worker for a capability. It acknowledges
// each step without side effects; deployments register real workers (LLM
// backed or otherwise) through the engine API instead.
func newLocalWorker(capability intent.Capability) *worker.Func {
	return &worker.Func{
		WorkerID: "local-" + string(capability),
		Caps:     []intent.Capability{capability},
		Run: func(ctx context.Context, req worker.Request) (*worker.Result, error) {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &worker.Result{
				Output:       fmt.Sprintf("[%s] acknowledged: %s", capability, req.Description),
				QualityScore: 0.5,
			}, nil
		},
	}
}
