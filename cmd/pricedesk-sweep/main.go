package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/config"
	"github.com/smallbiznis/pricedesk/internal/domains"
	"github.com/smallbiznis/pricedesk/internal/observability"
	"github.com/smallbiznis/pricedesk/internal/ratelimit"
	"github.com/smallbiznis/pricedesk/internal/sweep"
	"github.com/smallbiznis/pricedesk/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var (
	jobs         []string
	nodeID       int64
	startTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "pricedesk-sweep",
	Short: "Run the pricedesk tenant sweeps once and exit",
	Long: "Runs the tenant sweeps a single time and exits. Schedule it from cron or a " +
		"Kubernetes CronJob; the API process never runs them on its own.\n\n" +
		"Jobs: " + strings.Join(sweep.Jobs, ", "),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd.Context(), jobs)
	},
}

func init() {
	rootCmd.Flags().StringSliceVar(&jobs, "job", nil, "job to run, repeatable (default all)")
	rootCmd.Flags().Int64Var(&nodeID, "node-id", 2, "snowflake node id, distinct from the API process")
	rootCmd.Flags().DurationVar(&startTimeout, "start-timeout", 30*time.Second, "time allowed for dependencies to start")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runSweep(ctx context.Context, jobs []string) error {
	var runner *sweep.Runner
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,

		// No server or migration module; the API process owns the schema.
		domains.Module,
		sweep.Module,
		fx.Populate(&runner),
	)

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return runner.Run(ctx, jobs...)
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(nodeID)
}
