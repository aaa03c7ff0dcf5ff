package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/coord/internal/wire"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	var evaluate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordination HTTP server",
		Long: `Start the HTTP API, rebuild message timers from persisted state, and run
the periodic alert evaluator and escalation sweeper until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := wire.Recover(ctx); err != nil {
				return fmt.Errorf("failed to recover in-flight messages: %w", err)
			}

			server := wire.HTTPServer()
			if err := server.Start(); err != nil {
				return err
			}
			fmt.Printf("✓ coordination server listening on %s\n", server.Addr())

			if evaluate {
				go runSweeper(ctx)
			}

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&evaluate, "evaluate", true, "run the periodic alert evaluator and escalation sweeper")
	return cmd
}

// runSweeper ticks the alert evaluator and approval escalation sweep.
func runSweeper(ctx context.Context) {
	interval := wire.Config().Monitor.EvaluateInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := wire.Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := wire.MonitorService().Evaluate(ctx, now); err != nil {
				logger.Error("alert evaluation failed", "error", err)
			}
			if _, err := wire.RaciService().SweepEscalations(ctx); err != nil {
				logger.Error("escalation sweep failed", "error", err)
			}
			wire.PromoteAged(ctx)
		}
	}
}
