package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/coord/internal/ports/primary"
	"github.com/example/coord/internal/wire"
)

// SpendCmd returns the spend command
func SpendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spend",
		Short: "Charge against and inspect instance budgets",
	}

	cmd.AddCommand(spendChargeCmd())
	cmd.AddCommand(spendStatusCmd())
	cmd.AddCommand(spendHistoryCmd())

	return cmd
}

func spendChargeCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "charge [instance-id] [amount]",
		Short: "Charge an amount against an instance's budget",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var amount float64
			if _, err := fmt.Sscanf(args[1], "%f", &amount); err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			decision, err := wire.SpendService().Charge(context.Background(), args[0], amount, category)
			if decision == primary.SpendDeny {
				fmt.Println(color.New(color.FgRed).Sprintf("✗ Denied: charge of %.2f would exceed a budget limit", amount))
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to charge: %w", err)
			}
			fmt.Printf("✓ Charged %.2f (%s) to %s\n", amount, category, args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", primary.SpendCategoryLLM, "spend category")
	return cmd
}

func spendStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [instance-id]",
		Short: "Show budget counters and limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := wire.SpendService().Status(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get spend status: %w", err)
			}

			fmt.Printf("Spend for %s\n", status.InstanceID)
			fmt.Printf("  Daily:   %.2f / %.2f (%s)\n", status.DailySpend, status.DailyLimit, colorPct(status.DailyPercentage))
			fmt.Printf("  Monthly: %.2f / %.2f (%s)\n", status.MonthlySpend, status.MonthlyLimit, colorPct(status.MonthlyPercentage))
			return nil
		},
	}
	return cmd
}

func spendHistoryCmd() *cobra.Command {
	var (
		category string
		days     int
	)

	cmd := &cobra.Command{
		Use:   "history [instance-id]",
		Short: "List charge entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			since := time.Now().AddDate(0, 0, -days)
			entries, err := wire.SpendService().History(context.Background(), args[0], category, since)
			if err != nil {
				return fmt.Errorf("failed to get spend history: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No charges found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tCATEGORY\tAMOUNT\tALLOWED")
			for _, e := range entries {
				allowed := "yes"
				if !e.Allowed {
					allowed = color.New(color.FgRed).Sprint("no")
				}
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", e.ChargedAt.UTC().Format(time.RFC3339), e.Category, e.Amount, allowed)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().IntVar(&days, "days", 30, "look back this many days")
	return cmd
}

func colorPct(pct float64) string {
	s := fmt.Sprintf("%.0f%%", pct)
	switch {
	case pct >= 100:
		return color.New(color.FgRed).Sprint(s)
	case pct >= 80:
		return color.New(color.FgYellow).Sprint(s)
	default:
		return s
	}
}
