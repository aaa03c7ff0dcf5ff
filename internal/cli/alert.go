package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/primary"
	"github.com/example/coord/internal/wire"
)

// AlertCmd returns the alert command
func AlertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "List and acknowledge coordination alerts",
	}

	cmd.AddCommand(alertListCmd())
	cmd.AddCommand(alertAckCmd())

	return cmd
}

func alertListCmd() *cobra.Command {
	var (
		instanceID string
		alertType  string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts (unresolved by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := primary.AlertFilters{
				InstanceID: instanceID,
				Type:       models.AlertType(alertType),
			}
			if !all {
				resolved := false
				filters.Resolved = &resolved
			}

			alerts, err := wire.MonitorService().ListAlerts(context.Background(), filters)
			if err != nil {
				return fmt.Errorf("failed to list alerts: %w", err)
			}
			if len(alerts) == 0 {
				fmt.Println("No alerts found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSEVERITY\tTYPE\tINSTANCE\tRAISED\tDETAIL")
			for _, a := range alerts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					a.ID, colorSeverity(a.Severity), a.Type, a.InstanceID,
					a.CreatedAt.UTC().Format(time.RFC3339), a.Detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "filter by instance")
	cmd.Flags().StringVar(&alertType, "type", "", "filter by alert type")
	cmd.Flags().BoolVar(&all, "all", false, "include resolved alerts")
	return cmd
}

func alertAckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ack [alert-id]",
		Short: "Acknowledge an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.MonitorService().AcknowledgeAlert(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to acknowledge alert: %w", err)
			}
			fmt.Printf("✓ Acknowledged %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func colorSeverity(s models.AlertSeverity) string {
	switch s {
	case models.SeverityCritical:
		return color.New(color.FgRed).Sprint(string(s))
	case models.SeverityWarning:
		return color.New(color.FgYellow).Sprint(string(s))
	default:
		return string(s)
	}
}
