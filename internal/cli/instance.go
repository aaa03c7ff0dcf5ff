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

// InstanceCmd returns the instance command
func InstanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage persona instances and their lifecycle",
	}

	cmd.AddCommand(instanceCreateCmd())
	cmd.AddCommand(instanceListCmd())
	cmd.AddCommand(instanceShowCmd())
	cmd.AddCommand(instanceTransitionCmd())
	cmd.AddCommand(instanceHistoryCmd())
	cmd.AddCommand(instanceMaintenanceCmd())
	cmd.AddCommand(instanceHealthCheckCmd())
	cmd.AddCommand(instanceDecommissionCmd())

	return cmd
}

func instanceCreateCmd() *cobra.Command {
	var (
		role         string
		maxTasks     int
		priority     int
		dailyLimit   float64
		monthlyLimit float64
	)

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Register a new persona instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := wire.LifecycleService().CreateInstance(context.Background(), primary.CreateInstanceRequest{
				Name:               args[0],
				Role:               role,
				MaxConcurrentTasks: maxTasks,
				PriorityLevel:      priority,
				SpendLimitDaily:    dailyLimit,
				SpendLimitMonthly:  monthlyLimit,
			})
			if err != nil {
				return fmt.Errorf("failed to create instance: %w", err)
			}
			fmt.Printf("✓ Created instance %s (%s) in %s\n", inst.ID, inst.Name, inst.State)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "persona role (required)")
	cmd.Flags().IntVar(&maxTasks, "max-tasks", 3, "maximum concurrent tasks")
	cmd.Flags().IntVar(&priority, "priority", 5, "priority level for load tie-breaks")
	cmd.Flags().Float64Var(&dailyLimit, "daily-limit", 50, "daily spend limit")
	cmd.Flags().Float64Var(&monthlyLimit, "monthly-limit", 1000, "monthly spend limit")
	cmd.MarkFlagRequired("role")
	return cmd
}

func instanceListCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persona instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			instances, err := wire.LifecycleService().ListInstances(context.Background(), role)
			if err != nil {
				return fmt.Errorf("failed to list instances: %w", err)
			}
			if len(instances) == 0 {
				fmt.Println("No instances found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tROLE\tSTATE\tTASKS\tDAILY SPEND")
			for _, inst := range instances {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%.2f/%.2f\n",
					inst.ID, inst.Name, inst.Role, colorState(inst.State),
					inst.ActiveTasks, inst.MaxConcurrentTasks,
					inst.CurrentSpendDaily, inst.SpendLimitDaily)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "filter by role")
	return cmd
}

func instanceShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [instance-id]",
		Short: "Show an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := wire.LifecycleService().GetInstance(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get instance: %w", err)
			}
			health, err := wire.MonitorService().Health(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to derive health: %w", err)
			}

			fmt.Printf("Instance %s (%s)\n", inst.ID, inst.Name)
			fmt.Printf("  Role:     %s\n", inst.Role)
			fmt.Printf("  State:    %s\n", colorState(inst.State))
			fmt.Printf("  Health:   %s\n", health)
			fmt.Printf("  Tasks:    %d/%d (priority %d)\n", inst.ActiveTasks, inst.MaxConcurrentTasks, inst.PriorityLevel)
			fmt.Printf("  Spend:    %.2f/%.2f daily, %.2f/%.2f monthly\n",
				inst.CurrentSpendDaily, inst.SpendLimitDaily,
				inst.CurrentSpendMonthly, inst.SpendLimitMonthly)
			fmt.Printf("  Last activity: %s\n", inst.LastActivityAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	return cmd
}

func instanceTransitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition [instance-id] [state]",
		Short: "Request a lifecycle state change",
		Long: `Request a lifecycle transition. Illegal transitions are rejected and
recorded as failed attempts in the lifecycle history.

States: provisioning, initializing, active, busy, paused, error,
maintenance, terminating, terminated.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to := models.LifecycleState(args[1])
			if err := wire.LifecycleService().Transition(context.Background(), args[0], to, models.TriggerUser); err != nil {
				return fmt.Errorf("failed to transition: %w", err)
			}
			fmt.Printf("✓ Transitioned %s to %s\n", args[0], to)
			return nil
		},
	}
	return cmd
}

func instanceHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [instance-id]",
		Short: "Show lifecycle history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, events, err := wire.LifecycleService().History(context.Background(), args[0], limit)
			if err != nil {
				return fmt.Errorf("failed to get history: %w", err)
			}

			fmt.Printf("Instance %s: %s (errors %d, maintenance windows %d)\n",
				record.InstanceID, colorState(record.CurrentState), record.ErrorCount, record.MaintenanceCount)
			if record.ManualClearance {
				fmt.Println(color.New(color.FgYellow).Sprint("  Manual clearance required before resuming."))
			}
			if len(events) == 0 {
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tFROM\tTO\tBY\tOK\tDETAIL")
			for _, ev := range events {
				ok := "yes"
				if !ev.Success {
					ok = "no"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					ev.OccurredAt.UTC().Format(time.RFC3339), ev.FromState, ev.ToState, ev.TriggeredBy, ok, ev.Detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of events to show")
	return cmd
}

func instanceMaintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Manage maintenance windows",
	}

	start := &cobra.Command{
		Use:   "start [instance-id]",
		Short: "Enter a maintenance window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.LifecycleService().StartMaintenance(context.Background(), args[0], models.TriggerUser); err != nil {
				return fmt.Errorf("failed to start maintenance: %w", err)
			}
			fmt.Printf("✓ Instance %s entered maintenance\n", args[0])
			return nil
		},
	}

	var autoResume bool
	end := &cobra.Command{
		Use:   "end [instance-id]",
		Short: "Close a maintenance window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.LifecycleService().EndMaintenance(context.Background(), args[0], autoResume); err != nil {
				return fmt.Errorf("failed to end maintenance: %w", err)
			}
			fmt.Printf("✓ Maintenance ended for %s\n", args[0])
			return nil
		},
	}
	end.Flags().BoolVar(&autoResume, "resume", true, "return the instance to active")

	clear := &cobra.Command{
		Use:   "clear [instance-id]",
		Short: "Lift a manual-clearance hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.LifecycleService().ClearMaintenance(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to clear maintenance: %w", err)
			}
			fmt.Printf("✓ Cleared maintenance hold for %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(start, end, clear)
	return cmd
}

func instanceHealthCheckCmd() *cobra.Command {
	var (
		failed bool
		detail string
	)

	cmd := &cobra.Command{
		Use:   "health-check [instance-id]",
		Short: "Record a health probe result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.LifecycleService().RecordHealthCheck(context.Background(), args[0], !failed, detail); err != nil {
				return fmt.Errorf("failed to record health check: %w", err)
			}
			result := "healthy"
			if failed {
				result = "unhealthy"
			}
			fmt.Printf("✓ Recorded %s check for %s\n", result, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "record a failed probe")
	cmd.Flags().StringVar(&detail, "detail", "", "probe detail")
	return cmd
}

func instanceDecommissionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decommission [instance-id]",
		Short: "Terminate and remove an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.LifecycleService().Decommission(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to decommission: %w", err)
			}
			fmt.Printf("✓ Decommissioned %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func colorState(s models.LifecycleState) string {
	switch s {
	case models.StateActive, models.StateBusy:
		return color.New(color.FgGreen).Sprint(string(s))
	case models.StateError:
		return color.New(color.FgRed).Sprint(string(s))
	case models.StateMaintenance, models.StatePaused:
		return color.New(color.FgYellow).Sprint(string(s))
	default:
		return string(s)
	}
}
