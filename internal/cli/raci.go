package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/coord/internal/wire"
)

// RaciCmd returns the raci command
func RaciCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raci",
		Short: "Inspect responsibility assignments",
	}

	cmd.AddCommand(raciResolveCmd())
	cmd.AddCommand(raciSweepCmd())

	return cmd
}

func raciResolveCmd() *cobra.Command {
	var exclude []string

	cmd := &cobra.Command{
		Use:   "resolve [workflow] [phase] [task-type]",
		Short: "Resolve the assignment for a task phase",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignment, picked, err := wire.RaciService().PickResponsible(
				context.Background(), args[0], args[1], args[2], exclude)
			if err != nil {
				return fmt.Errorf("failed to resolve: %w", err)
			}

			fmt.Printf("%s / %s / %s\n", assignment.WorkflowID, assignment.Phase, assignment.TaskType)
			fmt.Printf("  Responsible: %s\n", strings.Join(assignment.Responsible, ", "))
			fmt.Printf("  Accountable: %s\n", strings.Join(assignment.Accountable, ", "))
			if len(assignment.Consulted) > 0 {
				fmt.Printf("  Consulted:   %s\n", strings.Join(assignment.Consulted, ", "))
			}
			if len(assignment.Informed) > 0 {
				fmt.Printf("  Informed:    %s\n", strings.Join(assignment.Informed, ", "))
			}
			if assignment.MinApprovals > 0 {
				fmt.Printf("  Gate:        %d approvals", assignment.MinApprovals)
				if len(assignment.VetoPower) > 0 {
					fmt.Printf(", veto: %s", strings.Join(assignment.VetoPower, ", "))
				}
				fmt.Println()
			}
			fmt.Printf("✓ Would assign %s\n", picked)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "instance IDs to skip")
	return cmd
}

func raciSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fire escalations for overdue approval gates",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := wire.RaciService().SweepEscalations(context.Background())
			if err != nil {
				return fmt.Errorf("failed to sweep escalations: %w", err)
			}
			fmt.Printf("✓ Escalated %d overdue gate(s)\n", n)
			return nil
		},
	}
	return cmd
}
