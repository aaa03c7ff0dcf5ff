package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/primary"
	"github.com/example/coord/internal/wire"
)

// ExecutionCmd returns the execution command
func ExecutionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution",
		Short: "Manage task executions",
		Long:  `Ingest state events, inspect merged executions, and manage approval gates.`,
	}

	cmd.AddCommand(executionIngestCmd())
	cmd.AddCommand(executionShowCmd())
	cmd.AddCommand(executionListCmd())
	cmd.AddCommand(executionCancelCmd())
	cmd.AddCommand(executionApproveCmd())
	cmd.AddCommand(executionVetoCmd())

	return cmd
}

func executionIngestCmd() *cobra.Command {
	var (
		workflowID string
		taskType   string
		eventType  string
		payload    []string
	)

	cmd := &cobra.Command{
		Use:   "ingest [work-item-id] [source] [sequence]",
		Short: "Ingest a state event",
		Long: `Apply one state event from an authority feed.

Source is authority_a (AI graph), authority_b (process engine), or internal.
Payload fields are key=value pairs; the "phase" field drives routing.

Examples:
  coord execution ingest TICKET-42 authority_b 1 --payload phase=implementation
  coord execution ingest TICKET-42 authority_a 1 --payload design_doc=DOC-9`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence %q: %w", args[2], err)
			}
			fields := map[string]string{}
			for _, p := range payload {
				k, v, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("invalid payload field %q, want key=value", p)
				}
				fields[k] = v
			}

			res, err := wire.ReconcilerService().Ingest(context.Background(), primary.IngestRequest{
				WorkItemID: args[0],
				WorkflowID: workflowID,
				TaskType:   taskType,
				Source:     models.EventSource(args[1]),
				Type:       eventType,
				Payload:    fields,
				Sequence:   seq,
			})
			if err != nil {
				return fmt.Errorf("failed to ingest event: %w", err)
			}

			fmt.Printf("✓ Reconciled %s: phase=%s sync=%s\n", res.ExecutionID, res.MergedPhase, res.SyncStatus)
			if res.Assigned != "" {
				fmt.Printf("  Handoff sent to %s\n", res.Assigned)
			}
			if len(res.Conflicts) > 0 {
				fmt.Printf("  %s on: %s\n", color.New(color.FgYellow).Sprint("Conflicts"), strings.Join(res.Conflicts, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow", "", "workflow ID (first event only)")
	cmd.Flags().StringVar(&taskType, "task-type", "", "task type (first event only)")
	cmd.Flags().StringVar(&eventType, "type", "state_changed", "event type")
	cmd.Flags().StringArrayVar(&payload, "payload", nil, "payload field key=value (repeatable)")
	return cmd
}

func executionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [work-item-id]",
		Short: "Show the merged execution for a work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := wire.ReconcilerService().GetExecution(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get execution: %w", err)
			}

			fmt.Printf("Execution %s\n", view.ID)
			fmt.Printf("  Work item: %s\n", view.WorkItemID)
			if view.WorkflowID != "" {
				fmt.Printf("  Workflow:  %s\n", view.WorkflowID)
			}
			fmt.Printf("  Phase:     %s\n", view.CurrentPhase)
			fmt.Printf("  Status:    %s\n", view.Status)
			fmt.Printf("  Sync:      %s\n", colorSyncStatus(view.SyncStatus))
			if len(view.AssignedWorkers) > 0 {
				fmt.Printf("  Assigned:  %s\n", strings.Join(view.AssignedWorkers, ", "))
			}
			if view.ErrorDetails != "" {
				fmt.Printf("  Error:     %s\n", color.New(color.FgRed).Sprint(view.ErrorDetails))
			}
			return nil
		},
	}
	return cmd
}

func executionListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			views, err := wire.ReconcilerService().ListExecutions(context.Background(), primary.ExecutionFilters{
				Status: models.ExecutionStatus(status),
			})
			if err != nil {
				return fmt.Errorf("failed to list executions: %w", err)
			}
			if len(views) == 0 {
				fmt.Println("No executions found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWORK ITEM\tPHASE\tSTATUS\tSYNC\tASSIGNED")
			for _, v := range views {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					v.ID, v.WorkItemID, v.CurrentPhase, v.Status, v.SyncStatus, strings.Join(v.AssignedWorkers, ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (running|completed|failed|cancelled)")
	return cmd
}

func executionCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel [work-item-id]",
		Short: "Cancel the active execution for a work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.ReconcilerService().Cancel(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to cancel execution: %w", err)
			}
			fmt.Printf("✓ Cancelled execution for %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func executionApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve [execution-id] [phase] [instance-id]",
		Short: "Record an approval on a phase gate",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			open, err := wire.RaciService().Approve(context.Background(), args[0], args[1], args[2])
			if err != nil {
				return fmt.Errorf("failed to approve: %w", err)
			}
			if open {
				fmt.Printf("✓ Approval recorded; gate for %s/%s is open\n", args[0], args[1])
			} else {
				fmt.Printf("✓ Approval recorded; gate for %s/%s still needs approvals\n", args[0], args[1])
			}
			return nil
		},
	}
	return cmd
}

func executionVetoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "veto [execution-id] [phase] [instance-id]",
		Short: "Veto a phase gate",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.RaciService().Veto(context.Background(), args[0], args[1], args[2]); err != nil {
				return fmt.Errorf("failed to veto: %w", err)
			}
			fmt.Printf("✓ Phase %s of %s vetoed by %s\n", args[1], args[0], args[2])
			return nil
		},
	}
	return cmd
}

func colorSyncStatus(s models.SyncStatus) string {
	switch s {
	case models.SyncInSync:
		return color.New(color.FgGreen).Sprint(string(s))
	case models.SyncDiverged:
		return color.New(color.FgYellow).Sprint(string(s))
	default:
		return string(s)
	}
}
