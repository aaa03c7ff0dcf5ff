package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/primary"
	"github.com/example/coord/internal/wire"
)

// MessageCmd returns the message command
func MessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send and track inter-persona messages",
	}

	cmd.AddCommand(messageSendCmd())
	cmd.AddCommand(messageAckCmd())
	cmd.AddCommand(messageRespondCmd())
	cmd.AddCommand(messageShowCmd())
	cmd.AddCommand(messageListCmd())

	return cmd
}

func messageSendCmd() *cobra.Command {
	var (
		sender          string
		executionID     string
		msgType         string
		priority        string
		body            string
		requiresAck     bool
		ackTimeout      int
		requiresResp    bool
		responseTimeout int
	)

	cmd := &cobra.Command{
		Use:   "send [recipient]",
		Short: "Send a message",
		Long: `Send a message to a persona instance.

Types: handoff, consultation, escalation, inform, ack.
Priorities: critical, high, medium (default), low.

Examples:
  coord message send backend-developer-1 --type handoff --requires-response --body "pick up TICKET-42"
  coord message send "*" --type inform --body "deploy window opens at 18:00"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := wire.MessengerService().Send(context.Background(), primary.SendRequest{
				ExecutionID:      executionID,
				Sender:           sender,
				Recipient:        args[0],
				Type:             models.MessageType(msgType),
				Priority:         models.MessagePriority(priority),
				Body:             body,
				RequiresAck:      requiresAck,
				AckTimeout:       time.Duration(ackTimeout) * time.Second,
				RequiresResponse: requiresResp,
				ResponseTimeout:  time.Duration(responseTimeout) * time.Second,
			})
			if err != nil {
				return fmt.Errorf("failed to send message: %w", err)
			}
			fmt.Printf("✓ Sent %s to %s\n", id, args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&sender, "from", "operator", "sender identity")
	cmd.Flags().StringVar(&executionID, "execution", "", "execution the message belongs to")
	cmd.Flags().StringVar(&msgType, "type", "inform", "message type")
	cmd.Flags().StringVar(&priority, "priority", "", "delivery lane (default medium)")
	cmd.Flags().StringVar(&body, "body", "", "message body")
	cmd.Flags().BoolVar(&requiresAck, "requires-ack", false, "require acknowledgment")
	cmd.Flags().IntVar(&ackTimeout, "ack-timeout", 0, "ack timeout in seconds (0 = configured default)")
	cmd.Flags().BoolVar(&requiresResp, "requires-response", false, "require a response (implies ack)")
	cmd.Flags().IntVar(&responseTimeout, "response-timeout", 0, "response timeout in seconds (0 = configured default)")
	return cmd
}

func messageAckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ack [message-id]",
		Short: "Acknowledge a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.MessengerService().Acknowledge(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to acknowledge: %w", err)
			}
			fmt.Printf("✓ Acknowledged %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func messageRespondCmd() *cobra.Command {
	var payload string

	cmd := &cobra.Command{
		Use:   "respond [message-id]",
		Short: "Respond to an acknowledged message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.MessengerService().Respond(context.Background(), args[0], payload); err != nil {
				return fmt.Errorf("failed to respond: %w", err)
			}
			fmt.Printf("✓ Responded to %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "", "response payload")
	return cmd
}

func messageShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [message-id]",
		Short: "Show a message and its delivery state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := wire.MessengerService().GetMessage(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get message: %w", err)
			}

			fmt.Printf("Message %s\n", msg.ID)
			fmt.Printf("  %s -> %s [%s/%s]\n", msg.Sender, msg.Recipient, msg.Type, msg.Priority)
			fmt.Printf("  Status:   %s (attempt %d)\n", msg.Status, msg.Attempts)
			if msg.Body != "" {
				fmt.Printf("  Body:     %s\n", msg.Body)
			}
			if msg.Response != "" {
				fmt.Printf("  Response: %s\n", msg.Response)
			}
			if msg.ExpiresAt != nil {
				fmt.Printf("  Deadline: %s\n", msg.ExpiresAt.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
	return cmd
}

func messageListCmd() *cobra.Command {
	var (
		recipient   string
		executionID string
		status      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := wire.MessengerService().ListMessages(context.Background(), primary.MessageFilters{
				Recipient:   recipient,
				ExecutionID: executionID,
				Status:      models.MessageStatus(status),
			})
			if err != nil {
				return fmt.Errorf("failed to list messages: %w", err)
			}
			if len(msgs) == 0 {
				fmt.Println("No messages found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tPRIORITY\tRECIPIENT\tSTATUS\tATTEMPTS")
			for _, m := range msgs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
					m.ID, m.Type, m.Priority, m.Recipient, m.Status, m.Attempts)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&recipient, "recipient", "", "filter by recipient")
	cmd.Flags().StringVar(&executionID, "execution", "", "filter by execution")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}
