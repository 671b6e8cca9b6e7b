package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and delete conversation sessions",
}

var sessionGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show a session's transcript and state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionGet,
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionDelete,
}

func init() {
	sessionCmd.AddCommand(sessionGetCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
}

func runSessionGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	sess, err := client.GetSession(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	if outputJSON {
		return PrintJSON(sess)
	}

	fmt.Printf("Session: %s\n", sess.ID)
	if sess.Cube != "" {
		fmt.Printf("Cube: %s\n", sess.Cube)
	}
	fmt.Printf("Created: %s\n", sess.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated: %s\n", sess.UpdatedAt.Format("2006-01-02 15:04:05"))

	if len(sess.Turns) > 0 {
		fmt.Println("\nTranscript:")
		for _, t := range sess.Turns {
			who := "AI"
			if t.FromUser {
				who = "User"
			}
			fmt.Printf("  [%s] %s\n", who, t.Content)
		}
	}

	if len(sess.FormState) > 0 {
		fmt.Println("\nQuery form:")
		fmt.Printf("  %s\n", string(sess.FormState))
	}

	return nil
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	client := newClient()

	if err := client.DeleteSession(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	fmt.Printf("Session %s deleted\n", args[0])
	return nil
}
