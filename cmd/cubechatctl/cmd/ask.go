package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datales/cubechat/pkg/cubechat"
)

var (
	askSessionID string
	askMaxRows   int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the data",
	Long: `Ask a natural-language question against the cube catalog.

Without --session a new conversation starts; the printed session ID can
be passed back to answer clarifications or refine the query.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSessionID, "session", "", "Session ID to continue")
	askCmd.Flags().IntVar(&askMaxRows, "max-rows", 20, "Maximum result rows to print")
}

func runAsk(cmd *cobra.Command, args []string) error {
	client := newClient()

	resp, err := client.Chat(context.Background(), askSessionID, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("failed to ask: %w", err)
	}

	if outputJSON {
		return PrintJSON(resp)
	}

	fmt.Println(resp.Message)
	fmt.Printf("\nSession: %s (status: %s)\n", resp.SessionID, resp.Status)

	if resp.Query != nil {
		fmt.Printf("Cube: %s\n", resp.Query.Cube)
		if len(resp.Query.Drilldowns) > 0 {
			fmt.Printf("Drilldowns: %s\n", strings.Join(resp.Query.Drilldowns, ", "))
		}
		if len(resp.Query.Measures) > 0 {
			fmt.Printf("Measures: %s\n", strings.Join(resp.Query.Measures, ", "))
		}
		if resp.Query.Cuts != "" {
			fmt.Printf("Filters: %s\n", resp.Query.Cuts)
		}
	}

	if resp.Status == cubechat.StatusAnswer && resp.Result != nil && len(resp.Result.Rows) > 0 {
		fmt.Println()
		printResult(resp.Result)
	}

	return nil
}

func printResult(result *cubechat.Result) {
	headers := result.Columns
	if len(headers) == 0 {
		return
	}

	var rows [][]string
	for i, row := range result.Rows {
		if i >= askMaxRows {
			break
		}
		cells := make([]string, 0, len(headers))
		for _, col := range headers {
			cells = append(cells, fmt.Sprintf("%v", row[col]))
		}
		rows = append(rows, cells)
	}
	PrintTable(headers, rows)

	if len(result.Rows) > askMaxRows {
		fmt.Printf("... and %d more rows\n", len(result.Rows)-askMaxRows)
	}
}
