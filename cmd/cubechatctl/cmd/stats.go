package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Long:  `Display statistics about the cubechat server including session counts and storage size.`,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	client := newClient()

	stats, err := client.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if outputJSON {
		return PrintJSON(stats)
	}

	fmt.Println("cubechat Server Statistics")
	fmt.Println("──────────────────────────")
	fmt.Printf("Server:    %s\n", serverURL)
	fmt.Printf("Cubes:     %d\n", stats.Cubes)
	fmt.Printf("Sessions:  %d\n", stats.Sessions.TotalSessions)
	fmt.Printf("Storage:   %s\n", formatBytes(stats.Sessions.StorageSizeBytes))

	return nil
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
