// Package cmd provides CLI commands for cubechatctl.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/datales/cubechat/pkg/cubechat"
)

var (
	// Global flags
	serverURL  string
	apiKey     string
	outputJSON bool
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "cubechatctl",
	Short: "cubechat CLI - Ask questions against OLAP cubes",
	Long: `cubechatctl is a command-line tool for interacting with the cubechat server.

cubechat turns natural-language questions into data cube queries across
a multi-turn conversation, asking for whatever is still missing before
it runs the query.

Use cubechatctl to:
  - Ask questions and continue conversations
  - Inspect and delete sessions
  - Browse the cube catalog
  - View server statistics`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", getEnvOrDefault("CUBECHAT_URL", "http://localhost:8080"), "cubechat server URL")
	rootCmd.PersistentFlags().StringVarP(&apiKey, "api-key", "k", os.Getenv("CUBECHAT_API_KEY"), "API key for authenticated servers")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "Output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(cubesCmd)
	rootCmd.AddCommand(statsCmd)
}

// newClient builds the SDK client from the global flags.
func newClient() *cubechat.Client {
	opts := []cubechat.ClientOption{cubechat.WithBaseURL(serverURL)}
	if apiKey != "" {
		opts = append(opts, cubechat.WithAPIKey(apiKey))
	}
	return cubechat.New(opts...)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
