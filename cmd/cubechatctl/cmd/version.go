package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}

var versionAsJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionAsJSON {
			return PrintJSON(map[string]string{
				"version":    version,
				"commit":     commit,
				"build_time": buildTime,
				"go":         runtime.Version(),
			})
		}
		fmt.Printf("cubechatctl %s (commit %s, built %s, %s)\n",
			version, commit, buildTime, runtime.Version())
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionAsJSON, "json", false, "output as JSON")
}
