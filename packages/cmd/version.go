package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
var (
	Version = "0.1.0"
	Commit  = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if commit := resolveCommit(); commit != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "sheetd version %s (%s)\n", Version, commit)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sheetd version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func resolveCommit() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
				return setting.Value[:7]
			}
		}
	}
	return ""
}
