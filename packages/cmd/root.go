// Package cmd implements the sheetd command line.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sheetd",
	Short: "Networked reactive spreadsheet server",
	Long: `sheetd serves a shared sheet of cells to many clients. clients send
"get <cell>" and "set <cell> <expression>" commands; every cell that
depends on a changed cell is recomputed in the background.`,
	SilenceUsage: true,
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}
