// Package cmd provides the command-line interface of vmsim.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vmsim",
	Short: "vmsim simulates the virtual memory of a small machine.",
	Long: `vmsim simulates the virtual memory of a small machine: a shared ` +
		`TLB, demand paging with FIFO or LRU replacement, and a swap store. ` +
		`It replays memory-access traces and reports what the memory ` +
		`manager did.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
