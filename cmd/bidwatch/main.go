package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "bidwatch",
	Short:         "Watch the CBF transfer registry and announce new contracts",
	Long:          "bidwatch polls the CBF transfer registry (BID) for newly published\ncontracts, renders an announcement card for each one, and posts it to X.\nRun without arguments for the interactive menu.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Flag aliases for the common subcommands, for cron lines and
		// muscle memory from the previous generation of this tool.
		switch {
		case flagAuto:
			return runWatch()
		case flagOnce:
			return runOnce()
		case flagStatus:
			return showStatus()
		}
		return runMenu(cmd.Context())
	},
}

var (
	flagAuto   bool
	flagOnce   bool
	flagStatus bool
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.Flags().BoolVar(&flagAuto, "auto", false, "same as the watch subcommand")
	rootCmd.Flags().BoolVar(&flagOnce, "once", false, "same as the once subcommand")
	rootCmd.Flags().BoolVar(&flagStatus, "status", false, "same as the status subcommand")
	rootCmd.AddCommand(watchCmd, onceCmd, statusCmd, historyCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
