package cmd

import (
	"fmt"

	"github.com/sergev/cyton/config"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the OpenBCI board",
	Long:  "Check the status of the OpenBCI Cyton board connected via USB dongle.",
	Run: func(cmd *cobra.Command, args []string) {
		if board == nil {
			cobra.CheckErr(fmt.Errorf("board not available"))
		}

		// Print status information
		board.PrintStatus()

		fmt.Printf("\nConfiguration script: %s\n", config.Path())
		fmt.Printf("Board Setup: %s\n", config.BoardName)
		fmt.Printf("Read Timeout: %v\n", config.Timeout)
		if len(config.Disabled) > 0 {
			fmt.Printf("Disabled Channels: %v\n", config.Disabled)
		}
		if config.Gain != 0 {
			fmt.Printf("Gain: %dx\n", config.Gain)
		}
		fmt.Printf("Study: %d tasks\n", len(config.Study))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
