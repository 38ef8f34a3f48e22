package cmd

import (
	"fmt"

	"github.com/sergev/cyton/transport"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long:  "List serial ports available for the USB dongle. The board is not opened.",
	Args:  cobra.NoArgs,
	// Override PersistentPreRun to skip board connection
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setup()
	},
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := transport.List()
		if err != nil {
			cobra.CheckErr(err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return
		}
		for _, port := range ports {
			if !port.IsUSB {
				fmt.Printf("%s\n", port.Name)
				continue
			}
			fmt.Printf("%s: USB VID=0x%s PID=0x%s", port.Name, port.VID, port.PID)
			if port.Product != "" {
				fmt.Printf(" %s", port.Product)
			}
			if port.SerialNumber != "" {
				fmt.Printf(" serial %s", port.SerialNumber)
			}
			fmt.Printf("\n")
		}
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
