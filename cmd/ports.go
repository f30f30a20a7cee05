package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List detected serial ports, for diagnosing capture device detection",
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := enumeratePorts()
		if err != nil {
			cobra.CheckErr(fmt.Errorf("list ports: %w", err))
		}
		if len(ports) == 0 {
			fmt.Println("no serial ports found")
			return
		}
		for _, p := range ports {
			fmt.Printf("%s  vid=%s pid=%s usb=%v\n", p.Name, p.VID, p.PID, p.IsUSB)
		}
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
