// Package cmd is the CLI composition root: it wires config, a
// capture transport, trackreader, sectorset and diskimage together
// behind a cobra command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/fluxengine/fluxcore/config"
	"github.com/fluxengine/fluxcore/trackreader"
	"github.com/fluxengine/fluxcore/transport/serialcapture"
	"github.com/fluxengine/fluxcore/transport/usbcapture"
)

// logger is shared by every subcommand; verbosity is set from the
// --verbose persistent flag in rootCmd's PersistentPreRun.
var logger = log.New(os.Stderr)

var (
	verbose bool

	drive     config.Drive
	transport trackreader.Transport
)

var rootCmd = &cobra.Command{
	Use:   "fluxcore",
	Short: "Read floppy disks via USB flux capture hardware into sector images",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(log.DebugLevel)
		}

		switch cmd.Name() {
		case "read":
			break
		default:
			return
		}

		var err error
		drive, err = config.Load()
		if err != nil {
			cobra.CheckErr(fmt.Errorf("load config: %w", err))
		}

		transport, err = findTransport()
		if err != nil {
			cobra.CheckErr(fmt.Errorf("find capture device: %w", err))
		}
	},
}

// findTransport probes for a serial capture board first (the common
// case: a Greaseweazle-protocol device enumerates as a USB-serial
// port), falling back to a direct-USB capture board.
func findTransport() (trackreader.Transport, error) {
	ports, err := serialcapture.Ports()
	if err == nil && len(ports) > 0 {
		client, err := serialcapture.Open(ports[0].Name)
		if err == nil {
			logger.Info("found capture device", "transport", client.Name(), "port", ports[0].Name)
			return client, nil
		}
		logger.Warn("serial capture device did not respond", "port", ports[0].Name, "err", err)
	}

	client, err := usbcapture.Open()
	if err == nil {
		logger.Info("found capture device", "transport", client.Name())
		return client, nil
	}

	return nil, fmt.Errorf("no supported capture device found")
}

// formatDecoder returns the registered trackreader.FormatDecoder
// matching the configured drive's format name. Importing
// ibm/amiga/brother (read.go does) registers them from their init
// functions; this function just looks the registration up.
func formatDecoder(name string) (trackreader.FormatDecoder, error) {
	decoder, ok := trackreader.Formats[name]
	if !ok {
		return nil, fmt.Errorf("unknown format %q (want one of ibm, amiga, brother)", name)
	}
	return decoder, nil
}

// enumeratePorts is a thin wrapper used by the ports diagnostic
// subcommand.
func enumeratePorts() ([]*enumerator.PortDetails, error) {
	return enumerator.GetDetailedPortsList()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
