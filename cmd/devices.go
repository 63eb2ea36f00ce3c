// cmd/devices.go
package cmd

import (
	"fmt"
	"io"

	"github.com/ColonelBlimp/tonemeter/internal/audio"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

func runDevices(cmd *cobra.Command, _ []string) error {
	capture := audio.New(audio.DefaultConfig())
	if err := capture.Init(); err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	defer func() { _ = capture.Close() }()

	names, err := capture.DeviceNames()
	if err != nil {
		return fmt.Errorf("audio devices: %w", err)
	}
	return printDevices(cmd.OutOrStdout(), names)
}

func printDevices(w io.Writer, names []string) error {
	if len(names) == 0 {
		_, err := fmt.Fprintln(w, "no capture devices found")
		return err
	}
	for i, name := range names {
		if _, err := fmt.Fprintf(w, "%3d  %s\n", i, name); err != nil {
			return err
		}
	}
	return nil
}
