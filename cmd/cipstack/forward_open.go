package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tturner/cipstack/internal/cip/connection"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/cip/spec"
	"github.com/tturner/cipstack/internal/config"
	"github.com/tturner/cipstack/internal/errors"
)

func newForwardOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forward-open",
		Short: "Build and decode Forward Open/Close requests",
	}
	cmd.AddCommand(newForwardOpenBuildCmd())
	cmd.AddCommand(newForwardOpenDecodeCmd())
	return cmd
}

type forwardOpenBuildFlags struct {
	configPath string
	serial     uint16
	otoTID     uint32
	ttoOID     uint32
	close      bool
}

func newForwardOpenBuildCmd() *cobra.Command {
	flags := &forwardOpenBuildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Encode the Forward Open for the configured connection",
		Long: `Encode the Forward Open (or, with --close, the Forward Close) the
connection section of the configuration describes. Large Forward Open is
used when the connection is configured as large.`,
		Example: `  cipstack forward-open build --serial 0x1234
  cipstack forward-open build --config cipstack.yaml --close`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runForwardOpenBuild(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Configuration file (default: built-in defaults)")
	cmd.Flags().Uint16Var(&flags.serial, "serial", 1, "Connection serial number")
	cmd.Flags().Uint32Var(&flags.otoTID, "ot-id", 0, "Proposed O->T connection id")
	cmd.Flags().Uint32Var(&flags.ttoOID, "to-id", 0, "Proposed T->O connection id")
	cmd.Flags().BoolVar(&flags.close, "close", false, "Encode the matching Forward Close instead")

	return cmd
}

func loadConfigOrDefault(path string) (*config.Config, error) {
	if path == "" {
		return config.CreateDefaultConfig(), nil
	}
	return config.LoadConfig(path, false)
}

func runForwardOpenBuild(cmd *cobra.Command, flags *forwardOpenBuildFlags) error {
	cfg, err := loadConfigOrDefault(flags.configPath)
	if err != nil {
		return err
	}
	params, err := cfg.Connection.Params()
	if err != nil {
		return fmt.Errorf("connection parameters: %w", err)
	}

	var req *protocol.Request
	if flags.close {
		req, err = params.ForwardClose(flags.serial).Request()
	} else {
		ids := connection.IDs{Serial: flags.serial, OtoTID: flags.otoTID, TtoOID: flags.ttoOID}
		req, err = params.ForwardOpen(ids).Request()
	}
	if err != nil {
		return err
	}
	data, err := req.Encode()
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "% X\n", data)
	return nil
}

func newForwardOpenDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a Forward Open or Forward Close request",
		Long: `Decode a Forward Open, Large Forward Open or Forward Close request,
including the service and path header. Use - to read the hex from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "<hex>")
			}
			data, err := hexInput(cmd, args[0], "forward open")
			if err != nil {
				return err
			}
			return runForwardOpenDecode(cmd.OutOrStdout(), data)
		},
	}
	return cmd
}

func runForwardOpenDecode(out io.Writer, data []byte) error {
	req, err := protocol.ParseRequest(data)
	if err != nil {
		return errors.WrapDecodeError(err, "request")
	}
	if class := spec.TargetOf(req.Path).Class; class != spec.ClassConnectionManager {
		return fmt.Errorf("request addresses %s, not the Connection Manager", spec.ClassName(class))
	}
	switch req.Service {
	case spec.ServiceForwardOpen, spec.ServiceLargeForwardOpen:
		fo, err := connection.ParseForwardOpen(req.Data, req.Service == spec.ServiceLargeForwardOpen)
		if err != nil {
			return errors.WrapDecodeError(err, "forward open")
		}
		writeForwardOpen(out, fo)
	case spec.ServiceForwardClose:
		fc, err := connection.ParseForwardClose(req.Data)
		if err != nil {
			return errors.WrapDecodeError(err, "forward close")
		}
		fmt.Fprintf(out, "Forward_Close\n")
		fmt.Fprintf(out, "  Priority/tick:      0x%02X\n", fc.PriorityTick)
		fmt.Fprintf(out, "  Timeout ticks:      %d\n", fc.TimeoutTicks)
		fmt.Fprintf(out, "  Connection serial:  0x%04X\n", fc.Serial)
		fmt.Fprintf(out, "  Vendor:             0x%04X\n", fc.VendorID)
		fmt.Fprintf(out, "  Originator serial:  0x%08X\n", fc.OriginatorSerial)
		fmt.Fprintf(out, "  Path:               %s\n", fc.Path)
	default:
		return fmt.Errorf("service 0x%02X (%s) is not a Forward Open or Forward Close", uint8(req.Service), spec.ServiceName(req.Service))
	}
	return nil
}

func writeForwardOpen(out io.Writer, fo *connection.ForwardOpen) {
	name := "Forward_Open"
	if fo.Large {
		name = "Large_Forward_Open"
	}
	fmt.Fprintf(out, "%s\n", name)
	fmt.Fprintf(out, "  Priority/tick:      0x%02X\n", fo.PriorityTick)
	fmt.Fprintf(out, "  Timeout ticks:      %d\n", fo.TimeoutTicks)
	fmt.Fprintf(out, "  O->T id:            0x%08X\n", fo.OtoTID)
	fmt.Fprintf(out, "  T->O id:            0x%08X\n", fo.TtoOID)
	fmt.Fprintf(out, "  Connection serial:  0x%04X\n", fo.Serial)
	fmt.Fprintf(out, "  Vendor:             0x%04X\n", fo.VendorID)
	fmt.Fprintf(out, "  Originator serial:  0x%08X\n", fo.OriginatorSerial)
	fmt.Fprintf(out, "  Timeout multiplier: %d\n", fo.TimeoutMultiplier)
	fmt.Fprintf(out, "  O->T RPI:           %d us\n", fo.OtoTRPI)
	fmt.Fprintf(out, "  O->T parameters:    0x%X\n", fo.OtoTParams)
	fmt.Fprintf(out, "  T->O RPI:           %d us\n", fo.TtoORPI)
	fmt.Fprintf(out, "  T->O parameters:    0x%X\n", fo.TtoOParams)
	fmt.Fprintf(out, "  Transport trigger:  0x%02X\n", fo.TransportTrigger)
	fmt.Fprintf(out, "  Path:               %s\n", fo.Path)
	fmt.Fprintf(out, "  Timeout:            %s\n", connection.Timeout(fo.OtoTRPI, fo.TtoORPI, fo.TimeoutMultiplier))
}
