package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tturner/cipstack/internal/cip/catalog"
	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/cip/spec"
	"github.com/tturner/cipstack/internal/config"
	"github.com/tturner/cipstack/internal/errors"
)

func newRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Build and decode CIP requests",
	}
	cmd.AddCommand(newRequestBuildCmd())
	cmd.AddCommand(newRequestDecodeCmd())
	return cmd
}

type requestBuildFlags struct {
	catalogPath  string
	route        string
	priorityTick uint8
	timeoutTicks uint8
}

func newRequestBuildCmd() *cobra.Command {
	flags := &requestBuildFlags{}

	cmd := &cobra.Command{
		Use:   "build <key>...",
		Short: "Encode catalog requests",
		Long: `Encode the requests named by catalog keys. Several keys are combined
into one Multiple Service Packet. With --route the result is wrapped in
an Unconnected Send along the route.`,
		Example: `  cipstack request build identity.vendor_id
  cipstack request build identity.vendor_id identity.serial_number --route 1,0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "<key>")
			}
			return runRequestBuild(cmd, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.catalogPath, "catalog", "", "Catalog YAML file (default: built-in catalog)")
	cmd.Flags().StringVar(&flags.route, "route", "", "Wrap in Unconnected Send along port,link pairs")
	cmd.Flags().Uint8Var(&flags.priorityTick, "priority-tick", 0x0A, "Unconnected Send priority/tick time byte")
	cmd.Flags().Uint8Var(&flags.timeoutTicks, "timeout-ticks", 0x0E, "Unconnected Send timeout ticks")

	return cmd
}

func runRequestBuild(cmd *cobra.Command, flags *requestBuildFlags, keys []string) error {
	cat, err := catalog.Open(flags.catalogPath)
	if err != nil {
		return err
	}

	reqs := make([]*protocol.Request, 0, len(keys))
	for _, key := range keys {
		e, ok := cat.Lookup(key)
		if !ok {
			return fmt.Errorf("catalog %s has no entry %q", cat.Name(), key)
		}
		req, err := e.Request()
		if err != nil {
			return fmt.Errorf("entry %s: %w", key, err)
		}
		reqs = append(reqs, req)
	}

	req := reqs[0]
	if len(reqs) > 1 {
		if req, err = protocol.NewMultiServiceRequest(protocol.MessageRouterPath(), reqs...); err != nil {
			return err
		}
	}
	if flags.route != "" {
		segs, err := config.ParseRoute(flags.route)
		if err != nil {
			return fmt.Errorf("--route: %w", err)
		}
		if req, err = protocol.NewUnconnectedSend(req, codec.NewEPath(true, segs...), flags.priorityTick, flags.timeoutTicks); err != nil {
			return err
		}
	}

	data, err := req.Encode()
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "% X\n", data)
	return nil
}

func newRequestDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode an encoded CIP request",
		Long: `Decode a CIP request. Unconnected Send and Multiple Service Packet
requests are unwrapped and their embedded requests decoded too. Use - to
read the hex from stdin.`,
		Example: `  cipstack request decode "0E 03 20 01 24 01 30 01"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "<hex>")
			}
			data, err := hexInput(cmd, args[0], "request")
			if err != nil {
				return err
			}
			return writeRequest(cmd.OutOrStdout(), data, "")
		},
	}
	return cmd
}

// writeRequest describes one request, then any embedded requests indented
// one level deeper.
func writeRequest(out io.Writer, data []byte, indent string) error {
	req, err := protocol.ParseRequest(data)
	if err != nil {
		return errors.WrapDecodeError(err, "request")
	}
	target := spec.TargetOf(req.Path)
	label, _ := spec.LabelService(req.Service, target, false)
	fmt.Fprintf(out, "%sService: 0x%02X %s\n", indent, uint8(req.Service), label)
	if req.RawPath != nil {
		fmt.Fprintf(out, "%sPath: undecodable % X\n", indent, req.RawPath)
	} else {
		fmt.Fprintf(out, "%sPath: %s\n", indent, req.Path)
		if target.Class != 0 {
			fmt.Fprintf(out, "%sClass: 0x%02X %s\n", indent, target.Class, spec.ClassName(target.Class))
		}
	}
	if len(req.Data) > 0 {
		fmt.Fprintf(out, "%sData (%d): % X\n", indent, len(req.Data), req.Data)
	}
	if err := spec.DefaultRegistry().CheckRequest(target.Class, req.Service, req.Data); err != nil {
		fmt.Fprintf(out, "%sWarning: %v\n", indent, err)
	}

	switch {
	case req.Service == spec.ServiceUnconnectedSend && target.Class == spec.ClassConnectionManager:
		us, err := protocol.ParseUnconnectedSend(req.Data)
		if err != nil {
			return errors.WrapDecodeError(err, "unconnected send")
		}
		fmt.Fprintf(out, "%sPriority/tick: 0x%02X  Timeout ticks: %d\n", indent, us.PriorityTick, us.TimeoutTicks)
		if us.RawRoute != nil {
			fmt.Fprintf(out, "%sRoute: undecodable % X\n", indent, us.RawRoute)
		} else {
			fmt.Fprintf(out, "%sRoute: %s\n", indent, us.Route)
		}
		fmt.Fprintf(out, "%sEmbedded:\n", indent)
		return writeRequest(out, us.Message, indent+"  ")
	case req.Service == spec.ServiceMultipleService && target.Class == spec.ClassMessageRouter:
		parts, err := protocol.SplitMultiServiceRequest(req.Data)
		if err != nil {
			return errors.WrapDecodeError(err, "multiple service packet")
		}
		for i, part := range parts {
			fmt.Fprintf(out, "%sRequest %d:\n", indent, i+1)
			if err := writeRequest(out, part, indent+"  "); err != nil {
				return err
			}
		}
	}
	return nil
}

type responseDecodeFlags struct {
	typeName string
}

func newResponseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "response",
		Short: "Decode CIP replies",
	}
	cmd.AddCommand(newResponseDecodeCmd())
	return cmd
}

func newResponseDecodeCmd() *cobra.Command {
	flags := &responseDecodeFlags{}

	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode an encoded CIP reply",
		Long: `Decode a CIP reply: service, general and extended status, and data.
With --type the data of a successful reply is decoded as that type, e.g.
UINT, SHORT_STRING, USINT[2] or UINT[] for an array filling the data.`,
		Example: `  cipstack response decode "8E 00 00 00 01 00" --type UINT
  cipstack response decode "D4 00 01 01 00 01"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "<hex>")
			}
			data, err := hexInput(cmd, args[0], "reply")
			if err != nil {
				return err
			}
			return runResponseDecode(cmd.OutOrStdout(), flags, data)
		},
	}

	cmd.Flags().StringVar(&flags.typeName, "type", "", "Decode the reply data as this type")

	return cmd
}

func runResponseDecode(out io.Writer, flags *responseDecodeFlags, data []byte) error {
	dt, err := catalog.ParseType(flags.typeName)
	if err != nil {
		return fmt.Errorf("--type: %w", err)
	}
	resp, err := protocol.ParseResponse(data)
	if err != nil {
		return errors.WrapDecodeError(err, "reply")
	}

	fmt.Fprintf(out, "Service: 0x%02X %s\n", uint8(resp.Service), spec.ServiceName(resp.Service))
	fmt.Fprintf(out, "Status: 0x%02X %s\n", resp.Status.Code, resp.Status.Description)
	for _, ext := range resp.ExtendedStatus() {
		desc, ok := protocol.ExtendedStatusDescription(resp.Status.Code, ext)
		if !ok {
			desc = "unknown"
		}
		fmt.Fprintf(out, "Extended: 0x%04X %s\n", ext, desc)
	}
	if len(resp.Data) > 0 {
		fmt.Fprintf(out, "Data (%d): % X\n", len(resp.Data), resp.Data)
	}
	if dt == nil || resp.Status.Error || len(resp.Data) == 0 {
		return nil
	}
	value, err := codec.DecodeBytes(resp.Data, dt)
	if err != nil {
		return errors.WrapDecodeError(err, "reply data as "+dt.String())
	}
	fmt.Fprintf(out, "Value (%s): %v\n", dt, value)
	return nil
}
