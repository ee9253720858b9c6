package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tturner/cipstack/internal/errors"
	"github.com/tturner/cipstack/internal/pcap"
	"github.com/tturner/cipstack/internal/report"
)

func newPcapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pcap",
		Short: "Decode EtherNet/IP traffic in packet captures",
		Long: `Decode the EtherNet/IP encapsulation and CIP messages in a pcap or pcapng
capture. TCP and UDP traffic on port 44818 is decoded; requests and
replies are matched by session and sender context, or by connection
sequence count for connected messages.`,
	}
	cmd.AddCommand(newPcapSummaryCmd())
	cmd.AddCommand(newPcapDumpCmd())
	return cmd
}

type pcapSummaryFlags struct {
	inputFile string
	json      bool
	jsonOut   string
}

func newPcapSummaryCmd() *cobra.Command {
	flags := &pcapSummaryFlags{}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize ENIP/CIP traffic in a capture",
		Long: `Summarize ENIP/CIP traffic in a capture: command, service and status
counts, decode issues and the most common request paths.

If --input is omitted, the first positional argument is used.`,
		Example: `  cipstack pcap summary --input capture.pcap
  cipstack pcap summary capture.pcap --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.inputFile == "" && len(args) > 0 {
				flags.inputFile = args[0]
			}
			if flags.inputFile == "" {
				return missingFlagError(cmd, "--input")
			}
			return runPcapSummary(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.inputFile, "input", "", "Input capture file (required)")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Write the summary as JSON")
	cmd.Flags().StringVar(&flags.jsonOut, "json-out", "", "Also write the JSON summary to this file")

	return cmd
}

func runPcapSummary(cmd *cobra.Command, flags *pcapSummaryFlags) error {
	summary, _, err := pcap.SummarizeFile(flags.inputFile)
	if err != nil {
		return errors.WrapCaptureError(err, flags.inputFile)
	}

	rep := report.NewSummaryReport(flags.inputFile, version, summary)
	if flags.jsonOut != "" {
		if err := report.WriteJSONFile(flags.jsonOut, rep); err != nil {
			return err
		}
	}
	if flags.json {
		return report.WriteJSON(cmd.OutOrStdout(), rep)
	}
	report.WritePCAPSummary(cmd.OutOrStdout(), summary)
	return nil
}

type pcapDumpFlags struct {
	inputFile string
	issues    bool
}

func newPcapDumpCmd() *cobra.Command {
	flags := &pcapDumpFlags{}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every decoded ENIP/CIP frame",
		Long: `Print one line per EtherNet/IP frame with its command, CIP service,
path and reply status. Decode issues are listed under the frame.

If --input is omitted, the first positional argument is used.`,
		Example: `  cipstack pcap dump capture.pcap
  cipstack pcap dump capture.pcap --issues`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.inputFile == "" && len(args) > 0 {
				flags.inputFile = args[0]
			}
			if flags.inputFile == "" {
				return missingFlagError(cmd, "--input")
			}
			return runPcapDump(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.inputFile, "input", "", "Input capture file (required)")
	cmd.Flags().BoolVar(&flags.issues, "issues", false, "Only print frames with decode issues")

	return cmd
}

func runPcapDump(cmd *cobra.Command, flags *pcapDumpFlags) error {
	frames, err := pcap.ReadFile(flags.inputFile)
	if err != nil {
		return errors.WrapCaptureError(err, flags.inputFile)
	}
	records := pcap.Decode(frames)
	if flags.issues {
		var filtered []pcap.Record
		for _, r := range records {
			if len(r.Issues) > 0 {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No frames")
		return nil
	}
	report.WriteRecords(cmd.OutOrStdout(), records)
	return nil
}
