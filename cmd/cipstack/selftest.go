package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/tturner/cipstack/internal/app"
	"github.com/tturner/cipstack/internal/cip/catalog"
	"github.com/tturner/cipstack/internal/errors"
	"github.com/tturner/cipstack/internal/logging"
	"github.com/tturner/cipstack/internal/metrics"
	"github.com/tturner/cipstack/internal/report"
)

type selfTestFlags struct {
	configPath  string
	catalogPath string
	keys        []string
	connected   bool
	pcapOut     string
	json        bool
	metricsCSV  string
	progress    bool
}

func newSelfTestCmd() *cobra.Command {
	flags := &selfTestFlags{connected: true}

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run catalog requests against an in-process target",
		Long: `Start an in-process CIP target and send every catalog request to it
through the full stack: encapsulation session, messenger, Unconnected
Send along the configured route and a Forward Open connection.

Replies with an error status are reported but do not fail the run;
timeouts and decode failures do.`,
		Example: `  # Run the built-in catalog
  cipstack selftest

  # Record the exchange and the per-request latencies
  cipstack selftest --pcap selftest.pcap --metrics-csv selftest.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runSelfTest(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Configuration file (default: built-in defaults)")
	cmd.Flags().StringVar(&flags.catalogPath, "catalog", "", "Catalog YAML file (default: built-in catalog)")
	cmd.Flags().StringSliceVar(&flags.keys, "key", nil, "Catalog keys to run (default: all)")
	cmd.Flags().BoolVar(&flags.connected, "connected", true, "Also run every request over a Forward Open connection")
	cmd.Flags().StringVar(&flags.pcapOut, "pcap", "", "Write the exchanged frames to this pcap file")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Write the report as JSON")
	cmd.Flags().StringVar(&flags.metricsCSV, "metrics-csv", "", "Write per-request metrics to this CSV file")
	cmd.Flags().BoolVar(&flags.progress, "progress", false, "Show a progress line on stderr")

	return cmd
}

func runSelfTest(cmd *cobra.Command, flags *selfTestFlags) error {
	cfg, err := loadConfigOrDefault(flags.configPath)
	if err != nil {
		return err
	}
	cat, err := catalog.Open(flags.catalogPath)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()
	if flags.json && cfg.Logging.File == "" {
		// Keep stdout parseable.
		logger.SetLevel(logging.LogLevelError)
	}

	opts := app.SelfTestOptions{
		Config:    cfg,
		Catalog:   cat,
		Logger:    logger,
		Version:   version,
		Keys:      flags.keys,
		Connected: flags.connected,
	}
	if flags.progress {
		opts.Progress = cmd.ErrOrStderr()
	}
	if flags.pcapOut != "" {
		f, err := os.Create(flags.pcapOut)
		if err != nil {
			return fmt.Errorf("create pcap file: %w", err)
		}
		defer f.Close()
		opts.Capture = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	run, err := app.RunSelfTest(ctx, opts)
	if err != nil {
		return errors.WrapCIPError(err, "selftest")
	}

	if flags.metricsCSV != "" {
		if err := writeMetricsCSV(flags.metricsCSV, run.Metrics.Metrics()); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if flags.json {
		if err := report.WriteJSON(out, run.Report); err != nil {
			return err
		}
	} else {
		report.WriteSelfTest(out, run.Report, run.Metrics.Summary())
	}

	if !run.Report.OK() {
		return fmt.Errorf("selftest: %d of %d requests failed", run.Report.Failed, len(run.Report.Results))
	}
	return nil
}

func writeMetricsCSV(path string, ms []metrics.Metric) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := metrics.WriteCSV(f, ms); err != nil {
		f.Close()
		return fmt.Errorf("write metrics: %w", err)
	}
	return f.Close()
}
