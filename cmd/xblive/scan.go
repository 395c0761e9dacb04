package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jihwankim/xblive/pkg/config"
	"github.com/jihwankim/xblive/pkg/discovery"
	"github.com/jihwankim/xblive/pkg/reporting"
	"github.com/jihwankim/xblive/pkg/xlog"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Args:  cobra.NoArgs,
	Short: "Continuously discover and track consoles until interrupted",
	Long:  `Starts the discovery scanner and reports console arrivals, state changes, and departures until SIGINT/SIGTERM.`,
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().String("format", "text", "output format (text, json, tui)")
}

func runScan(cmd *cobra.Command, args []string) error {
	outputFormat, _ := cmd.Flags().GetString("format")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		cfg.Framework.LogLevel = string(xlog.LevelDebug)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := xlog.NewLogger(cfg.LoggerConfig())
	log.Info("xblive starting", "version", version)

	bus := discovery.NewEventBus(log)
	reporter := reporting.NewReporter(reporting.OutputFormat(outputFormat), log)
	bus.OnAdd(reporter.ReportAdded)
	bus.OnUpdate(reporter.ReportUpdated)
	bus.OnRemove(reporter.ReportRemoved)

	scanner := discovery.NewScanner(cfg.ScannerConfig(), bus, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scanner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scanner: %w", err)
	}
	log.Info("scanner listening", "addr", scanner.LocalAddr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	scanner.Stop()
	return nil
}
