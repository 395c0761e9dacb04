package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jihwankim/xblive/pkg/config"
	"github.com/jihwankim/xblive/pkg/discovery"
	"github.com/jihwankim/xblive/pkg/reporting"
	"github.com/jihwankim/xblive/pkg/xlog"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Args:  cobra.NoArgs,
	Short: "Scan briefly and print the consoles found",
	Long:  `Starts the scanner, waits one scan interval for responses, then prints a snapshot of what was found and exits.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().String("format", "text", "output format (text, json)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	outputFormat, _ := cmd.Flags().GetString("format")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := xlog.NewLogger(cfg.LoggerConfig())
	scanner := discovery.NewScanner(cfg.ScannerConfig(), nil, log)

	startCtx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := scanner.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start scanner: %w", err)
	}

	time.Sleep(cfg.ScannerConfig().ScanFrequency)
	scanner.Stop()

	reporting.NewReporter(reporting.OutputFormat(outputFormat), log).ReportSnapshot(scanner.Connections())
	return nil
}
