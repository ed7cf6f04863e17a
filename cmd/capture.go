package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/croque-scale/netcapture/internal/capture"
	"github.com/croque-scale/netcapture/internal/clock/system"
	"github.com/croque-scale/netcapture/internal/config"
	"github.com/croque-scale/netcapture/internal/id/uuid"
	"github.com/croque-scale/netcapture/internal/logging"
	"github.com/croque-scale/netcapture/internal/metrics"
	chromedpprovider "github.com/croque-scale/netcapture/internal/provider/chromedp"
	"github.com/croque-scale/netcapture/internal/provider/filesystem"
	"github.com/croque-scale/netcapture/internal/provider/playwright"
)

// newCaptureCmd creates and configures the 'capture' subcommand, the single
// run command: one URL in, one JSONL file out.
func newCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run one network capture",
		Long: `Navigates the browser provider to --url, waits according to the wait
strategy, fetches the captured network records, filters them, and writes
newline-delimited JSON through the storage provider. Prints the saved path
on success for shell pipelines.`,
		RunE: runCaptureCommand,
	}

	flags := cmd.Flags()
	flags.String("url", "", "URL to navigate (required)")
	flags.String("out", "", "output JSONL path template (supports {ts})")
	flags.String("provider", "", "browser provider: playwright or chromedp")
	flags.String("sse", "", "Playwright MCP SSE URL")
	flags.String("fs-cmd", "", "storage provider command")
	flags.StringSlice("fs-args", nil, "storage provider arguments")
	flags.String("wait-mode", "", "wait strategy after navigation: networkidle or sleep")
	flags.Float64("wait", 0, "seconds to wait (timeout for networkidle, duration for sleep)")
	flags.String("filter-url", "", "regexp to filter request URLs")
	flags.String("filter-method", "", "HTTP method filter (e.g. GET, POST)")
	flags.Int("status-min", capture.DefaultStatusMin, "minimum response status to keep")
	flags.Int("status-max", capture.DefaultStatusMax, "maximum response status to keep")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func runCaptureCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	targetURL, err := cmd.Flags().GetString("url")
	if err != nil {
		return err
	}

	clk := system.New()
	orchestrator := capture.NewOrchestrator(
		buildBrowserDialer(cfg, logger),
		filesystem.NewDialer(cfg.Storage.Command, cfg.Storage.Args, logger),
		capture.NewRetryer(cfg.RetryPolicy(), clk, logger),
		clk,
		uuid.NewUUIDGenerator(),
		logger,
	)

	result, err := orchestrator.Run(cmd.Context(), cfg.CaptureRequest(targetURL))
	if err != nil {
		logger.Error("Capture run failed", zap.Error(err))
		return err
	}

	// Plain path on stdout so the output can feed shell pipelines.
	color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), result.OutputPath)
	return nil
}

func buildBrowserDialer(cfg config.Config, logger *zap.Logger) capture.BrowserDialer {
	if cfg.Browser.Provider == config.ProviderChromedp {
		return chromedpprovider.NewDialer(chromedpprovider.Config{
			UserAgent:  cfg.Browser.UserAgent,
			NavTimeout: cfg.NavTimeout(),
		}, logger)
	}
	return playwright.NewDialer(cfg.Browser.SSEURL, logger)
}
