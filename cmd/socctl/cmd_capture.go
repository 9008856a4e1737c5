package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/said46/autoSOC/internal/capture"
	"github.com/said46/autoSOC/internal/config"
	"github.com/said46/autoSOC/internal/platform/logger"
)

var (
	captureControlURL string
	captureOut        string

	diffReference    string
	diffGenerated    string
	diffIgnore       []string
	diffCompareToken bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record the next override submission made in a running browser",
	Long: `Capture attaches to a Chrome started with --remote-debugging-port and
waits until overrides are saved in the SOC application. The request body
is written to --out for use with diff.`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare a captured reference payload with a generated one",
	Args:  cobra.NoArgs,
	RunE:  runDiff,
}

func init() {
	captureCmd.Flags().StringVar(&captureControlURL, "control-url", "", "DevTools websocket url (default browser.control_url)")
	captureCmd.Flags().StringVar(&captureOut, "out", "", "File to write the captured request to")
	_ = captureCmd.MarkFlagRequired("out")

	diffCmd.Flags().StringVar(&diffReference, "reference", "", "Captured reference payload")
	diffCmd.Flags().StringVar(&diffGenerated, "generated", "", "Generated payload")
	diffCmd.Flags().StringSliceVar(&diffIgnore, "ignore", nil, "Field names to skip")
	diffCmd.Flags().BoolVar(&diffCompareToken, "compare-token", false, "Also compare the request verification token")
	_ = diffCmd.MarkFlagRequired("reference")
	_ = diffCmd.MarkFlagRequired("generated")
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	controlURL := captureControlURL
	if controlURL == "" {
		controlURL = cfg.Browser.ControlURL
	}
	capturer, err := capture.NewRodCapturer(controlURL, cfg.SOC.SubmitPath,
		capture.WithCaptureTimeout(cfg.Browser.CaptureTimeout),
		capture.WithCaptureLogger(log),
	)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintln(cmd.OutOrStdout(), "save the overrides in the browser now")
	captured, err := capturer.Capture(ctx)
	if err != nil {
		return err
	}
	if err := captured.WriteFile(captureOut); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "captured %d bytes from %s\n", len(captured.Body), captured.URL)
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	reference, err := capture.ReadPayloadFile(diffReference)
	if err != nil {
		return fmt.Errorf("reference: %w", err)
	}
	generated, err := capture.ReadPayloadFile(diffGenerated)
	if err != nil {
		return fmt.Errorf("generated: %w", err)
	}

	opts := []capture.DiffOption{capture.IgnoreFields(diffIgnore...)}
	if diffCompareToken {
		opts = append(opts, capture.CompareRequestToken())
	}
	report := capture.Diff(reference, generated, opts...)
	if err := report.WriteText(cmd.OutOrStdout()); err != nil {
		return err
	}
	if !report.Empty() {
		return fmt.Errorf("payloads drift: %d differences", len(report.Differences))
	}
	return nil
}
