package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docrelay/config"
	"docrelay/converter"
	"docrelay/history"
	"docrelay/logger"
	writerbackends "docrelay/writerBackends"

	"github.com/spf13/cobra"
)

// historyRetention is how long finished conversions are kept.
const historyRetention = 30 * 24 * time.Hour

type options struct {
	configPath string
	format     string
	output     string
	stager     string
	timeout    time.Duration
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "docrelay-convert <input_file> [engine_url] [secret] [storage_url]",
		Short: "Convert a document through the conversion engine",
		Long: `Uploads the input file to the storage sidecar (or another stager),
asks the conversion engine to convert it and writes the result next to the
input with the target extension.

Defaults: engine_url http://localhost:8080, no secret (unsigned requests),
storage_url http://localhost:8000.`,
		Example: `  docrelay-convert report.docx
  docrelay-convert report.docx http://onlyoffice:80 my-jwt-secret http://storage:8000
  docrelay-convert slides.pptx --format pdf --output /tmp/slides.pdf`,
		Args:          cobra.RangeArgs(1, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, args[1:])
			if err != nil {
				return err
			}
			return runConvert(cmd, cfg, opts, args[0])
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Configuration file path")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.Flags().StringVarP(&opts.format, "format", "f", "", "Target format (default depends on the input type)")
	rootCmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (default: input with the target extension)")
	rootCmd.Flags().StringVar(&opts.stager, "stager", "", "Source stager: sidecar, directServe, s3, gcs, sftp")
	rootCmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Overall conversion timeout (default 5m)")

	rootCmd.AddCommand(newHistoryCommand(opts))
	return rootCmd
}

// loadConfig layers file, environment, positional arguments and flags, and
// sets up logging on stderr.
func loadConfig(cmd *cobra.Command, opts *options, positional []string) (config.Converter, error) {
	cfg, path, err := config.LoadConverter(opts.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyArgs(positional)
	if opts.stager != "" {
		cfg.Stager = opts.stager
	}
	if opts.timeout > 0 {
		cfg.TimeoutSeconds = config.WholeSeconds(opts.timeout)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	if err := logger.InitWriter("", cmd.ErrOrStderr()); err != nil {
		return cfg, err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, err
	}
	logger.SetLevel(level)

	if path != "" {
		logger.Debugf("Loaded configuration from %s", path)
	}
	return cfg, nil
}

// openHistory opens the history store. Failures are logged and history is
// skipped; they never fail a conversion.
func openHistory(dataDir string) bool {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Warnf("History disabled, cannot create %s: %v", dataDir, err)
		return false
	}
	if err := history.Init(config.HistoryDBPath(dataDir)); err != nil {
		logger.Warnf("History disabled: %v", err)
		return false
	}
	if err := history.CheckHealth(); err != nil {
		logger.Warnf("History disabled: %v", err)
		history.Close()
		return false
	}
	if removed, err := history.CleanupOldRecords(historyRetention); err != nil {
		logger.Warnf("Failed to clean up old history records: %v", err)
	} else if removed > 0 {
		logger.Debugf("Removed %d history records older than %s", removed, historyRetention)
	}
	return true
}

func runConvert(cmd *cobra.Command, cfg config.Converter, opts *options, input string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	accessInfo, err := cfg.AccessInfo()
	if err != nil {
		return err
	}

	format := strings.ToLower(strings.TrimPrefix(opts.format, "."))
	if format == "" {
		format = converter.OutputFormatFor(filepath.Ext(input))
	}
	output := opts.output
	if output == "" {
		output = converter.OutputPath(input, format)
	}

	convCfg := converter.Config{
		EngineURL:    cfg.EngineURL,
		JWTSecret:    cfg.JWTSecret,
		PollAttempts: cfg.PollAttempts,
		PollInterval: cfg.PollInterval(),
	}
	if openHistory(cfg.DataDir) {
		defer history.Close()
		convCfg.Recorder = history.Recorder{}
	}

	logger.Infof("Engine: %s, stager: %s, signing: %t", cfg.EngineURL, cfg.Stager, cfg.JWTSecret != "")

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout())
	defer cancel()

	conv := converter.New(convCfg, writerbackends.Stager{Backend: cfg.Stager, AccessInfo: accessInfo})
	data, err := conv.ConvertFile(ctx, input, format)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(output, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	logger.Infof("Wrote %s (%d bytes)", output, len(data))
	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

// writeFileAtomic writes via a temp file in the target directory, so an
// interrupted run never leaves a partial output behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	committed = true
	return nil
}
