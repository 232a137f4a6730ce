package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/snowpak/api"
	"github.com/agentic-research/snowpak/internal/ingest"
	"github.com/agentic-research/snowpak/internal/known"
)

var (
	configPath      string
	workers         int
	hideKnownBugs   bool
	knownIssuesPath string
	logLevel        string
	logFormat       string
)

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	f.IntVarP(&workers, "workers", "w", 0, "Parallel file parsers (0 = one per CPU)")
	f.BoolVar(&hideKnownBugs, "hide-known-bugs", false, "Do not log known archive issues")
	f.StringVar(&knownIssuesPath, "known-issues", "", "YAML file with extra known-issue entries")
	f.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&logFormat, "log-format", "", "Log format: text or json")
}

var rootCmd = &cobra.Command{
	Use:           "snowpak",
	Short:         "Snowpak: resolves game archive templates and item inheritance",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// settings merges the config file with the flags that were set explicitly.
func settings(cmd *cobra.Command) (api.Config, error) {
	cfg := api.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = api.LoadConfig(configPath); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("hide-known-bugs") {
		cfg.HideKnownBugs = hideKnownBugs
	}
	if flags.Changed("known-issues") {
		cfg.KnownIssuesFile = knownIssuesPath
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, l api.Log) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// knownIssues returns the built-in table extended by the configured file.
func knownIssues(cfg api.Config) ([]known.Issue, error) {
	issues := known.Builtin()
	if cfg.KnownIssuesFile == "" {
		return issues, nil
	}
	extra, err := known.LoadFile(cfg.KnownIssuesFile)
	if err != nil {
		return nil, err
	}
	return append(issues, extra...), nil
}

// newEngine builds an engine from config and flags. Logs go to stderr.
func newEngine(cmd *cobra.Command) (*ingest.Engine, *slog.Logger, error) {
	cfg, err := settings(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log)
	issues, err := knownIssues(cfg)
	if err != nil {
		return nil, nil, err
	}
	return ingest.NewEngine(ingest.Config{
		Workers:       cfg.Workers,
		HideKnownBugs: cfg.HideKnownBugs,
		KnownIssues:   issues,
		Logger:        logger,
	}), logger, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
