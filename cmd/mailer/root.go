package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shineum/smtp-mailer-lite/internal/config"
)

// runtimeState is shared by all subcommands of one invocation.
type runtimeState struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	logger     *slog.Logger
	out        io.Writer
}

func newRootCommand(out io.Writer) *cobra.Command {
	rt := &runtimeState{out: out}

	root := &cobra.Command{
		Use:          "mailer",
		Short:        "Send templated email through SMTP, SES, Graph or stdout",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rt.configPath)
			if err != nil {
				return err
			}
			if rt.logLevel != "" {
				cfg.Logging.Level = strings.ToLower(rt.logLevel)
			}
			rt.cfg = cfg
			rt.logger = newLogger(rt.out, cfg.Logging.Level)
			slog.SetDefault(rt.logger)
			return nil
		},
	}

	root.SetOut(out)
	root.PersistentFlags().StringVar(&rt.configPath, "config", "", "path to YAML configuration file (optional)")
	root.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(
		newSendCommand(rt),
		newCheckCommand(rt),
	)

	return root
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// newLogger returns a JSON logger writing to w at the given level.
func newLogger(w io.Writer, level string) *slog.Logger {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler)
}
