package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-settings-store/pkg/di"
)

type rootFlags struct {
	opts      di.Options
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	defaults, envErr := di.OptionsFromEnv()

	cmd := &cobra.Command{
		Use:           "settingsctl",
		Short:         "Manage versioned configuration, credentials and assignment rules",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return fmt.Errorf("reading SETTINGS_* environment: %w", envErr)
			}
			return nil
		},
	}

	flags.opts = defaults
	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.opts.Environment, "env", defaults.Environment, "configuration environment (file name without extension)")
	pf.StringVar(&flags.opts.ConfigDir, "config-dir", defaults.ConfigDir, "directory holding {env}.json|yaml|yml|toml")
	pf.StringVar(&flags.opts.DBDriver, "db-driver", defaults.DBDriver, "database driver: sqlite3, postgres or pgx")
	pf.StringVar(&flags.opts.DBDSN, "db-dsn", defaults.DBDSN, "database connection string")
	pf.StringVar(&flags.opts.KeyFile, "key-file", defaults.KeyFile, "credential encryption key file")
	pf.StringVar(&flags.opts.CacheBackend, "cache-backend", defaults.CacheBackend, "cache backend: sturdyc or ttlcache")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "text", "log format: text or json")

	cmd.AddCommand(
		newConfigCmd(flags),
		newFeatureCmd(flags),
		newCredCmd(flags),
		newRulesCmd(flags),
		newAssignCmd(flags),
	)
	return cmd
}

// withContainer builds a Container for the duration of fn.
func withContainer(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, c *di.Container) error) (err error) {
	logger, err := newLogger(cmd.ErrOrStderr(), flags.logLevel, flags.logFormat)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	container, err := di.NewContainer(ctx, flags.opts, di.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := container.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(ctx, container)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parsePairs splits field=value arguments, keeping their order.
func parsePairs(args []string) ([][2]string, error) {
	pairs := make([][2]string, 0, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		pairs = append(pairs, [2]string{k, v})
	}
	return pairs, nil
}
