// Package commands holds the sqlcoach command line.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sqlcoach/internal/config"
)

var (
	configFile string
	cfg        config.Config
	logger     *slog.Logger
)

// Execute runs the root command. Without a subcommand it serves.
func Execute() error {
	root := &cobra.Command{
		Use:           "sqlcoach",
		Short:         "SQL learning and optimization service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if configFile != "" {
				v.SetConfigFile(configFile)
			}
			c, err := config.Load(v)
			if err != nil {
				return err
			}
			cfg = c
			logger = newLogger(cfg.LogLevel)
			slog.SetDefault(logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")

	root.AddCommand(serveCmd(), renderCmd(), questionsCmd(), runCmd(), optionsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	switch level {
	case "debug":
		lvl.Set(slog.LevelDebug)
	case "warn", "warning":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}

// optionsCmd prints every option with its default, for writing config files.
func optionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List configuration keys and their defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, o := range config.Options() {
				fmt.Fprintf(out, "%-24s %-32v %s\n", o.Key, o.Default, o.Comment)
			}
			return nil
		},
	}
}
