// Package cli provides the command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/Cyvadra/stock-alert/internal/app"
	"github.com/Cyvadra/stock-alert/internal/config"
	"github.com/Cyvadra/stock-alert/internal/logging"
	"github.com/Cyvadra/stock-alert/internal/services"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version information
const Version = "0.3.0"

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "stock-alert",
		Short: "Taiwan and US equity alert engine",
		Long: `stock-alert resolves quotes from exchange and public finance endpoints,
evaluates price, risk and technical conditions for a watch list and a
position book, and pushes alerts to LINE.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	// load builds the application for a command
	load := func(cmd *cobra.Command) (*app.App, error) {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			cfg.Log.Level = "debug"
		}
		return app.New(cfg, logging.NewLogger(cfg.Log))
	}

	rootCmd.AddCommand(
		newServeCmd(load),
		newSweepCmd(load),
		newQuoteCmd(load),
		newEvaluateCmd(load),
	)
	return rootCmd
}

type loader func(cmd *cobra.Command) (*app.App, error)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP pull interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx)
		},
	}
}

func newSweepCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:       "sweep <intraday|risk|technical|summary|cleanup>",
		Short:     "Run one sweep now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"intraday", "risk", "technical", "summary", "cleanup"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := services.ParseSweepKind(args[0])
			if err != nil {
				return err
			}
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Scheduler.RunNow(cmd.Context(), kind)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newQuoteCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:     "quote <code>",
		Short:   "Resolve a quote through the provider ladder",
		Example: "  stock-alert quote 2330\n  stock-alert quote AAPL",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			quote, err := a.Resolver.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), quote)
		},
	}
}

func newEvaluateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <code>",
		Short: "Evaluate every condition for one security and dispatch the alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Sweeps.EvaluateSecurity(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// Execute runs the root command
func Execute(logger zerolog.Logger) int {
	if err := NewRootCmd().Execute(); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		return 1
	}
	return 0
}
