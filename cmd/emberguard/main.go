package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/emberguard/internal/app"
	"github.com/ayusman/emberguard/internal/config"
	"github.com/ayusman/emberguard/internal/log"
	"github.com/ayusman/emberguard/internal/status"
)

var version = "dev"

type options struct {
	configPath string
	logLevel   string
	logFormat  string
	simulate   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "emberguard",
		Short:         "Autonomous fire and gas hazard responder",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "override log.format (text, json)")
	flags.BoolVar(&opts.simulate, "simulate", false, "run against a simulated room instead of hardware")

	root.AddCommand(
		newRunCmd(opts),
		newScanCmd(opts),
		newSnapshotCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

// loadConfig reads the configuration, applies the command-line overrides
// and sets up the global logger.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if opts.simulate {
		cfg.Device.Simulate = true
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

// withApp builds the application, hands it to fn and always shuts it down.
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log.L())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("shutdown incomplete", "error", err)
		}
	}()

	return fn(ctx, a)
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Monitor the sensors and respond to hazards until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				log.Info("emberguard starting", "version", version)
				if err := a.Run(ctx); err != nil {
					return err
				}
				log.Info("emberguard stopped")
				return nil
			})
		},
	}
}

func newScanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one manual episode now and print its result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				result, err := a.Scan(ctx)
				if result == nil {
					return err
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(result.Payload()); encErr != nil {
					return encErr
				}
				return err
			})
		},
	}
}

func newSnapshotCmd(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture one still from the current head position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				path, err := a.Snapshot(ctx, output)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default snapshot.jpg in the work directory)")
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the last sensor snapshot written by a running responder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			snap, err := status.Read(cfg.ArtifactPath(cfg.Status.Path))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "    ")
			return enc.Encode(snap)
		},
	}
}
