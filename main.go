// ABOUTME: Entry point for the FruityPi visualizer
// ABOUTME: Cobra commands for running capture, listing devices and printing the version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/FruityPi/fruitypi-go/internal/app"
	"github.com/FruityPi/fruitypi-go/internal/config"
	"github.com/FruityPi/fruitypi-go/internal/logging"
	"github.com/FruityPi/fruitypi-go/internal/version"
	"github.com/FruityPi/fruitypi-go/pkg/audio/input"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "fruitypi-visualizer",
		Short:        "Turn live audio into colors for a FruityPi light",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVisualizer(cmd, configFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./fruitypi.yaml or ~/.config/fruitypi/fruitypi.yaml)")
	config.RegisterFlags(rootCmd.Flags())

	rootCmd.AddCommand(newDevicesCmd(), newVersionCmd())
	return rootCmd
}

func runVisualizer(cmd *cobra.Command, configFile string) error {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}

	// TUI mode: log only to file
	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    !cfg.UI.Enabled,
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	if used := v.ConfigFileUsed(); used != "" {
		logger.Info().Str("file", used).Msg("Loaded config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	visualizer, err := app.New(app.Options{Config: cfg, Logger: logger.Logger})
	if err != nil {
		return err
	}
	if err := visualizer.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Visualizer failed")
		return err
	}
	return nil
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices usable with --device",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := input.ListDevices()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No capture devices found")
				return nil
			}
			for _, d := range devices {
				marker := " "
				if d.IsDefault {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %2d  %s\n", marker, d.Index, d.Name)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", version.Product, version.Version, version.Manufacturer)
		},
	}
}
