// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ManuGH/camfetch/internal/config"
	xglog "github.com/ManuGH/camfetch/internal/log"
	"github.com/ManuGH/camfetch/internal/version"
)

type rootOptions struct {
	configPath string
	logLevel   string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}
	cmd := &cobra.Command{
		Use:   "camfetch",
		Short: "Bulk recording download for cloud-managed cameras",
		Long: `camfetch logs into a cloud camera broker, connects to every configured
camera with bounded retries and downloads the recordings of the configured
intervals into {output_root}/{camera}/. It can also reboot the fleet.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			xglog.Configure(xglog.Config{Level: opts.logLevel, Output: stderr, Version: version.Version})
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(opts, config.ModeDownload),
		newRunCmd(opts, config.ModeReboot),
		newLedgerCmd(opts),
		newHistoryCmd(opts),
		newValidateCmd(opts),
		newVersionCmd(opts),
	)
	return cmd
}

// loadConfig resolves the configuration (ENV > file > defaults) and
// reconfigures the logger with the final level.
func (o *rootOptions) loadConfig() (config.AppConfig, error) {
	cfg, err := config.NewLoader(o.configPath, version.Version).Load()
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	level := o.logLevel
	if level == "" {
		level = cfg.Log.Level
	}
	xglog.Reconfigure(xglog.Config{
		Level:   level,
		Service: cfg.Log.Service,
		Version: cfg.Version,
		Output:  o.stderr,
	})
	return cfg, nil
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintln(opts.stdout, version.String())
		},
	}
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration without contacting the cloud",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "configuration OK: mode=%s cameras=%d ledger=%s\n",
				cfg.Mode, len(cfg.Cameras), cfg.Ledger.Backend)
			return nil
		},
	}
}
