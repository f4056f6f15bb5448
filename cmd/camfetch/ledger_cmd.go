// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/camfetch/internal/config"
	"github.com/ManuGH/camfetch/internal/ledger"
)

func newLedgerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "List cameras recorded as in flight by an earlier run",
		Long: `Prints the ledger of cameras that were admitted but never released,
one per line. The ledger is not modified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			led, closeLedger, err := openLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeLedger()

			names, err := led.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("read ledger: %w", err)
			}
			for _, n := range names {
				fmt.Fprintln(opts.stdout, n)
			}
			return nil
		},
	}
}

// openLedger returns the configured ledger backend and its close function.
func openLedger(ctx context.Context, cfg config.AppConfig) (ledger.Ledger, func(), error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendRedis:
		r, err := ledger.NewRedis(ctx, ledger.RedisConfig{
			Addr:     cfg.Ledger.Redis.Addr,
			Password: cfg.Ledger.Redis.Password,
			DB:       cfg.Ledger.Redis.DB,
			Key:      cfg.Ledger.Redis.Key,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	default:
		return ledger.NewFile(cfg.Ledger.Path), func() {}, nil
	}
}
