// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/camfetch/internal/journal"
)

var errNoJournal = errors.New("journal.path is not configured")

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		verify bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Journal.Path == "" {
				return errNoJournal
			}
			store, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if verify {
				problems, err := store.Verify(cmd.Context())
				if err != nil {
					return err
				}
				if len(problems) > 0 {
					return fmt.Errorf("journal integrity check failed: %v", problems)
				}
				fmt.Fprintln(opts.stdout, "journal integrity OK")
			}

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(opts.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tMODE\tSTARTED\tDURATION\tCAMERAS\tSUCCESSFUL")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
					r.ID, r.Mode, r.StartedAt.Format(time.RFC3339),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Second), len(r.Cameras), r.Succeeded())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	cmd.Flags().BoolVar(&verify, "verify", false, "run an integrity check before listing")
	return cmd
}
