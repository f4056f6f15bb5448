// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/ManuGH/camfetch/internal/admission"
	"github.com/ManuGH/camfetch/internal/config"
	"github.com/ManuGH/camfetch/internal/connect"
	"github.com/ManuGH/camfetch/internal/deviceapi"
	"github.com/ManuGH/camfetch/internal/deviceapi/cloud"
	"github.com/ManuGH/camfetch/internal/health"
	"github.com/ManuGH/camfetch/internal/journal"
	xglog "github.com/ManuGH/camfetch/internal/log"
	"github.com/ManuGH/camfetch/internal/orchestrator"
	"github.com/ManuGH/camfetch/internal/status"
	"github.com/ManuGH/camfetch/internal/telemetry"
	"github.com/ManuGH/camfetch/internal/transfer"
	"github.com/ManuGH/camfetch/internal/version"
)

func newRunCmd(opts *rootOptions, mode string) *cobra.Command {
	var cameras []string
	short := "Download recordings of the configured intervals"
	if mode == config.ModeReboot {
		short = "Reboot every configured camera"
	}
	cmd := &cobra.Command{
		Use:   mode,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			cfg.Mode = mode
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("config validation failed for %s: %w", mode, err)
			}
			if err := cfg.SelectCameras(cameras); err != nil {
				return err
			}
			client := newCloudClient(cfg)
			_, err = runFetch(cmd.Context(), cfg, client, opts.stdout)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&cameras, "cameras", nil, "restrict the run to these configured cameras (comma separated)")
	return cmd
}

func newCloudClient(cfg config.AppConfig) *cloud.Client {
	return cloud.New(cfg.Cloud.URL, cloud.Options{
		Timeout:   cfg.Cloud.RequestTimeout,
		RateLimit: rate.Limit(cfg.Cloud.RateLimit),
		RateBurst: cfg.Cloud.RateBurst,
		UserAgent: "camfetch/" + version.Version,
	})
}

// runFetch wires one run from cfg and prints its summary to out.
func runFetch(ctx context.Context, cfg config.AppConfig, client deviceapi.Client, out io.Writer) (orchestrator.Summary, error) {
	logger := xglog.WithComponent("cli")
	start := time.Now()
	deadline := cfg.ResolveDeadline(start)

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return orchestrator.Summary{}, fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	led, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return orchestrator.Summary{}, err
	}
	defer closeLedger()

	gate := admission.New(cfg.MaxConcurrentCameras, led, admission.WithPollInterval(cfg.AdmissionPollInterval))
	deps := orchestrator.Deps{
		Client:    client,
		Admission: gate,
		Connector: connect.New(connect.Config{
			MaxRetries:     cfg.Connect.Retries,
			InitialDelay:   cfg.Connect.InitialDelay,
			MaxConnectTime: cfg.Connect.MaxTime,
		}, gate),
		Engine: transfer.New(transfer.Config{
			OutputRoot:        cfg.OutputRoot,
			FileTimeout:       cfg.Transfer.FileTimeout,
			NoProgressTimeout: cfg.Transfer.NoProgressTimeout,
			PollInterval:      cfg.Transfer.PollInterval,
			MaxPollErrors:     cfg.Transfer.MaxPollErrors,
			Deadline:          deadline,
		}, gate),
	}
	if cfg.Journal.Path != "" {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return orchestrator.Summary{}, err
		}
		defer store.Close()
		deps.Journal = store
	}

	orch := orchestrator.New(orchestrator.Config{
		Mode:     cfg.Mode,
		CloudURL: cfg.Cloud.URL,
		Username: cfg.Cloud.Username,
		Password: cfg.Cloud.Password,
		Cameras:  cameraSpecs(cfg.Cameras),
	}, deps)

	if cfg.Status.Listen != "" {
		hm := health.NewManager(cfg.Version)
		if cfg.Mode == config.ModeDownload {
			hm.Register(health.NewDirChecker("output_root", cfg.OutputRoot))
		}
		hm.Register(health.NewFuncChecker("ledger", func(ctx context.Context) error {
			_, err := led.List(ctx)
			return err
		}))
		src := func() status.Snapshot {
			p := orch.Progress()
			snap := status.Snapshot{
				RunID:         p.RunID,
				Mode:          p.Mode,
				Running:       p.Running,
				StartedAt:     p.StartedAt,
				Cameras:       p.Cameras,
				Finished:      p.Finished,
				Capacity:      gate.Capacity(),
				ActiveCameras: gate.Names(),
			}
			if !deadline.IsZero() {
				snap.Deadline = &deadline
			}
			return snap
		}

		srvCtx, stopServer := context.WithCancel(ctx)
		srvDone := make(chan error, 1)
		srv := status.NewServer(status.NewRouter(src, hm, cfg.Status.RateLimit))
		go func() { srvDone <- srv.ListenAndServe(srvCtx, cfg.Status.Listen) }()
		defer func() {
			stopServer()
			if err := <-srvDone; err != nil {
				logger.Warn().Err(err).Msg("status endpoint stopped with error")
			}
		}()
	}

	if !deadline.IsZero() {
		logger.Info().Time("deadline", deadline).Msg("global deadline set")
	}
	summary, err := orch.Run(ctx)
	if err != nil {
		return summary, err
	}
	printSummary(out, summary)
	return summary, nil
}

func cameraSpecs(cams []config.CameraConfig) []orchestrator.CameraSpec {
	out := make([]orchestrator.CameraSpec, 0, len(cams))
	for _, c := range cams {
		spec := orchestrator.CameraSpec{Name: c.Name}
		for _, iv := range c.Intervals {
			spec.Intervals = append(spec.Intervals, transfer.Interval{Start: iv.Start, End: iv.End})
		}
		out = append(out, spec)
	}
	return out
}

func printSummary(out io.Writer, s orchestrator.Summary) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CAMERA\tOUTCOME\tDOWNLOADED\tSKIPPED\tFAILED\tERROR")
	for _, r := range s.Results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", r.Camera, r.Outcome, r.Downloaded, r.Skipped, r.Failed, errText)
	}
	_ = tw.Flush()

	ok := s.Successful()
	fmt.Fprintf(out, "run %s (%s): %d of %d cameras successful", s.RunID, s.Mode, len(ok), len(s.Results))
	if len(ok) > 0 {
		fmt.Fprintf(out, ": %s", strings.Join(ok, ", "))
	}
	fmt.Fprintln(out)
	if len(s.Missing) > 0 {
		fmt.Fprintf(out, "not found in cloud account: %s\n", strings.Join(s.Missing, ", "))
	}
}
