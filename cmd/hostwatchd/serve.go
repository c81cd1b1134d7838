package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/hostwatch/internal/aggregator"
	"github.com/xtxerr/hostwatch/internal/collector"
	"github.com/xtxerr/hostwatch/internal/console"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/provider"
	"github.com/xtxerr/hostwatch/internal/storage/retention"
	"github.com/xtxerr/hostwatch/internal/thresholds"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var withConsole bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the collector and aggregator until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if withConsole {
				if err := console.CheckTerminal(); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var con io.Writer
			if withConsole {
				con = cmd.OutOrStdout()
			}
			return serve(ctx, opts, con)
		},
	}

	cmd.Flags().BoolVar(&withConsole, "console", false, "run the interactive shell against the live store; exiting it stops serve")
	return cmd
}

// serve runs until ctx is done. A non-nil consoleOut also runs the
// interactive shell in this process, which is the only way to query a
// DuckDB store while it is being written.
func serve(ctx context.Context, opts *rootOptions, consoleOut io.Writer) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := logging.Component("hostwatchd")
	log.Info("hostwatchd starting", "version", Version, "backend", a.cfg.Storage.Backend, "path", a.cfg.Storage.Path)

	// =========================================================================
	// Providers
	// =========================================================================

	sources, closeSources, err := buildSources(a.cfg)
	if err != nil {
		return err
	}
	defer closeSources()

	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name())
	}
	log.Info("providers ready", "sources", names)

	mux := provider.NewMux(sources...)

	// =========================================================================
	// Collector, Aggregator
	// =========================================================================

	col := collector.New(a.cfg.ToCollectorConfig(), collector.Deps{
		Discoverer: mux,
		Provider:   mux,
		Repository: a.store,
		Ledger:     a.store,
		Thresholds: a.thresholds,
		Sink:       a.service,
	})

	ret := retention.New(a.store, a.store, a.cfg.Storage.Retention, nil)
	agg := aggregator.New(a.cfg.ToAggregatorConfig(), a.store, ret, nil)

	// =========================================================================
	// Run
	// =========================================================================

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return col.Run(gctx) })
	g.Go(func() error { return agg.Run(gctx) })

	if a.cfg.Thresholds.Watch {
		g.Go(func() error { return thresholds.Watch(gctx, a.cfg.Thresholds.File, a.thresholds) })
	}

	alerts, unsubscribe := a.service.Subscribe(64)
	g.Go(func() error {
		defer unsubscribe()
		alog := logging.Component("alerts")
		for {
			select {
			case <-gctx.Done():
				return nil
			case fired, ok := <-alerts:
				if !ok {
					return nil
				}
				r := fired.Alert
				alog.Warn("threshold exceeded",
					"target", r.Target,
					"kind", r.Kind.String(),
					"actual", r.Actual,
					"threshold", r.Threshold,
					"persisted", fired.Persisted)
			}
		}
	})

	// The prompt blocks on stdin, so it stays outside the group and never
	// holds up shutdown.
	if consoleOut != nil {
		con := console.New(a.service, targetLister(mux), consoleOut)
		go func() {
			defer cancel()
			if err := con.Run(gctx); err != nil {
				log.Error("console failed", "error", err)
			}
		}()
	}

	err = g.Wait()

	cs := col.Stats()
	as := agg.Stats()
	log.Info("hostwatchd stopped",
		"ticks", cs.Ticks,
		"samples", cs.SamplesCollected,
		"alerts", cs.AlertsFired,
		"buckets", as.BucketsCreated,
		"dropped_alerts", a.service.DroppedAlerts())
	return err
}
