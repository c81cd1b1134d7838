package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xtxerr/hostwatch/internal/discovery"
	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/loader"
	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/monitor"
	"github.com/xtxerr/hostwatch/internal/provider"
	"github.com/xtxerr/hostwatch/internal/provider/libvirt"
	"github.com/xtxerr/hostwatch/internal/provider/local"
	"github.com/xtxerr/hostwatch/internal/provider/snmp"
	"github.com/xtxerr/hostwatch/internal/storage"
	"github.com/xtxerr/hostwatch/internal/storage/backend"
	"github.com/xtxerr/hostwatch/internal/storage/query"
	"github.com/xtxerr/hostwatch/internal/storage/types"
	"github.com/xtxerr/hostwatch/internal/thresholds"
)

// app holds what every subcommand needs: configuration, storage and the
// query service.
type app struct {
	cfg        *loader.Config
	store      storage.Store
	thresholds *thresholds.Store
	service    *monitor.Service
	resolver   *query.Resolver
}

// loadConfig reads the config file, applies flag overrides and
// validates. A missing file at the default path falls back to defaults;
// a missing file named with --config is an error.
func loadConfig(opts *rootOptions) (*loader.Config, error) {
	cfg, err := loader.Load(opts.configPath)
	if err != nil {
		if opts.configSet || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = loader.DefaultConfig()
	}

	if opts.dbPath != "" {
		cfg.Storage.Path = opts.dbPath
	}
	if opts.backend != "" {
		cfg.Storage.Backend = opts.backend
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	if err := loader.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads configuration, initializes logging and opens storage.
func openApp(opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logging.InitWithOptions(cfg.ToLoggingOptions())

	st, err := backend.Open(&cfg.Storage, nil)
	if err != nil {
		return nil, err
	}

	rules, err := initialRules(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	th, err := thresholds.NewStore(rules)
	if err != nil {
		st.Close()
		return nil, err
	}

	resolver := query.New(st, cfg.ToQueryOptions())

	var svcOpts []monitor.Option
	svcOpts = append(svcOpts, monitor.WithRecentAlertLimit(cfg.Query.RecentAlertLimit))
	if cfg.Thresholds.File != "" {
		svcOpts = append(svcOpts, monitor.WithThresholdsFile(cfg.Thresholds.File))
	}

	return &app{
		cfg:        cfg,
		store:      st,
		thresholds: th,
		service:    monitor.New(resolver, st, th, svcOpts...),
		resolver:   resolver,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// initialRules reads the thresholds file when present. Otherwise the
// configured rules (or the defaults) are used and written to the file.
func initialRules(cfg *loader.Config) ([]types.AlertThreshold, error) {
	path := cfg.Thresholds.File
	if path != "" {
		rules, err := thresholds.LoadFile(path)
		if err == nil {
			return rules, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	rules := cfg.Thresholds.Rules
	if len(rules) == 0 {
		rules = thresholds.Defaults()
	}
	if path != "" {
		if err := thresholds.SaveFile(path, rules); err != nil {
			return nil, fmt.Errorf("create thresholds file: %w", err)
		}
	}
	return rules, nil
}

// buildSources creates the enabled providers in merge order. The
// returned closer releases provider connections.
func buildSources(cfg *loader.Config) ([]provider.Source, func(), error) {
	var (
		sources []provider.Source
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	p := cfg.Providers
	if p.Local.Enabled {
		sources = append(sources, local.New(p.Local.Config))
	}

	if p.SNMP.Enabled {
		s, err := snmp.New(p.SNMP.Config)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Discovery.Enabled {
			sources = append(sources, discovery.NewLiveness(s, s.Addr, discovery.NewICMP(cfg.Discovery), cfg.Discovery.Parallel))
		} else {
			sources = append(sources, s)
		}
	}

	if p.Libvirt.Enabled {
		lv := libvirt.New(p.Libvirt.Config)
		closers = append(closers, func() { _ = lv.Close() })
		sources = append(sources, lv)
	}

	return sources, closeAll, nil
}

// targetLister returns a function listing current target IDs, used for
// console completion. Failures yield an empty list.
func targetLister(mux *provider.Mux) func() []string {
	return func() []string {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		targets, err := mux.ListTargets(ctx)
		if err != nil {
			return nil
		}
		ids := make([]string, 0, len(targets))
		for _, t := range targets {
			ids = append(ids, t.ID)
		}
		return ids
	}
}
