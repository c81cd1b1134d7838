package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	defaults "github.com/xtxerr/hostwatch/config"
	"github.com/xtxerr/hostwatch/internal/console"
	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/provider"
	"github.com/xtxerr/hostwatch/internal/storage/parquet"
	"github.com/xtxerr/hostwatch/internal/storage/query"
	"github.com/xtxerr/hostwatch/internal/storage/types"
	"github.com/xtxerr/hostwatch/internal/thresholds"
	"github.com/xtxerr/hostwatch/internal/validation"
)

// withApp opens the app for the duration of fn.
func withApp(opts *rootOptions, fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(opts)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a)
	}
}

// parseRange resolves --since or --from/--to into a closed interval.
func parseRange(since time.Duration, from, to string, now time.Time) (time.Time, time.Time, error) {
	end := now
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return time.Time{}, time.Time{}, errors.NewInvalidValue("to", to, "want RFC3339")
		}
		end = t
	}
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return time.Time{}, time.Time{}, errors.NewInvalidValue("from", from, "want RFC3339")
		}
		return t, end, nil
	}
	if since <= 0 {
		return time.Time{}, time.Time{}, errors.NewInvalidValue("since", since, "must be positive")
	}
	return end.Add(-since), end, nil
}

// =============================================================================
// history
// =============================================================================

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		since    time.Duration
		from, to string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "history <target>",
		Short: "Show the utilization history of a target",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withApp(opts, func(ctx context.Context, a *app) error {
			start, end, err := parseRange(since, from, to, time.Now())
			if err != nil {
				return err
			}
			h, err := a.service.GetHistory(ctx, args[0], start, end)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(h)
			}
			console.PrintHistory(c.OutOrStdout(), h, 0)
			return nil
		})(c, args)
	}

	cmd.Flags().DurationVar(&since, "since", time.Hour, "range ending now")
	cmd.Flags().StringVar(&from, "from", "", "range start (RFC3339, overrides --since)")
	cmd.Flags().StringVar(&to, "to", "", "range end (RFC3339, default now)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// =============================================================================
// alerts, ack
// =============================================================================

func newAlertsCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "alerts [target]",
		Short: "List recent alerts, most recent first",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withApp(opts, func(ctx context.Context, a *app) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			alerts, err := a.service.GetRecentAlerts(ctx, target, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(c.OutOrStdout()).Encode(alerts)
			}
			console.PrintAlerts(c.OutOrStdout(), alerts)
			return nil
		})(c, args)
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of alerts (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newAckCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ack <id>...",
		Short: "Acknowledge alerts",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return errors.NewInvalidValue("id", arg, "not a number")
			}
			ids = append(ids, id)
		}
		return withApp(opts, func(ctx context.Context, a *app) error {
			for _, id := range ids {
				if err := a.service.AcknowledgeAlert(ctx, id); err != nil {
					return err
				}
			}
			fmt.Fprintf(c.OutOrStdout(), "acknowledged %d alert(s)\n", len(ids))
			return nil
		})(c, args)
	}
	return cmd
}

// =============================================================================
// thresholds
// =============================================================================

func newThresholdsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Show or change alert thresholds",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the current thresholds",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				console.PrintThresholds(c.OutOrStdout(), a.service.GetThresholds())
				return nil
			})(c, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <kind=percent[:off]>...",
		Short: "Replace the thresholds, e.g. cpu=85 memory=90 disk=95:off",
		Long: "Replace every threshold. Kinds not named are removed. The rules are\n" +
			"written to thresholds.file, where a running serve picks them up.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			rules, err := thresholds.ParseRules(args)
			if err != nil {
				return err
			}
			return withApp(opts, func(ctx context.Context, a *app) error {
				if a.cfg.Thresholds.File == "" {
					return errors.NewMissingField("thresholds.file")
				}
				if err := a.service.SetThresholds(rules); err != nil {
					return err
				}
				console.PrintThresholds(c.OutOrStdout(), a.service.GetThresholds())
				return nil
			})(c, args)
		},
	})

	return cmd
}

// =============================================================================
// export
// =============================================================================

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		since       time.Duration
		from, to    string
		tier        string
		output      string
		compression string
		rowGroup    int64
	)

	cmd := &cobra.Command{
		Use:   "export <target>...",
		Short: "Write raw rows or 1-minute buckets to a Parquet file",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if err := validation.ValidateTargetIDs(args); err != nil {
			return errors.NewValidation("targets", err.Error())
		}
		t, err := types.ParseTier(tier)
		if err != nil {
			return err
		}
		codec, err := parquet.ParseCompression(compression)
		if err != nil {
			return err
		}
		return withApp(opts, func(ctx context.Context, a *app) error {
			start, end, err := parseRange(since, from, to, time.Now())
			if err != nil {
				return err
			}
			n, err := parquet.Export(ctx, a.store, parquet.ExportRequest{
				Targets: args,
				From:    start,
				To:      end,
				Tier:    t,
				Path:    output,
				Options: parquet.Options{
					Compression:  codec,
					RowGroupSize: rowGroup,
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "wrote %d %s rows to %s\n", n, t, output)
			return nil
		})(c, args)
	}

	cmd.Flags().DurationVar(&since, "since", time.Hour, "range ending now")
	cmd.Flags().StringVar(&from, "from", "", "range start (RFC3339, overrides --since)")
	cmd.Flags().StringVar(&to, "to", "", "range end (RFC3339, default now)")
	cmd.Flags().StringVar(&tier, "tier", "raw", "tier to export: raw or 1m")
	cmd.Flags().StringVarP(&output, "output", "o", "hostwatch.parquet", "output file")
	cmd.Flags().StringVar(&compression, "compression", "zstd", "none, snappy, gzip, lz4 or zstd")
	cmd.Flags().Int64Var(&rowGroup, "row-group-size", 0, "rows per row group (0 = library default)")
	return cmd
}

// =============================================================================
// inspect
// =============================================================================

func newInspectCmd() *cobra.Command {
	var (
		tier     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "inspect <file.parquet>",
		Short: "Print an exported Parquet file as history tables",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		t, err := types.ParseTier(tier)
		if err != nil {
			return err
		}
		histories, err := readExport(args[0], t, interval)
		if err != nil {
			return err
		}
		if len(histories) == 0 {
			fmt.Fprintln(c.OutOrStdout(), "no rows")
		}
		for _, h := range histories {
			console.PrintHistory(c.OutOrStdout(), h, 0)
		}
		return nil
	}

	cmd.Flags().StringVar(&tier, "tier", "raw", "tier the file was exported from: raw or 1m")
	cmd.Flags().DurationVar(&interval, "interval", defaults.DefaultCollectInterval, "sample interval used for raw network rates")
	return cmd
}

// readExport loads an export file and splits it into one history per
// target, in the order targets first appear.
func readExport(path string, tier types.Tier, interval time.Duration) ([]*query.History, error) {
	var order []string
	seen := make(map[string]bool)
	note := func(target string) {
		if !seen[target] {
			seen[target] = true
			order = append(order, target)
		}
	}

	out := make(map[string]*query.History)
	if tier == types.TierMinute {
		recs, err := parquet.ReadBuckets(path)
		if err != nil {
			return nil, err
		}
		byTarget := make(map[string][]types.AggregatedBucket)
		for i := range recs {
			b := recs[i].ToBucket()
			note(b.Target)
			byTarget[b.Target] = append(byTarget[b.Target], b)
		}
		for target, buckets := range byTarget {
			out[target] = &query.History{Target: target, Granularity: tier, Points: query.BucketPoints(buckets)}
		}
	} else {
		recs, err := parquet.ReadRaw(path)
		if err != nil {
			return nil, err
		}
		byTarget := make(map[string][]types.RawRow)
		for i := range recs {
			row := recs[i].ToRawRow()
			note(row.Target)
			byTarget[row.Target] = append(byTarget[row.Target], row)
		}
		for target, rows := range byTarget {
			out[target] = &query.History{Target: target, Granularity: tier, Points: query.RawPoints(rows, interval)}
		}
	}

	histories := make([]*query.History, 0, len(order))
	for _, target := range order {
		histories = append(histories, out[target])
	}
	return histories, nil
}

// =============================================================================
// console
// =============================================================================

func newConsoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive query shell",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				sources, closeSources, err := buildSources(a.cfg)
				if err != nil {
					return err
				}
				defer closeSources()

				con := console.New(a.service, targetLister(provider.NewMux(sources...)), c.OutOrStdout())
				if err := con.Run(ctx); err != nil {
					if errors.Is(err, console.ErrNotTerminal) {
						return fmt.Errorf("%w; use the history, alerts and ack subcommands instead", err)
					}
					return err
				}
				return nil
			})(c, args)
		},
	}
}
