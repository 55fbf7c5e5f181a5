// Command candles builds UTC-aligned OHLCV candles and book features from
// per-day raw exchange feeds.
//
//	candles register --date 2024-03-10 --file instruments.yaml
//	candles index    --date 2024-03-10
//	candles run      --from 2024-03-10 --to 2024-03-12
//	candles report   --run-id <id> --format md
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"market-candle-lab/internal/boundary"
	"market-candle-lab/internal/config"
	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/lookup"
	"market-candle-lab/internal/reporting"
	"market-candle-lab/internal/storage"
	"market-candle-lab/internal/storage/migrations"
	"market-candle-lab/internal/storage/postgres"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "candles",
		Short:         "Exchange tick to OHLCV candle pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML); CANDLES_* env vars override it")

	root.AddCommand(
		runCmd(),
		validateCmd(),
		indexCmd(),
		registerCmd(),
		migrateCmd(),
		reportCmd(),
		inspectCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp opens the configured backends around fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func runCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build candles, rollups and book features for every day in [from, to]",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fromUs, err := boundary.ParseDate(from)
			if err != nil {
				return err
			}
			toUs := fromUs
			if to != "" {
				if toUs, err = boundary.ParseDate(to); err != nil {
					return err
				}
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				orch, err := a.orchestrator()
				if err != nil {
					return err
				}

				start := time.Now()
				res, err := orch.RunRange(ctx, fromUs, toUs)
				if err != nil {
					return err
				}

				fmt.Printf("Run %s: %d days, %d succeeded, %d failed, %d skipped (%s)\n",
					res.RunID, len(res.Days), res.Succeeded, res.Failed, res.Skipped, time.Since(start).Round(time.Millisecond))
				for _, day := range res.Days {
					for _, g := range day.SkippedGroups {
						fmt.Printf("  %s: skipped group %s [%s], missing %s\n",
							day.Date, g.Underlying, strings.Join(g.Members, ","), strings.Join(g.Missing, ","))
					}
				}
				for _, e := range res.Errors {
					fmt.Printf("  error: %s\n", e)
				}
				if res.Failed > 0 || len(res.Errors) > 0 {
					return fmt.Errorf("run %s finished with %d failed units and %d day errors", res.RunID, res.Failed, len(res.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first UTC day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last UTC day, YYYY-MM-DD (default --from)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func validateCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Show which underlying groups pass the completeness gate for a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := boundary.ParseDate(date)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.gate().Check(ctx, a.cfg.Exchange, day)
				if err != nil {
					return err
				}
				for _, g := range res.Groups {
					status := "valid"
					if !g.Valid {
						status = "skipped"
					}
					fmt.Printf("%-24s %-8s %s\n", g.UnderlyingKey, status, strings.Join(g.Members, ","))
					for _, p := range g.Missing {
						fmt.Printf("  missing %s/%s\n", p.InstrumentKey, p.DataType)
					}
				}
				fmt.Printf("%d valid, %d skipped instruments\n", len(res.Valid), len(res.Skipped))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "UTC day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func indexCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Record which raw feeds were delivered for a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := boundary.ParseDate(date)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				feeds, err := a.ticks.Inventory(ctx, a.cfg.Exchange, day)
				if err != nil {
					return err
				}
				for _, f := range feeds {
					if err := a.availability.MarkAvailable(ctx, a.cfg.Exchange, day, f.InstrumentKey, f.DataType, f.Rows); err != nil {
						return fmt.Errorf("mark %s/%s: %w", f.InstrumentKey, f.DataType, err)
					}
				}
				a.log.Info("indexed raw feeds",
					zap.String("exchange", a.cfg.Exchange),
					zap.String("date", date),
					zap.Int("feeds", len(feeds)))
				fmt.Printf("Indexed %d raw feeds for %s\n", len(feeds), date)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "UTC day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func registerCmd() *cobra.Command {
	var date, file string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Load instrument metadata valid from a day into the registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := boundary.ParseDate(date)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				instruments, err := config.LoadInstruments(file, a.cfg.Exchange)
				if err != nil {
					return err
				}
				if err := a.registry.Upsert(ctx, day, instruments); err != nil {
					return err
				}
				fmt.Printf("Registered %d instruments from %s\n", len(instruments), date)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "first UTC day the listing is valid, YYYY-MM-DD")
	cmd.Flags().StringVar(&file, "file", "", "YAML or JSON file with an instruments list")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres and ClickHouse migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cfg.Postgres.DSN == "" && cfg.Clickhouse.DSN == "" {
				return errors.New("migrate: neither postgres.dsn nor clickhouse.dsn is set")
			}

			if cfg.Postgres.DSN != "" {
				pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN,
					postgres.WithMaxConns(cfg.Postgres.MaxConns),
					postgres.WithConnectTimeout(cfg.Postgres.ConnectTimeout))
				if err != nil {
					return err
				}
				applied, err := migrations.RunPostgresMigrations(ctx, pool)
				pool.Close()
				if err != nil {
					return err
				}
				fmt.Printf("Postgres: applied %s\n", strings.Join(applied, ", "))
			}
			if cfg.Clickhouse.DSN != "" {
				conn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN)
				if err != nil {
					return err
				}
				_ = conn.Close()
				fmt.Printf("ClickHouse (%s): applied %s\n", conn.Database(), strings.Join(applied, ", "))
			}
			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	var runID, format, output string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a run's ledger as Markdown or CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "md" && format != "csv" {
				return fmt.Errorf("report: unknown format %q, want md or csv", format)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				rep, err := reporting.NewGenerator(a.ledger).Generate(ctx, runID)
				if err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						return fmt.Errorf("run %s has no recorded units", runID)
					}
					return err
				}

				body := reporting.RenderMarkdown(rep)
				if format == "csv" {
					if body, err = reporting.RenderCSV(rep); err != nil {
						return err
					}
				}
				if output == "" {
					fmt.Print(body)
					return nil
				}
				if err := os.WriteFile(output, []byte(body), 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Printf("Report written to %s\n", output)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id printed by the run command")
	cmd.Flags().StringVar(&format, "format", "md", "md or csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}

func inspectCmd() *cobra.Command {
	var instrument, timeframe, date string
	var at []string
	var buffer time.Duration
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Look up persisted candles near given instants without reading the whole day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := boundary.ParseDate(date)
			if err != nil {
				return err
			}
			tf, err := domain.ParseTimeframe(timeframe)
			if err != nil {
				return err
			}
			instants := make([]int64, 0, len(at))
			for _, s := range at {
				t, err := time.ParseInLocation("15:04:05", s, time.UTC)
				if err != nil {
					return fmt.Errorf("inspect: --at %q: want HH:MM:SS", s)
				}
				instants = append(instants, day+int64(t.Hour()*3600+t.Minute()*60+t.Second())*domain.MicrosPerSecond)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				key := storage.DayKey{Exchange: a.cfg.Exchange, InstrumentKey: instrument, Timeframe: tf, DayStartUs: day}
				points, err := lookup.Near(ctx, a.candles, key, instants, buffer.Microseconds())
				if err != nil {
					return err
				}
				for i, p := range points {
					if p.Candle == nil {
						fmt.Printf("%s  no candle within %s\n", at[i], buffer)
						continue
					}
					c := p.Candle
					lastClose := "n/a"
					if p.Close != nil {
						lastClose = fmt.Sprintf("%g", *p.Close)
					}
					fmt.Printf("%s  start=%s o=%g h=%g l=%g c=%g v=%g n=%d last_close=%s\n",
						at[i], time.UnixMicro(c.TimestampUs).UTC().Format(time.TimeOnly),
						c.Open, c.High, c.Low, c.Close, c.Volume, c.TradeCount, lastClose)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&instrument, "instrument", "", "instrument key, e.g. BTC-PERPETUAL")
	cmd.Flags().StringVar(&timeframe, "timeframe", "1m", "candle timeframe")
	cmd.Flags().StringVar(&date, "date", "", "UTC day, YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&at, "at", nil, "UTC times of day, HH:MM:SS (repeatable)")
	cmd.Flags().DurationVar(&buffer, "buffer", 5*time.Minute, "half-width of the window read around each instant")
	_ = cmd.MarkFlagRequired("instrument")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}
