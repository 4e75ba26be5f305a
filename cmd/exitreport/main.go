// Command exitreport prints the realized exit history recorded by the
// tracker, or follows new exits from the Redis stream.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mtf-tracker/config"
	"mtf-tracker/internal/logger"
	"mtf-tracker/internal/markethours"
	"mtf-tracker/internal/model"
	"mtf-tracker/internal/notification"
	redisstore "mtf-tracker/internal/store/redis"
	sqlitestore "mtf-tracker/internal/store/sqlite"
)

const dateLayout = "2006-01-02"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.Init("exitreport", logger.Options{Level: cfg.Log.Level, Format: "console", Stderr: true})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd(cfg, log).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd(cfg *config.Config, log *zap.Logger) *cobra.Command {
	var (
		dbPath       string
		symbol       string
		since, until string
		limit        int
	)
	root := &cobra.Command{
		Use:   "exitreport",
		Short: "Print the realized exit history recorded by the tracker",
		Example: `  exitreport --since 2026-10-01 --symbol INFY-EQ
  exitreport follow --mirror data/mirror.db`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := buildFilter(symbol, since, until, limit)
			if err != nil {
				return err
			}
			r, err := sqlitestore.OpenReader(dbPath)
			if err != nil {
				return err
			}
			defer r.Close()
			return report(cmd.Context(), cmd.OutOrStdout(), r, f)
		},
	}
	root.Flags().StringVar(&dbPath, "db", cfg.Storage.SQLitePath, "exit history database")
	root.Flags().StringVar(&symbol, "symbol", "", "only this trading symbol")
	root.Flags().StringVar(&since, "since", "", "first trade date, YYYY-MM-DD (IST)")
	root.Flags().StringVar(&until, "until", "", "last trade date, YYYY-MM-DD (IST)")
	root.Flags().IntVar(&limit, "limit", 0, "max rows, 0 for all")

	root.AddCommand(followCmd(cfg, log))
	return root
}

func followCmd(cfg *config.Config, log *zap.Logger) *cobra.Command {
	var group, consumer, mirror string
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Stream new exits from the Redis exit stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runFollow(cmd.Context(), cmd.OutOrStdout(), cfg, group, consumer, mirror, log)
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Redis consumer group")
	cmd.Flags().StringVar(&consumer, "consumer", "", "Redis consumer name")
	cmd.Flags().StringVar(&mirror, "mirror", "", "also append exits to this database")
	return cmd
}

// buildFilter turns IST dates into a [since, until+1day) window.
func buildFilter(symbol, since, until string, limit int) (sqlitestore.Filter, error) {
	f := sqlitestore.Filter{Symbol: symbol, Limit: limit}
	if since != "" {
		t, err := time.ParseInLocation(dateLayout, since, markethours.IST)
		if err != nil {
			return f, fmt.Errorf("--since: %w", err)
		}
		f.Since = t
	}
	if until != "" {
		t, err := time.ParseInLocation(dateLayout, until, markethours.IST)
		if err != nil {
			return f, fmt.Errorf("--until: %w", err)
		}
		f.Until = t.AddDate(0, 0, 1)
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Since.Before(f.Until) {
		return f, fmt.Errorf("--since %s is after --until %s", since, until)
	}
	return f, nil
}

func report(ctx context.Context, w io.Writer, r *sqlitestore.Reader, f sqlitestore.Filter) error {
	rows, err := r.Query(ctx, f)
	if err != nil {
		return err
	}
	total, n, err := r.TotalRealized(ctx, sqlitestore.Filter{Symbol: f.Symbol, Since: f.Since, Until: f.Until})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "TIME (IST)\tSYMBOL\tQTY\tAVG\tEXIT\tP&L\tP&L %\t")
	for i := range rows {
		writeRow(tw, &rows[i])
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d exits, realized %s\n", n, notification.FormatINR(total))
	return nil
}

func writeRow(w io.Writer, e *model.ExitRecord) {
	exit := notification.FormatINR(e.ExitPrice)
	if !e.PriceResolved {
		exit = "n/a"
	}
	fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t\n",
		e.TradeTime.In(markethours.IST).Format("02-Jan-2006 15:04:05"),
		e.Symbol, e.Quantity,
		notification.FormatINR(e.AveragePrice), exit,
		notification.FormatINR(e.RealizedPnL), e.RealizedPercent.StringFixed(2))
}

func runFollow(ctx context.Context, out io.Writer, cfg *config.Config, group, consumer, mirror string, log *zap.Logger) error {
	if cfg.Storage.RedisAddr == "" {
		return fmt.Errorf("follow needs REDIS_ADDR")
	}
	rdb, err := redisstore.Connect(redisstore.Config{
		Addr:     cfg.Storage.RedisAddr,
		Password: cfg.Storage.RedisPassword,
		DB:       cfg.Storage.RedisDB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	var sink model.ExitSink
	if mirror != "" {
		store, err := sqlitestore.Open(sqlitestore.Config{DBPath: mirror, Log: log})
		if err != nil {
			return err
		}
		defer store.Close()
		sink = store
	}

	c := redisstore.NewExitConsumer(rdb, group, consumer, log)
	if err := c.EnsureGroup(ctx, "0"); err != nil {
		return err
	}
	log.Info("following exits", zap.String("stream", redisstore.StreamExits))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	return c.Consume(ctx, func(e model.ExitRecord) error {
		if sink != nil {
			// the sink ignores exits it already holds
			if err := sink.Append(ctx, []model.ExitRecord{e}); err != nil {
				return err
			}
		}
		writeRow(tw, &e)
		return tw.Flush()
	})
}
