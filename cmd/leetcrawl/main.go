package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/japaniel/leetcrawl/pkg/config"
	"github.com/japaniel/leetcrawl/pkg/crawl"
	"github.com/japaniel/leetcrawl/pkg/db"
	"github.com/japaniel/leetcrawl/pkg/fetch"
	"github.com/japaniel/leetcrawl/pkg/ingest"
	"github.com/japaniel/leetcrawl/pkg/logger"
	"github.com/japaniel/leetcrawl/pkg/schema"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().Run(ctx, args); err != nil {
		log.Fatal(err)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "leetcrawl",
		Usage: "Crawl the LeetCode problem catalog into SQLite",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "config file (yaml, toml or json)"},
			&cli.StringFlag{Name: "db", Usage: "SQLite database path"},
			&cli.StringFlag{Name: "driver", Usage: "database driver: sqlite3 (cgo) or sqlite (pure Go)"},
			&cli.StringFlag{Name: "base-url", Usage: "catalog base URL"},
			&cli.FloatFlag{Name: "rate", Usage: "requests per second (0 = unlimited)"},
			&cli.StringFlag{Name: "log-mode", Usage: "dev or prod"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			listCommand(),
			detailCommand(),
			frontierCommand(),
			crawlCommand(),
			statsCommand(),
			showCommand(),
		},
	}
}

// app holds everything a command needs once flags and config are resolved.
type app struct {
	cfg  *config.Config
	log  *logger.Logger
	conn *sql.DB
	out  io.Writer
}

func setup(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("db") {
		cfg.DB.Path = cmd.String("db")
	}
	if cmd.IsSet("driver") {
		cfg.DB.Driver = cmd.String("driver")
	}
	if cmd.IsSet("base-url") {
		cfg.Fetch.BaseURL = cmd.String("base-url")
	}
	if cmd.IsSet("rate") {
		cfg.Fetch.Rate = cmd.Float("rate")
	}
	if cmd.IsSet("log-mode") {
		cfg.Log.Mode = cmd.String("log-mode")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	conn, err := db.Open(cfg.DB.Driver, cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	if err := db.InitDB(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: lg, conn: conn, out: cmd.Root().Writer}, nil
}

func (a *app) Close() {
	a.log.Sync()
	a.conn.Close()
}

// crawler wires the fetch client and write queue. The returned store must be
// closed by the caller.
func (a *app) crawler(workers int) (*crawl.Crawler, *ingest.Upserter) {
	client := fetch.New(a.cfg.Fetch.BaseURL, a.cfg.Fetch.Timeout, a.cfg.Fetch.Rate, a.cfg.Fetch.Burst)
	store := ingest.NewUpserter(a.conn, a.log, a.cfg.Crawl.BatchSize, a.cfg.Crawl.FlushInterval)
	c := crawl.New(client, store, a.log)
	if len(a.cfg.Fetch.Categories) > 0 {
		c.Categories = a.cfg.Fetch.Categories
	}
	c.Workers = a.cfg.Crawl.Workers
	if workers > 0 {
		c.Workers = workers
	}
	return c, store
}

func (a *app) report(s crawl.Summary) {
	fmt.Fprintf(a.out, "run %s: %d documents, %d records (%d written, %d failed), %d dropped, %d fetch failures in %s\n",
		s.RunID, s.Documents, s.Records, s.Written, s.WriteFailures, s.Dropped, s.FetchFailures, s.Elapsed.Round(time.Millisecond))
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create the tables",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintf(a.out, "database %s is up to date\n", a.cfg.DB.Path)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "fetch the category listings and store one item per entry",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "category", Usage: "category to list (repeatable)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			c, store := a.crawler(0)
			if cats := cmd.StringSlice("category"); len(cats) > 0 {
				c.Categories = cats
			}
			s, err := c.List(ctx)
			if cerr := store.Close(); err == nil {
				err = cerr
			}
			a.report(s)
			return err
		},
	}
}

func detailCommand() *cli.Command {
	return &cli.Command{
		Name:      "detail",
		Usage:     "fetch and store the detail document of the given items",
		ArgsUsage: "<slug>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() == 0 {
				return errors.New("detail: at least one slug is required")
			}
			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			c, store := a.crawler(0)
			var errs []error
			for _, slug := range cmd.Args().Slice() {
				s, err := c.Detail(ctx, slug)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				a.report(s)
			}
			if err := store.Close(); err != nil {
				errs = append(errs, err)
			}
			return errors.Join(errs...)
		},
	}
}

func frontierCommand() *cli.Command {
	return &cli.Command{
		Name:  "frontier",
		Usage: "print the items that have not been enriched yet",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "maximum number of ids (0 = all)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ids, err := db.PendingEnrichment(ctx, a.conn, int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(a.out, id)
			}
			return nil
		},
	}
}

func crawlCommand() *cli.Command {
	return &cli.Command{
		Name:  "crawl",
		Usage: "list every category, then enrich the pending items",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "maximum number of items to enrich (0 = config value)"},
			&cli.IntFlag{Name: "workers", Usage: "concurrent detail fetches (0 = config value)"},
			&cli.BoolFlag{Name: "skip-list", Usage: "only run the detail phase"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			c, store := a.crawler(int(cmd.Int("workers")))
			limit := a.cfg.Crawl.FrontierLimit
			if cmd.IsSet("limit") {
				limit = int(cmd.Int("limit"))
			}
			var s crawl.Summary
			if cmd.Bool("skip-list") {
				s, err = c.Enrich(ctx, limit)
			} else {
				s, err = c.Run(ctx, limit)
			}
			if cerr := store.Close(); err == nil {
				err = cerr
			}
			a.report(s)
			return err
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "print row counts per table and the frontier size",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			for _, e := range schema.Entities() {
				n, err := db.CountRows(ctx, a.conn, e)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%-14s %d\n", e.Table, n)
			}
			pending, err := db.PendingEnrichment(ctx, a.conn, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%-14s %d\n", "pending", len(pending))
			return nil
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "print one stored item as JSON",
		ArgsUsage: "<slug>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			slug := strings.TrimSpace(cmd.Args().First())
			if slug == "" {
				return errors.New("show: slug is required")
			}
			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			item, err := db.LoadItem(ctx, a.conn, slug)
			if err != nil {
				return err
			}
			out := map[string]any{}
			for _, f := range item.Entity().Fields {
				if v, ok := item.Get(f.Name); ok {
					out[f.Name] = v.Any()
				}
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
