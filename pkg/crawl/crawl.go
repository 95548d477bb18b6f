package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/japaniel/leetcrawl/pkg/catalog"
	"github.com/japaniel/leetcrawl/pkg/fetch"
	"github.com/japaniel/leetcrawl/pkg/ingest"
	"github.com/japaniel/leetcrawl/pkg/logger"
)

// Fetcher retrieves raw listing and detail documents.
type Fetcher interface {
	ListCategory(ctx context.Context, category string) ([]byte, error)
	Question(ctx context.Context, slug string) ([]byte, error)
}

// Pool abstracts the worker pool so tests can inject failing implementations.
type Pool interface {
	Start(ctx context.Context)
	SubmitCtx(ctx context.Context, job ingest.Job) error
	Close()
}

// Summary counts what one phase did.
type Summary struct {
	RunID         string
	Documents     int64
	Records       int64
	Dropped       int64
	FetchFailures int64
	Written       int64
	WriteFailures int64
	Elapsed       time.Duration
}

func (s *Summary) add(o Summary) {
	s.Documents += o.Documents
	s.Records += o.Records
	s.Dropped += o.Dropped
	s.FetchFailures += o.FetchFailures
	s.Written += o.Written
	s.WriteFailures += o.WriteFailures
	s.Elapsed += o.Elapsed
}

type counters struct {
	documents, records, dropped, fetchFailures atomic.Int64
}

// Crawler drives fetch, decompose and persist for both crawl phases.
type Crawler struct {
	Fetcher    Fetcher
	Store      *ingest.Upserter
	Log        *logger.Logger
	Categories []string
	Workers    int

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) Pool
}

// New returns a crawler over the default categories with four workers.
func New(f Fetcher, store *ingest.Upserter, log *logger.Logger) *Crawler {
	return &Crawler{
		Fetcher:    f,
		Store:      store,
		Log:        log,
		Categories: fetch.Categories,
		Workers:    4,
	}
}

// Run lists every category and then enriches up to limit pending items
// (limit <= 0 means all of them).
func (c *Crawler) Run(ctx context.Context, limit int) (Summary, error) {
	runID := uuid.NewString()
	listed, err := c.list(ctx, runID)
	if err != nil {
		return listed, err
	}
	enriched, err := c.enrich(ctx, runID, limit)
	listed.add(enriched)
	return listed, err
}

// List runs the listing phase only.
func (c *Crawler) List(ctx context.Context) (Summary, error) {
	return c.list(ctx, uuid.NewString())
}

// Enrich runs the detail phase only, over up to limit pending items.
func (c *Crawler) Enrich(ctx context.Context, limit int) (Summary, error) {
	return c.enrich(ctx, uuid.NewString(), limit)
}

// Detail fetches and persists one item regardless of the frontier.
func (c *Crawler) Detail(ctx context.Context, slug string) (Summary, error) {
	runID := uuid.NewString()
	log := c.Log.With("run", runID, "phase", "detail")
	var n counters
	start := time.Now()
	w0, f0 := c.Store.Stats()

	body, err := c.Fetcher.Question(ctx, slug)
	if err != nil {
		return Summary{RunID: runID, FetchFailures: 1}, fmt.Errorf("fetch %s: %w", slug, err)
	}
	n.documents.Add(1)
	c.persist(log.With("item", slug), catalog.DetailBody(slug, body), &n)
	if err := c.Store.Sync(ctx); err != nil {
		return c.summary(runID, &n, w0, f0, start), err
	}
	return c.summary(runID, &n, w0, f0, start), nil
}

func (c *Crawler) list(ctx context.Context, runID string) (Summary, error) {
	log := c.Log.With("run", runID, "phase", "list")
	var n counters
	start := time.Now()
	w0, f0 := c.Store.Stats()

	g, gctx := errgroup.WithContext(ctx)
	for _, category := range c.Categories {
		g.Go(func() error {
			body, err := c.Fetcher.ListCategory(gctx, category)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				n.fetchFailures.Add(1)
				log.Error("listing fetch failed", "category", category, "error", err)
				return nil
			}
			n.documents.Add(1)
			before := n.records.Load()
			c.persist(log.With("category", category), catalog.ListingBody(body), &n)
			log.Info("category listed", "category", category, "items", n.records.Load()-before)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return c.summary(runID, &n, w0, f0, start), err
	}
	if err := c.Store.Sync(ctx); err != nil {
		return c.summary(runID, &n, w0, f0, start), err
	}
	s := c.summary(runID, &n, w0, f0, start)
	log.Info("listing done", "documents", s.Documents, "records", s.Records, "dropped", s.Dropped, "elapsed", s.Elapsed)
	return s, nil
}

func (c *Crawler) enrich(ctx context.Context, runID string, limit int) (Summary, error) {
	log := c.Log.With("run", runID, "phase", "enrich")
	var n counters
	start := time.Now()
	w0, f0 := c.Store.Stats()

	ids, err := c.Store.PendingEnrichment(ctx, limit)
	if err != nil {
		return Summary{RunID: runID}, fmt.Errorf("frontier: %w", err)
	}
	log.Info("frontier loaded", "pending", len(ids))

	workers := c.Workers
	if workers <= 0 {
		workers = 1
	}
	var pool Pool
	if c.PoolFactory != nil {
		pool = c.PoolFactory(workers, workers*2)
	} else {
		pool = ingest.NewWorkerPool(workers, workers*2)
	}
	pool.Start(ctx)

	var submitErr error
	for _, slug := range ids {
		job := func(ctx context.Context) error {
			body, err := c.Fetcher.Question(ctx, slug)
			if err != nil {
				// The item stays in the frontier for the next run.
				n.fetchFailures.Add(1)
				log.Warn("detail fetch failed", "item", slug, "error", err)
				return err
			}
			n.documents.Add(1)
			c.persist(log.With("item", slug), catalog.DetailBody(slug, body), &n)
			return nil
		}
		if err := pool.SubmitCtx(ctx, job); err != nil {
			if !errors.Is(err, ctx.Err()) && !errors.Is(err, ingest.ErrPoolClosed) {
				submitErr = err
			}
			break
		}
	}
	pool.Close()

	if err := c.Store.Sync(context.WithoutCancel(ctx)); err != nil && submitErr == nil {
		submitErr = err
	}
	s := c.summary(runID, &n, w0, f0, start)
	log.Info("enrichment done", "documents", s.Documents, "records", s.Records, "dropped", s.Dropped,
		"fetch_failures", s.FetchFailures, "elapsed", s.Elapsed)
	if submitErr != nil {
		return s, submitErr
	}
	return s, ctx.Err()
}

// persist enqueues every record of recs. Dropped entities and partial
// records are logged; neither stops the sequence.
func (c *Crawler) persist(log *logger.Logger, recs catalog.Records, n *counters) {
	for rec, err := range recs {
		if rec == nil {
			n.dropped.Add(1)
			log.Warn("record dropped", "error", err)
			continue
		}
		if err != nil {
			log.Debug("record partially extracted", "entity", rec.Entity().Name, "error", err)
		}
		if _, err := c.Store.Enqueue(rec); err != nil {
			log.Error("enqueue failed", "entity", rec.Entity().Name, "error", err)
			continue
		}
		n.records.Add(1)
	}
}

func (c *Crawler) summary(runID string, n *counters, w0, f0 int64, start time.Time) Summary {
	w, f := c.Store.Stats()
	return Summary{
		RunID:         runID,
		Documents:     n.documents.Load(),
		Records:       n.records.Load(),
		Dropped:       n.dropped.Load(),
		FetchFailures: n.fetchFailures.Load(),
		Written:       w - w0,
		WriteFailures: f - f0,
		Elapsed:       time.Since(start),
	}
}
