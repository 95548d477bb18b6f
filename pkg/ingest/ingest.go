package ingest

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"github.com/japaniel/leetcrawl/pkg/db"
	"github.com/japaniel/leetcrawl/pkg/logger"
	"github.com/japaniel/leetcrawl/pkg/schema"
)

// Upserter persists records through a single BatchWriter so that all writes
// to the store are serialized by one committer. It is safe for concurrent use.
type Upserter struct {
	DB  *sql.DB
	Log *logger.Logger

	bw      *BatchWriter
	written atomic.Int64
	failed  atomic.Int64
}

// NewUpserter creates an Upserter that flushes every batchSize writes or every
// flushInterval, whichever comes first.
func NewUpserter(conn *sql.DB, log *logger.Logger, batchSize int, flushInterval time.Duration) *Upserter {
	u := &Upserter{
		DB:  conn,
		Log: log,
		bw:  NewBatchWriter(conn, batchSize, flushInterval),
	}
	u.bw.OnError = func(err error) {
		u.Log.Error("batch failed", "error", err)
	}
	return u
}

// Enqueue buffers r for writing and returns a channel that receives its
// result once the write has been committed or has failed.
func (u *Upserter) Enqueue(r schema.Record) (<-chan Result, error) {
	if r == nil {
		return nil, errors.New("enqueue: nil record")
	}
	return u.bw.SubmitWithHook(func(ctx context.Context, tx *sql.Tx) (int64, error) {
		if tx == nil {
			return 0, errors.New("no database configured")
		}
		return db.Persist(ctx, tx, r)
	}, func(res Result) {
		if res.Err != nil {
			u.failed.Add(1)
			u.Log.Warn("write failed", "entity", r.Entity().Name, "error", res.Err)
			return
		}
		u.written.Add(1)
	})
}

// Persist writes r and waits for the outcome.
func (u *Upserter) Persist(ctx context.Context, r schema.Record) (int64, error) {
	ch, err := u.Enqueue(r)
	if err != nil {
		return 0, err
	}
	u.bw.Flush()
	select {
	case res := <-ch:
		return res.Rows, res.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Sync waits until every write enqueued before the call has been committed.
func (u *Upserter) Sync(ctx context.Context) error {
	ch, err := u.bw.Submit(func(context.Context, *sql.Tx) (int64, error) { return 0, nil })
	if err != nil {
		return err
	}
	u.bw.Flush()
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingEnrichment returns the ids of stored items that have no enrichment
// yet, in random order, after committing everything already enqueued.
func (u *Upserter) PendingEnrichment(ctx context.Context, limit int) ([]string, error) {
	if err := u.Sync(ctx); err != nil {
		return nil, err
	}
	return db.PendingEnrichment(ctx, u.DB, limit)
}

// Stats reports the number of successful and failed writes so far. After
// Sync returns, every earlier write is counted.
func (u *Upserter) Stats() (written, failed int64) {
	return u.written.Load(), u.failed.Load()
}

// Close flushes pending writes and stops the committer.
func (u *Upserter) Close() error {
	return u.bw.Close()
}
