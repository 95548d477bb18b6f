package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// WriteFunc performs one database write inside a transaction and returns the
// number of affected rows.
type WriteFunc func(ctx context.Context, tx *sql.Tx) (int64, error)

// Result is delivered once per submitted write after its batch is committed
// (or has failed).
type Result struct {
	Rows int64
	Err  error
}

type pendingWrite struct {
	fn   WriteFunc
	hook func(Result)
	done chan Result
}

func (p pendingWrite) deliver(r Result) {
	if p.hook != nil {
		p.hook(r)
	}
	p.done <- r
}

// BatchWriter buffers write operations and flushes them in batches inside a transaction.
// Every write runs in its own savepoint, so a failing write is rolled back
// alone and the rest of its batch still commits.
type BatchWriter struct {
	mu          sync.Mutex
	buf         []pendingWrite
	cap         int
	flushTicker *time.Ticker
	closed      bool
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	commitCh chan []pendingWrite
	db       *sql.DB
	OnError  func(error)

	// lastErr stores the first batch-level error seen by the writer. Protected by errMu.
	errMu   sync.Mutex
	lastErr error
}

// NewBatchWriter creates a new BatchWriter.
// db: the database connection to use for transactions.
// bufferSize: flush when buffer reaches this size.
// flushInterval: flush after this duration (0 to disable).
func NewBatchWriter(db *sql.DB, bufferSize int, flushInterval time.Duration) *BatchWriter {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	bw := &BatchWriter{
		buf:      make([]pendingWrite, 0, bufferSize),
		cap:      bufferSize,
		ctx:      ctx,
		cancel:   cancel,
		commitCh: make(chan []pendingWrite, 2), // Buffer a couple of batches
		db:       db,
	}

	bw.wg.Add(1)
	go bw.committer()

	if flushInterval > 0 {
		bw.flushTicker = time.NewTicker(flushInterval)
		bw.wg.Add(1)
		go bw.loop()
	}
	return bw
}

// Submit enqueues a write function. The returned channel receives exactly one
// Result once the write's batch has been committed or has failed.
func (bw *BatchWriter) Submit(w WriteFunc) (<-chan Result, error) {
	return bw.SubmitWithHook(w, nil)
}

// SubmitWithHook is Submit with a hook that runs on the committer goroutine
// just before the result is delivered.
func (bw *BatchWriter) SubmitWithHook(w WriteFunc, hook func(Result)) (<-chan Result, error) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return nil, ErrBatchWriterClosed
	}
	done := make(chan Result, 1)
	bw.buf = append(bw.buf, pendingWrite{fn: w, hook: hook, done: done})
	if len(bw.buf) >= bw.cap {
		bw.flushLocked()
	}
	return done, nil
}

// Flush hands the buffered writes to the committer without waiting for them.
func (bw *BatchWriter) Flush() {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return
	}
	bw.flushLocked()
}

// flushLocked assumes bw.mu is held.
func (bw *BatchWriter) flushLocked() {
	if len(bw.buf) == 0 {
		return
	}
	batch := bw.buf
	bw.buf = make([]pendingWrite, 0, bw.cap)

	// Blocking here while holding the lock propagates committer backpressure to Submit.
	select {
	case bw.commitCh <- batch:
	case <-bw.ctx.Done():
		err := fmt.Errorf("batch writer: dropping batch of %d items due to context cancellation", len(batch))
		bw.recordErr(err)
		for _, p := range batch {
			p.deliver(Result{Err: err})
		}
	}
}

func (bw *BatchWriter) recordErr(err error) {
	bw.errMu.Lock()
	if bw.lastErr == nil {
		bw.lastErr = err
	}
	bw.errMu.Unlock()
	if bw.OnError != nil {
		bw.OnError(err)
	}
}

func (bw *BatchWriter) committer() {
	defer bw.wg.Done()
	for batch := range bw.commitCh {
		results, err := bw.executeBatch(batch)
		if err != nil {
			bw.recordErr(err)
		}
		for i, p := range batch {
			p.deliver(results[i])
		}
	}
}

// executeBatch runs the batch and returns one result per write, plus a
// batch-level error when the transaction itself could not be used.
func (bw *BatchWriter) executeBatch(batch []pendingWrite) ([]Result, error) {
	results := make([]Result, len(batch))
	fail := func(err error) ([]Result, error) {
		for i := range results {
			results[i] = Result{Err: err}
		}
		return results, err
	}

	// If no DB is configured (e.g. testing without DB), just run callbacks with nil tx
	if bw.db == nil {
		for i, p := range batch {
			n, err := p.fn(bw.ctx, nil)
			results[i] = Result{Rows: n, Err: err}
		}
		return results, nil
	}

	// Use background context for flushing to avoid "context canceled" if bw is closing.
	ctx := context.Background()

	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to begin batch tx: %w", err))
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	for i, p := range batch {
		if _, err := tx.ExecContext(ctx, "SAVEPOINT sp_write"); err != nil {
			return fail(fmt.Errorf("savepoint: %w", err))
		}
		n, werr := p.fn(ctx, tx)
		if werr != nil {
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO sp_write"); err != nil {
				return fail(fmt.Errorf("rollback to savepoint: %w", err))
			}
		}
		if _, err := tx.ExecContext(ctx, "RELEASE sp_write"); err != nil {
			return fail(fmt.Errorf("release savepoint: %w", err))
		}
		results[i] = Result{Rows: n, Err: werr}
		if werr != nil {
			results[i].Rows = 0
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("failed to commit batch (%d items): %w", len(batch), err))
	}
	return results, nil
}

func (bw *BatchWriter) loop() {
	defer bw.wg.Done()
	for {
		select {
		case <-bw.ctx.Done():
			return
		case <-bw.flushTicker.C:
			bw.mu.Lock()
			if len(bw.buf) > 0 {
				bw.flushLocked()
			}
			bw.mu.Unlock()
		}
	}
}

// Close stops accepting submissions and waits for pending writes to complete.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return ErrBatchWriterClosed
	}
	bw.closed = true
	if bw.flushTicker != nil {
		bw.flushTicker.Stop()
	}
	// flush remaining
	if len(bw.buf) > 0 {
		bw.flushLocked()
	}
	bw.mu.Unlock()

	bw.cancel()        // Stop ticker loop
	close(bw.commitCh) // Stop committer loop
	bw.wg.Wait()

	// Return any batch-level error that was recorded during execution
	bw.errMu.Lock()
	defer bw.errMu.Unlock()
	return bw.lastErr
}

var ErrBatchWriterClosed = &BatchWriterError{"batch writer closed"}

type BatchWriterError struct{ msg string }

func (e *BatchWriterError) Error() string { return e.msg }
