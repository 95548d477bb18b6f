package crawl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/leetcrawl/pkg/db"
	"github.com/japaniel/leetcrawl/pkg/fetch"
	"github.com/japaniel/leetcrawl/pkg/ingest"
	"github.com/japaniel/leetcrawl/pkg/logger"
)

type fakeFetcher struct {
	mu       sync.Mutex
	listings map[string][]byte
	details  map[string][]byte
	asked    []string
}

func (f *fakeFetcher) ListCategory(ctx context.Context, category string) ([]byte, error) {
	body, ok := f.listings[category]
	if !ok {
		return nil, &fetch.StatusError{Method: http.MethodGet, URL: category, Code: http.StatusNotFound}
	}
	return body, nil
}

func (f *fakeFetcher) Question(ctx context.Context, slug string) ([]byte, error) {
	f.mu.Lock()
	f.asked = append(f.asked, slug)
	f.mu.Unlock()
	body, ok := f.details[slug]
	if !ok {
		return nil, errors.New("connection reset")
	}
	return body, nil
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return b
}

func setup(t *testing.T, f Fetcher) (*Crawler, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.DriverCGO, ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.InitDB(context.Background(), conn))
	store := ingest.NewUpserter(conn, logger.Nop(), 16, 10*time.Millisecond)
	t.Cleanup(func() {
		store.Close()
		conn.Close()
	})
	c := New(f, store, logger.Nop())
	c.Workers = 2
	return c, conn
}

func rows(t *testing.T, conn *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestRunListsAndEnriches(t *testing.T) {
	f := &fakeFetcher{
		listings: map[string][]byte{"algorithms": fixture(t, "listing.json")},
		details:  map[string][]byte{"two-sum": fixture(t, "two_sum.json")},
	}
	c, conn := setup(t, f)
	c.Categories = []string{"algorithms", "database"}

	s, err := c.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, s.RunID)

	// Listing: 2 valid entries, 1 dropped; database category fails to fetch.
	// Detail: two-sum decomposes, add-two-numbers fails to fetch.
	assert.Equal(t, int64(2), s.FetchFailures)
	assert.Equal(t, int64(1), s.Dropped)
	assert.Equal(t, int64(2), s.Documents)
	assert.Zero(t, s.WriteFailures)
	assert.Equal(t, s.Records, s.Written)

	assert.Equal(t, 2, rows(t, conn, "items"))
	assert.Equal(t, 2, rows(t, conn, "related_items"))
	assert.Equal(t, 2, rows(t, conn, "tags"))
	assert.Equal(t, 2, rows(t, conn, "hints"))
	assert.Equal(t, 1, rows(t, conn, "enrichments"))

	item, err := db.LoadItem(context.Background(), conn, "two-sum")
	require.NoError(t, err)
	assert.InDelta(t, 53.2, item.AcceptRate.Float64, 1e-9)
	assert.True(t, item.TextContent.Valid)
	assert.NotContains(t, item.TextContent.String, "<code>")

	// The failed item is still pending and is retried on the next run.
	pending, err := c.Store.PendingEnrichment(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"add-two-numbers"}, pending)
	assert.ElementsMatch(t, []string{"two-sum", "add-two-numbers"}, f.asked)
}

func TestRunIsIdempotent(t *testing.T) {
	f := &fakeFetcher{
		listings: map[string][]byte{"algorithms": fixture(t, "listing.json")},
		details: map[string][]byte{
			"two-sum":         fixture(t, "two_sum.json"),
			"add-two-numbers": fixture(t, "two_sum.json"),
		},
	}
	c, conn := setup(t, f)
	c.Categories = []string{"algorithms"}

	_, err := c.Run(context.Background(), 0)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, table := range []string{"items", "related_items", "tags", "hints", "enrichments"} {
		counts[table] = rows(t, conn, table)
	}

	// Second pass: frontier is empty, listing refresh must not add or erase rows.
	s, err := c.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Documents)
	for table, n := range counts {
		assert.Equal(t, n, rows(t, conn, table), table)
	}
	item, err := db.LoadItem(context.Background(), conn, "two-sum")
	require.NoError(t, err)
	assert.True(t, item.Content.Valid, "listing refresh cleared detail content")
}

func TestEnrichHonorsLimit(t *testing.T) {
	f := &fakeFetcher{
		listings: map[string][]byte{"algorithms": fixture(t, "listing.json")},
		details:  map[string][]byte{},
	}
	c, _ := setup(t, f)
	c.Categories = []string{"algorithms"}
	_, err := c.List(context.Background())
	require.NoError(t, err)

	s, err := c.Enrich(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.FetchFailures)
	assert.Len(t, f.asked, 1)
}

func TestDetailSingleItem(t *testing.T) {
	f := &fakeFetcher{details: map[string][]byte{"two-sum": fixture(t, "two_sum.json")}}
	c, conn := setup(t, f)

	s, err := c.Detail(context.Background(), "two-sum")
	require.NoError(t, err)
	// 1 item, 2 related, 2 tags, 2 hints, 1 enrichment.
	assert.Equal(t, int64(8), s.Records)
	assert.Equal(t, int64(8), s.Written)
	assert.Equal(t, 1, rows(t, conn, "enrichments"))

	_, err = c.Detail(context.Background(), "unknown")
	assert.Error(t, err)
}

func TestDetailMalformedBody(t *testing.T) {
	f := &fakeFetcher{details: map[string][]byte{"broken": []byte(`{"data":{"question":null}}`)}}
	c, conn := setup(t, f)
	s, err := c.Detail(context.Background(), "broken")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Dropped)
	assert.Zero(t, rows(t, conn, "items"))
}

// failingPool always returns an error on Submit to simulate producer error.
type failingPool struct{}

func (f *failingPool) Start(ctx context.Context) {}
func (f *failingPool) SubmitCtx(ctx context.Context, job ingest.Job) error {
	return errors.New("submit failed")
}
func (f *failingPool) Close() {}

func TestEnrichSurfacesSubmitError(t *testing.T) {
	f := &fakeFetcher{listings: map[string][]byte{"algorithms": fixture(t, "listing.json")}}
	c, _ := setup(t, f)
	c.Categories = []string{"algorithms"}
	c.PoolFactory = func(workers, queue int) Pool { return &failingPool{} }

	_, err := c.Run(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submit failed")
}

func TestEnrichCanceledContext(t *testing.T) {
	f := &fakeFetcher{listings: map[string][]byte{"algorithms": fixture(t, "listing.json")}}
	c, _ := setup(t, f)
	c.Categories = []string{"algorithms"}
	_, err := c.List(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Enrich(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.asked)
}

func TestRunAgainstHTTPServer(t *testing.T) {
	listing := fixture(t, "listing.json")
	detail := fixture(t, "two_sum.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/problems/algorithms/":
			w.Write(listing)
		case r.URL.Path == "/graphql":
			var req struct {
				Variables map[string]string `json:"variables"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if req.Variables["titleSlug"] != "two-sum" {
				w.Write([]byte(`{"data":{"question":null}}`))
				return
			}
			w.Write(detail)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, conn := setup(t, fetch.New(srv.URL, 2*time.Second, 0, 1))
	c.Categories = []string{"algorithms"}
	s, err := c.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, s.FetchFailures)
	// One listing entry without a slug, one detail answer without a question.
	assert.Equal(t, int64(2), s.Dropped)
	assert.Equal(t, 1, rows(t, conn, "enrichments"))

	var related string
	require.NoError(t, conn.QueryRow(`SELECT group_concat(related_id) FROM (SELECT related_id FROM related_items ORDER BY related_id)`).Scan(&related))
	assert.Equal(t, "3sum,4sum", strings.TrimSpace(related))
}
