package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/japaniel/leetcrawl/pkg/schema"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Persist writes r with the policy bound to its entity and returns the number
// of affected rows.
func Persist(ctx context.Context, db DBExecutor, r schema.Record) (int64, error) {
	e := r.Entity()
	if missing := schema.Missing(r); len(missing) > 0 {
		return 0, &StorageError{
			Entity: e.Name,
			Key:    keyString(r),
			Op:     "persist",
			Err:    fmt.Errorf("%w: %s", ErrRequiredFieldUnset, strings.Join(missing, ", ")),
		}
	}
	var (
		n   int64
		err error
	)
	switch PolicyFor(e) {
	case InsertThenUpdate:
		n, err = insertThenUpdate(ctx, db, r)
	default:
		n, err = replace(ctx, db, r)
	}
	if err != nil {
		return 0, &StorageError{Entity: e.Name, Key: keyString(r), Op: "persist", Err: err}
	}
	return n, nil
}

// replace writes every field; unset fields become NULL.
func replace(ctx context.Context, db DBExecutor, r schema.Record) (int64, error) {
	e := r.Entity()
	cols := make([]string, len(e.Fields))
	args := make([]any, len(e.Fields))
	for i, f := range e.Fields {
		cols[i] = f.Name
		args[i] = arg(r, f.Name)
	}
	q := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (%s)`,
		e.Table, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// insertThenUpdate creates the row if missing, then sets the supplied
// non-key fields on the row with the same key. Unsupplied fields keep their
// stored values.
func insertThenUpdate(ctx context.Context, db DBExecutor, r schema.Record) (int64, error) {
	e := r.Entity()
	var cols []string
	var args []any
	for _, f := range e.Fields {
		if v, ok := r.Get(f.Name); ok {
			cols = append(cols, f.Name)
			args = append(args, v.Any())
		}
	}
	res, err := db.ExecContext(ctx, fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s) VALUES (%s)`,
		e.Table, strings.Join(cols, ", "), placeholders(len(cols))), args...)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}

	var sets []string
	var setArgs []any
	for _, f := range e.NonKeyFields() {
		if v, ok := r.Get(f.Name); ok {
			sets = append(sets, f.Name+" = ?")
			setArgs = append(setArgs, v.Any())
		}
	}
	if len(sets) == 0 {
		return res.RowsAffected()
	}
	where, keyArgs := keyClause(r)
	res, err = db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE %s`,
		e.Table, strings.Join(sets, ", "), where), append(setArgs, keyArgs...)...)
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	return res.RowsAffected()
}

func keyClause(r schema.Record) (string, []any) {
	names := r.Entity().Key.Fields()
	conds := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		conds[i] = n + " = ?"
		args[i] = arg(r, n)
	}
	return strings.Join(conds, " AND "), args
}

func arg(r schema.Record, name string) any {
	v, ok := r.Get(name)
	if !ok {
		return nil
	}
	return v.Any()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// PendingEnrichment returns the ids of items without an enrichment row, in
// random order. limit <= 0 returns all of them.
func PendingEnrichment(ctx context.Context, db DBExecutor, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `SELECT i.item_id FROM items i
		LEFT JOIN enrichments e ON e.item_id = i.item_id
		WHERE e.item_id IS NULL
		ORDER BY RANDOM()
		LIMIT ?`, limit)
	if err != nil {
		return nil, &StorageError{Entity: schema.PrimaryItemEntity, Op: "frontier", Err: err}
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &StorageError{Entity: schema.PrimaryItemEntity, Op: "frontier", Err: err}
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Entity: schema.PrimaryItemEntity, Op: "frontier", Err: err}
	}
	return out, nil
}

// CountRows returns the number of stored rows of an entity.
func CountRows(ctx context.Context, db DBExecutor, e *schema.Entity) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+e.Table).Scan(&n); err != nil {
		return 0, &StorageError{Entity: e.Name, Op: "count", Err: err}
	}
	return n, nil
}

// LoadItem reads one item by id. It returns sql.ErrNoRows (wrapped) when the
// item is unknown.
func LoadItem(ctx context.Context, db DBExecutor, itemID string) (*schema.PrimaryItem, error) {
	var it schema.PrimaryItem
	err := db.QueryRowContext(ctx, `SELECT source_id, item_id, title, difficulty, likes, dislikes,
		content, text_content, paid_only, sample_case, accepted, submitted, accept_rate
		FROM items WHERE item_id = ?`, itemID).Scan(
		&it.SourceID, &it.ItemID, &it.Title, &it.Difficulty, &it.Likes, &it.Dislikes,
		&it.Content, &it.TextContent, &it.PaidOnly, &it.SampleCase, &it.Accepted, &it.Submitted, &it.AcceptRate)
	if err != nil {
		return nil, &StorageError{Entity: schema.PrimaryItemEntity, Key: "(" + itemID + ")", Op: "load", Err: err}
	}
	return &it, nil
}
