package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stacktrader/server/internal/store"
)

// ComponentRepo is the Postgres store.KV. Values live in components,
// collection membership in collection_members ordered by seq.
type ComponentRepo struct {
	db *DB
}

var _ store.KV = (*ComponentRepo)(nil)

func NewComponentRepo(db *DB) *ComponentRepo {
	return &ComponentRepo{db: db}
}

func (r *ComponentRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT value FROM components WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *ComponentRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO components (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	return err
}

// Delete removes the value under key and, if key is a collection, all of
// its membership rows.
func (r *ComponentRepo) Delete(ctx context.Context, key string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM components WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete value: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM collection_members WHERE collection = $1`, key); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *ComponentRepo) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM components WHERE key = $1)
		     OR EXISTS (SELECT 1 FROM collection_members WHERE collection = $1)`, key,
	).Scan(&ok)
	return ok, err
}

func (r *ComponentRepo) Members(ctx context.Context, collection string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT member FROM collection_members WHERE collection = $1 ORDER BY seq`, collection,
	)
	if err != nil {
		return nil, err
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return members, nil
}

const memberIndexSQL = `SELECT idx FROM (
	SELECT member, row_number() OVER (ORDER BY seq) - 1 AS idx
	FROM collection_members WHERE collection = $1
) m WHERE member = $2`

func (r *ComponentRepo) AddMember(ctx context.Context, collection, member string) (int, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("add member begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO collection_members (collection, member) VALUES ($1, $2)
		 ON CONFLICT (collection, member) DO NOTHING`,
		collection, member,
	); err != nil {
		return 0, fmt.Errorf("insert member: %w", err)
	}
	var idx int64
	if err := tx.QueryRow(ctx, memberIndexSQL, collection, member).Scan(&idx); err != nil {
		return 0, fmt.Errorf("member index: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(idx), nil
}

func (r *ComponentRepo) RemoveMember(ctx context.Context, collection, member string) (int, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("remove member begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var idx int64
	err = tx.QueryRow(ctx, memberIndexSQL, collection, member).Scan(&idx)
	if errors.Is(err, pgx.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("member index: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM collection_members WHERE collection = $1 AND member = $2`,
		collection, member,
	); err != nil {
		return 0, fmt.Errorf("delete member: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(idx), nil
}
