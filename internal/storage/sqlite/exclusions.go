package sqlite

import (
	"context"
	"fmt"

	"github.com/steveyegge/ftaudit/internal/exclusions"
	"github.com/steveyegge/ftaudit/internal/types"
)

var _ exclusions.Persister = (*SQLiteStorage)(nil)

// Load returns every stored pair ordered by (person_a, person_b)
func (s *SQLiteStorage) Load(ctx context.Context) ([]types.Pair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_a, person_b FROM non_duplicates
		ORDER BY person_a, person_b
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pairs []types.Pair
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		pairs = append(pairs, types.Pair{A: types.PersonID(a), B: types.PersonID(b)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exclusions: %w", err)
	}
	return pairs, nil
}

// Save makes the table hold exactly pairs. Rows already present keep their
// created_at; everything happens in one transaction.
func (s *SQLiteStorage) Save(ctx context.Context, pairs []types.Pair) error {
	want := make(map[types.Pair]struct{}, len(pairs))
	for _, p := range pairs {
		canon, err := types.NewPair(p.A, p.B)
		if err != nil {
			return fmt.Errorf("invalid pair %v: %w", p, err)
		}
		want[canon] = struct{}{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := tx.QueryContext(ctx, `SELECT person_a, person_b FROM non_duplicates`)
	if err != nil {
		return fmt.Errorf("failed to query exclusions: %w", err)
	}
	var stale []types.Pair
	for existing.Next() {
		var a, b string
		if err := existing.Scan(&a, &b); err != nil {
			_ = existing.Close()
			return fmt.Errorf("failed to scan exclusion: %w", err)
		}
		p := types.Pair{A: types.PersonID(a), B: types.PersonID(b)}
		if _, ok := want[p]; !ok {
			stale = append(stale, p)
		}
	}
	if err := existing.Err(); err != nil {
		_ = existing.Close()
		return fmt.Errorf("failed to iterate exclusions: %w", err)
	}
	_ = existing.Close()

	for _, p := range stale {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM non_duplicates WHERE person_a = ? AND person_b = ?
		`, string(p.A), string(p.B)); err != nil {
			return fmt.Errorf("failed to delete exclusion %s: %w", p, err)
		}
	}

	for p := range want {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO non_duplicates (person_a, person_b)
			VALUES (?, ?)
		`, string(p.A), string(p.B)); err != nil {
			return fmt.Errorf("failed to insert exclusion %s: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit exclusions: %w", err)
	}
	return nil
}

// CountExclusions returns the number of stored pairs
func (s *SQLiteStorage) CountExclusions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM non_duplicates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count exclusions: %w", err)
	}
	return n, nil
}
