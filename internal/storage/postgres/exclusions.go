package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/steveyegge/ftaudit/internal/exclusions"
	"github.com/steveyegge/ftaudit/internal/types"
)

var _ exclusions.Persister = (*PostgresStorage)(nil)

// checkViolation is the SQLSTATE for a failed CHECK constraint
const checkViolation = "23514"

// Load returns every stored pair in canonical order
func (s *PostgresStorage) Load(ctx context.Context) ([]types.Pair, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT person_a, person_b FROM non_duplicates
		ORDER BY person_a COLLATE "C", person_b COLLATE "C"
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusions: %w", err)
	}
	defer rows.Close()

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

// Save makes the table hold exactly pairs in one transaction. Rows already
// present keep their created_at.
func (s *PostgresStorage) Save(ctx context.Context, pairs []types.Pair) error {
	as, bs, err := columns(pairs)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM non_duplicates
		WHERE (person_a, person_b) NOT IN (
			SELECT a, b FROM unnest($1::text[], $2::text[]) AS wanted(a, b)
		)
	`, as, bs); err != nil {
		return fmt.Errorf("failed to delete stale exclusions: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO non_duplicates (person_a, person_b)
		SELECT a, b FROM unnest($1::text[], $2::text[]) AS wanted(a, b)
		ON CONFLICT (person_a, person_b) DO NOTHING
	`, as, bs); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == checkViolation {
			return fmt.Errorf("exclusion rejected by %s: %w", pgErr.ConstraintName, err)
		}
		return fmt.Errorf("failed to insert exclusions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit exclusions: %w", err)
	}
	return nil
}

// CountExclusions returns the number of stored pairs
func (s *PostgresStorage) CountExclusions(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM non_duplicates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count exclusions: %w", err)
	}
	return n, nil
}

// columns canonicalises and deduplicates pairs into parallel id arrays
func columns(pairs []types.Pair) ([]string, []string, error) {
	seen := make(map[types.Pair]struct{}, len(pairs))
	as := make([]string, 0, len(pairs))
	bs := make([]string, 0, len(pairs))
	for _, p := range pairs {
		canon, err := types.NewPair(p.A, p.B)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid pair %v: %w", p, err)
		}
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		as = append(as, string(canon.A))
		bs = append(bs, string(canon.B))
	}
	return as, bs, nil
}
