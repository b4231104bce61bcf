package sqlstore

import (
	"context"
	"fmt"
)

// Both dialects accept this schema unchanged.
const schema = `
CREATE TABLE IF NOT EXISTS objects (
    _key  TEXT NOT NULL,
    field TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (_key, field)
);

CREATE TABLE IF NOT EXISTS sorted_sets (
    _key   TEXT NOT NULL,
    member TEXT NOT NULL,
    score  DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (_key, member)
);

CREATE INDEX IF NOT EXISTS idx_sorted_sets_key_score ON sorted_sets(_key, score);
`

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
