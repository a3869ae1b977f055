package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// JournalRepo writes dispatch journal rows.
type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// WriteBatch copies entries into dispatch_journal in one round trip.
func (r *JournalRepo) WriteBatch(ctx context.Context, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := r.db.Pool.CopyFrom(ctx,
		pgx.Identifier{"dispatch_journal"},
		[]string{"tag", "outcome", "detail", "delivered_at"},
		pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
			e := entries[i]
			return []any{e.Tag, e.Outcome, e.Detail, e.At}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("journal copy: %w", err)
	}
	return nil
}

