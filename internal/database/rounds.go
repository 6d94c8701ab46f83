package database

import (
	"context"
	"fmt"
	"time"

	"addrstore/internal/addresses"
)

// Sync round history

func (s *SQLiteStore) RecordRound(ctx context.Context, r *addresses.RoundOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO sync_rounds
		(id, started_at, finished_at, incoming, applied, noops, merged, deduped, conflicts, failed, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(),
		r.Incoming, r.Applied, r.NoOps, r.Merged, r.Deduped, r.Conflicts, r.Failed, r.Status)
	if err != nil {
		return fmt.Errorf("inserting sync round: %w", err)
	}
	return nil
}

// ListRounds returns the most recent rounds, newest first. A limit of zero
// or less returns every round.
func (s *SQLiteStore) ListRounds(ctx context.Context, limit int) ([]*addresses.RoundOutcome, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, started_at, finished_at, incoming, applied, noops, merged, deduped, conflicts, failed, status
		FROM sync_rounds ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*addresses.RoundOutcome
	for rows.Next() {
		var (
			r                 addresses.RoundOutcome
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &started, &finished,
			&r.Incoming, &r.Applied, &r.NoOps, &r.Merged, &r.Deduped, &r.Conflicts, &r.Failed, &r.Status); err != nil {
			return nil, fmt.Errorf("scanning sync round: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		rounds = append(rounds, &r)
	}
	return rounds, rows.Err()
}
