package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"listing_watcher/internal/domain"
)

type CycleStateStore struct {
	db *sqlx.DB
}

func NewCycleStateStore(db *sqlx.DB) *CycleStateStore {
	return &CycleStateStore{db: db}
}

func (s *CycleStateStore) Get(ctx context.Context, sourceID string) (*domain.CycleState, error) {
	ex := GetExecutor(ctx, s.db)

	var state domain.CycleState
	query := ex.Rebind(`
		SELECT id, source_id, last_cycle_at, last_cycle_id, total_notified
		FROM cycle_state
		WHERE source_id = ?`)

	err := sqlx.GetContext(ctx, ex, &state, query, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		// Return empty state for new sources
		return &domain.CycleState{
			SourceID:    sourceID,
			LastCycleAt: time.Time{},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *CycleStateStore) Update(ctx context.Context, state *domain.CycleState) error {
	ex := GetExecutor(ctx, s.db)

	query := ex.Rebind(`
		INSERT INTO cycle_state (source_id, last_cycle_at, last_cycle_id, total_notified)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			last_cycle_at = EXCLUDED.last_cycle_at,
			last_cycle_id = EXCLUDED.last_cycle_id,
			total_notified = EXCLUDED.total_notified`)

	_, err := ex.ExecContext(ctx, query,
		state.SourceID,
		state.LastCycleAt.UTC(),
		state.LastCycleID,
		state.TotalNotified,
	)
	return err
}
