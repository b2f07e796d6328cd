package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"listing_watcher/internal/domain"
)

// SeenStore keeps the identity set of the last successful cycle per source.
type SeenStore struct {
	db *sqlx.DB
	tx *TransactionManager
}

func NewSeenStore(db *sqlx.DB) *SeenStore {
	return &SeenStore{db: db, tx: NewTransactionManager(db)}
}

func (s *SeenStore) Load(ctx context.Context, sourceID string) (domain.IdentitySet, error) {
	ex := GetExecutor(ctx, s.db)

	var ids []string
	query := ex.Rebind(`SELECT announcement_id FROM seen_announcements WHERE source_id = ?`)
	if err := sqlx.SelectContext(ctx, ex, &ids, query, sourceID); err != nil {
		return nil, fmt.Errorf("select seen ids: %w", err)
	}
	return domain.NewIdentitySet(ids...), nil
}

// Replace makes ids the complete seen set of sourceID. Rows keep their
// first_seen_at while they stay in the set.
func (s *SeenStore) Replace(ctx context.Context, sourceID string, ids domain.IdentitySet) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		ex := GetExecutor(ctx, s.db)

		var generation int64
		if err := sqlx.GetContext(ctx, ex, &generation,
			ex.Rebind(`SELECT COALESCE(MAX(generation), 0) + 1 FROM seen_announcements WHERE source_id = ?`),
			sourceID,
		); err != nil {
			return fmt.Errorf("next generation: %w", err)
		}

		upsert := ex.Rebind(`
			INSERT INTO seen_announcements (source_id, announcement_id, generation)
			VALUES (?, ?, ?)
			ON CONFLICT (source_id, announcement_id) DO UPDATE SET
				generation = EXCLUDED.generation`)
		for _, id := range ids.IDs() {
			if _, err := ex.ExecContext(ctx, upsert, sourceID, id, generation); err != nil {
				return fmt.Errorf("upsert seen id %s: %w", id, err)
			}
		}

		if _, err := ex.ExecContext(ctx,
			ex.Rebind(`DELETE FROM seen_announcements WHERE source_id = ? AND generation <> ?`),
			sourceID, generation,
		); err != nil {
			return fmt.Errorf("delete stale seen ids: %w", err)
		}
		return nil
	})
}
