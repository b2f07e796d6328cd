package sqlstore

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"

	"listing_watcher/internal/domain"
)

// storeSuite holds the store tests shared by every driver. Embedding suites
// provide db.
type storeSuite struct {
	suite.Suite
	ctx context.Context
	db  *sqlx.DB
}

func (s *storeSuite) resetTables() {
	_, err := s.db.ExecContext(s.ctx, "DELETE FROM seen_announcements")
	s.Require().NoError(err)
	_, err = s.db.ExecContext(s.ctx, "DELETE FROM cycle_state")
	s.Require().NoError(err)
}

func (s *storeSuite) TestSeenStore_LoadEmpty() {
	ids, err := NewSeenStore(s.db).Load(s.ctx, "test-source")
	s.NoError(err)
	s.Equal(0, ids.Len())
}

func (s *storeSuite) TestSeenStore_ReplaceAndLoad() {
	store := NewSeenStore(s.db)

	s.Require().NoError(store.Replace(s.ctx, "test-source", domain.NewIdentitySet("1", "2", "3")))
	ids, err := store.Load(s.ctx, "test-source")
	s.NoError(err)
	s.Equal([]string{"1", "2", "3"}, ids.IDs())

	s.Require().NoError(store.Replace(s.ctx, "test-source", domain.NewIdentitySet("2", "4")))
	ids, err = store.Load(s.ctx, "test-source")
	s.NoError(err)
	s.Equal([]string{"2", "4"}, ids.IDs())
}

func (s *storeSuite) TestSeenStore_ReplaceKeepsFirstSeen() {
	store := NewSeenStore(s.db)

	s.Require().NoError(store.Replace(s.ctx, "test-source", domain.NewIdentitySet("1")))
	var before time.Time
	s.Require().NoError(s.db.GetContext(s.ctx, &before,
		s.db.Rebind("SELECT first_seen_at FROM seen_announcements WHERE announcement_id = ?"), "1"))

	s.Require().NoError(store.Replace(s.ctx, "test-source", domain.NewIdentitySet("1", "2")))
	var after time.Time
	s.Require().NoError(s.db.GetContext(s.ctx, &after,
		s.db.Rebind("SELECT first_seen_at FROM seen_announcements WHERE announcement_id = ?"), "1"))

	s.True(before.Equal(after))
}

func (s *storeSuite) TestSeenStore_SourcesAreIsolated() {
	store := NewSeenStore(s.db)

	s.Require().NoError(store.Replace(s.ctx, "source1", domain.NewIdentitySet("1", "2")))
	s.Require().NoError(store.Replace(s.ctx, "source2", domain.NewIdentitySet("9")))
	s.Require().NoError(store.Replace(s.ctx, "source1", domain.NewIdentitySet("3")))

	ids, err := store.Load(s.ctx, "source2")
	s.NoError(err)
	s.Equal([]string{"9"}, ids.IDs())
}

func (s *storeSuite) TestSeenStore_ReplaceWithEmptySet() {
	store := NewSeenStore(s.db)

	s.Require().NoError(store.Replace(s.ctx, "test-source", domain.NewIdentitySet("1")))
	s.Require().NoError(store.Replace(s.ctx, "test-source", domain.NewIdentitySet()))

	ids, err := store.Load(s.ctx, "test-source")
	s.NoError(err)
	s.Equal(0, ids.Len())
}

func (s *storeSuite) TestCycleStateStore_GetNew() {
	state, err := NewCycleStateStore(s.db).Get(s.ctx, "new-source")
	s.NoError(err)
	s.NotNil(state)
	s.Equal("new-source", state.SourceID)
	s.True(state.LastCycleAt.IsZero())
	s.Equal(int64(0), state.TotalNotified)
}

func (s *storeSuite) TestCycleStateStore_UpdateAndGet() {
	store := NewCycleStateStore(s.db)
	now := time.Now().Truncate(time.Second)

	state := &domain.CycleState{
		SourceID:      "test-source",
		LastCycleAt:   now,
		LastCycleID:   "cycle-1",
		TotalNotified: 10,
	}
	s.Require().NoError(store.Update(s.ctx, state))

	state.LastCycleID = "cycle-2"
	state.TotalNotified = 12
	s.Require().NoError(store.Update(s.ctx, state))

	retrieved, err := store.Get(s.ctx, "test-source")
	s.NoError(err)
	s.Equal("test-source", retrieved.SourceID)
	s.Equal("cycle-2", retrieved.LastCycleID)
	s.Equal(int64(12), retrieved.TotalNotified)
	s.Positive(retrieved.ID)
	s.WithinDuration(now, retrieved.LastCycleAt, time.Second)
}

func (s *storeSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	seen := NewSeenStore(s.db)
	states := NewCycleStateStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := seen.Replace(ctx, "test-source", domain.NewIdentitySet("1")); err != nil {
			return err
		}
		return states.Update(ctx, &domain.CycleState{SourceID: "test-source", LastCycleAt: time.Now()})
	})
	s.NoError(err)

	ids, err := seen.Load(s.ctx, "test-source")
	s.NoError(err)
	s.Equal(1, ids.Len())
}

func (s *storeSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	seen := NewSeenStore(s.db)

	s.Require().NoError(seen.Replace(s.ctx, "test-source", domain.NewIdentitySet("1")))

	errAbort := errors.New("abort")
	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := seen.Replace(ctx, "test-source", domain.NewIdentitySet("7", "8")); err != nil {
			return err
		}
		return errAbort
	})
	s.ErrorIs(err, errAbort)

	ids, err := seen.Load(s.ctx, "test-source")
	s.NoError(err)
	s.Equal([]string{"1"}, ids.IDs())
}

func (s *storeSuite) TestMigrate_Idempotent() {
	s.NoError(Migrate(s.ctx, s.db))

	var version int
	s.Require().NoError(s.db.GetContext(s.ctx, &version, "SELECT MAX(version) FROM schema_version"))
	s.Equal(migrations[len(migrations)-1].version, version)
}
