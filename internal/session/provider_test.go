package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type stubRefresher struct {
	mu     sync.Mutex
	tokens []string
	err    error
	calls  int
	block  bool
}

func (r *stubRefresher) Refresh(ctx context.Context) (string, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if r.err != nil {
		return "", r.err
	}
	t := r.tokens[0]
	r.tokens = r.tokens[1:]
	return t, nil
}

type ProviderTestSuite struct {
	suite.Suite
	dir    string
	store  *FileStore
	logger *slog.Logger
}

func (s *ProviderTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.store = NewFileStore(filepath.Join(s.dir, "cookies.txt"))
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProviderTestSuite(t *testing.T) {
	suite.Run(t, new(ProviderTestSuite))
}

func (s *ProviderTestSuite) TestToken_LazyLoadsFromStore() {
	s.Require().NoError(os.WriteFile(s.store.Path(), []byte("  sid=abc; lang=en \n"), 0o600))

	p := NewProvider(s.store, nil, time.Second, s.logger)

	s.Equal("sid=abc; lang=en", p.Token(context.Background()))
	s.False(p.UpdatedAt().IsZero())
}

func (s *ProviderTestSuite) TestToken_EmptyWhenNothingStored() {
	p := NewProvider(s.store, nil, time.Second, s.logger)
	s.Empty(p.Token(context.Background()))
}

func (s *ProviderTestSuite) TestToken_LoadsOnlyOnce() {
	p := NewProvider(s.store, nil, time.Second, s.logger)
	s.Empty(p.Token(context.Background()))

	s.Require().NoError(os.WriteFile(s.store.Path(), []byte("late"), 0o600))
	s.Empty(p.Token(context.Background()), "a later file change is picked up through Set or Refresh, not Token")
}

func (s *ProviderTestSuite) TestRefresh_PersistsNewToken() {
	ref := &stubRefresher{tokens: []string{"fresh=1"}}
	p := NewProvider(s.store, ref, time.Second, s.logger)

	token, err := p.Refresh(context.Background())
	s.NoError(err)
	s.Equal("fresh=1", token)
	s.Equal("fresh=1", p.Token(context.Background()))

	stored, err := s.store.Load()
	s.NoError(err)
	s.Equal("fresh=1", stored)
}

func (s *ProviderTestSuite) TestRefresh_FailureReturnsLastKnownToken() {
	s.Require().NoError(s.store.Save("old=1"))
	ref := &stubRefresher{err: errors.New("browser crashed")}
	p := NewProvider(s.store, ref, time.Second, s.logger)

	token, err := p.Refresh(context.Background())
	s.Error(err)
	s.Equal("old=1", token)
}

func (s *ProviderTestSuite) TestRefresh_FailureWithoutTokenReturnsEmpty() {
	p := NewProvider(s.store, &stubRefresher{err: errors.New("x")}, time.Second, s.logger)

	token, err := p.Refresh(context.Background())
	s.Error(err)
	s.Empty(token)
}

func (s *ProviderTestSuite) TestRefresh_BoundedByWaitTimeout() {
	ref := &stubRefresher{block: true}
	p := NewProvider(s.store, ref, 20*time.Millisecond, s.logger)

	start := time.Now()
	_, err := p.Refresh(context.Background())
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Less(time.Since(start), 5*time.Second)
}

func (s *ProviderTestSuite) TestRefresh_EmptyTokenIsFailure() {
	p := NewProvider(s.store, &stubRefresher{tokens: []string{"   "}}, time.Second, s.logger)

	_, err := p.Refresh(context.Background())
	s.Error(err)
}

func (s *ProviderTestSuite) TestRefresh_NoRefresher() {
	p := NewProvider(s.store, nil, time.Second, s.logger)
	_, err := p.Refresh(context.Background())
	s.Error(err)
}

func (s *ProviderTestSuite) TestSet() {
	p := NewProvider(s.store, nil, time.Second, s.logger)

	s.False(p.Set("   "))
	s.True(p.Set(" manual=1 \n"))
	s.Equal("manual=1", p.Token(context.Background()))

	stored, err := s.store.Load()
	s.NoError(err)
	s.Equal("manual=1", stored)
}

func (s *ProviderTestSuite) TestSet_FailsWhenStoreCannotWrite() {
	blocker := filepath.Join(s.dir, "file")
	s.Require().NoError(os.WriteFile(blocker, nil, 0o600))
	store := NewFileStore(filepath.Join(blocker, "cookies.txt"))

	p := NewProvider(store, nil, time.Second, s.logger)
	s.False(p.Set("x=1"))
}

func TestKeyringStore(t *testing.T) {
	store := NewKeyringStoreFrom(keyring.NewArrayKeyring(nil))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, store.Save("k=v"))
	token, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "k=v", token)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "***", Mask("abc"))
	assert.Equal(t, "bnc-uuid...(20 chars)", Mask("bnc-uuid=0123456789a"))
}
