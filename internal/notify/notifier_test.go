package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"listing_watcher/internal/retry"
)

type recordingSender struct {
	mu     sync.Mutex
	texts  []string
	images [][]byte
	fail   int // fail the next n sends
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("boom")
	}
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSender) SendImage(_ context.Context, png []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("boom")
	}
	s.images = append(s.images, png)
	return nil
}

type NotifierTestSuite struct {
	suite.Suite
	sender *recordingSender
	logger *slog.Logger
}

func (s *NotifierTestSuite) SetupTest() {
	s.sender = &recordingSender{}
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierSuite(t *testing.T) {
	suite.Run(t, new(NotifierTestSuite))
}

func (s *NotifierTestSuite) TestNotify_Delivers() {
	n := New(s.sender, nil, Options{}, nil, s.logger)

	s.Require().NoError(n.Notify(context.Background(), "hello"))
	s.Equal([]string{"hello"}, s.sender.texts)
}

func (s *NotifierTestSuite) TestNotify_FailureIsReturnedWithoutRetry() {
	s.sender.fail = 1
	n := New(s.sender, nil, Options{}, nil, s.logger)

	err := n.Notify(context.Background(), "hello")
	s.Error(err)
	s.Empty(s.sender.texts)
}

func (s *NotifierTestSuite) TestNotify_RetriesWhenConfigured() {
	s.sender.fail = 2
	n := New(s.sender, nil, Options{Retry: retry.Policy{MaxAttempts: 3}}, nil, s.logger)

	s.Require().NoError(n.Notify(context.Background(), "hello"))
	s.Equal([]string{"hello"}, s.sender.texts)
}

func (s *NotifierTestSuite) TestNotifyError_RateLimited() {
	n := New(s.sender, NewErrorWindow(time.Hour, 5), Options{}, nil, s.logger)

	var suppressed int
	for range 8 {
		err := n.NotifyError(context.Background(), "fetch failed")
		if errors.Is(err, ErrSuppressed) {
			suppressed++
			continue
		}
		s.Require().NoError(err)
	}

	s.Len(s.sender.texts, 5)
	s.Equal(3, suppressed)
}

func (s *NotifierTestSuite) TestNotifyError_DoesNotConsumeRegularBudget() {
	n := New(s.sender, NewErrorWindow(time.Hour, 1), Options{}, nil, s.logger)

	s.Require().NoError(n.NotifyError(context.Background(), "e1"))
	s.ErrorIs(n.NotifyError(context.Background(), "e2"), ErrSuppressed)
	s.Require().NoError(n.Notify(context.Background(), "regular"))

	s.Equal([]string{"e1", "regular"}, s.sender.texts)
}

func (s *NotifierTestSuite) TestNotifyImage() {
	n := New(s.sender, nil, Options{}, nil, s.logger)

	s.Require().NoError(n.NotifyImage(context.Background(), []byte{0x89, 'P', 'N', 'G'}))
	s.Len(s.sender.images, 1)
}

func (s *NotifierTestSuite) TestNotify_DeadlineWhilePacedIsNotSent() {
	n := New(s.sender, nil, Options{MaxPerMinute: 1}, nil, s.logger)
	s.Require().NoError(n.Notify(context.Background(), "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := n.Notify(ctx, "second")
	s.ErrorIs(err, ErrNotSent)
	s.Equal([]string{"first"}, s.sender.texts)
}

func (s *NotifierTestSuite) TestNotifyError_NotSentReleasesWindowSlot() {
	window := NewErrorWindow(time.Hour, 1)
	n := New(s.sender, window, Options{MaxPerMinute: 1}, nil, s.logger)
	s.Require().NoError(n.Notify(context.Background(), "regular"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s.ErrorIs(n.NotifyError(ctx, "e1"), ErrNotSent)
	s.Equal(0, window.Count())
	s.Equal([]string{"regular"}, s.sender.texts)
}

func (s *NotifierTestSuite) TestNotifyError_FailedSendKeepsWindowSlot() {
	window := NewErrorWindow(time.Hour, 1)
	s.sender.fail = 1
	n := New(s.sender, window, Options{}, nil, s.logger)

	err := n.NotifyError(context.Background(), "e1")
	s.Error(err)
	s.NotErrorIs(err, ErrNotSent)
	s.Equal(1, window.Count())
}

func TestNotifier_Pacing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := &recordingSender{}

	// 600 per minute is one slot every 100ms; the first slot is free.
	n := New(sender, nil, Options{MaxPerMinute: 600}, nil, logger)

	start := time.Now()
	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, n.Notify(context.Background(), text))
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 180*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, sender.texts)
}

func TestNotifier_Unpaced(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := &recordingSender{}
	n := New(sender, nil, Options{}, nil, logger)

	start := time.Now()
	for range 50 {
		require.NoError(t, n.Notify(context.Background(), "x"))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, sender.texts, 50)
}
