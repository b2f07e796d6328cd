package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_watcher/internal/domain"
)

type staticLinker string

func (l staticLinker) Link(a domain.Announcement) string {
	return string(l) + a.LinkCode()
}

func TestMessage(t *testing.T) {
	r := &RabbitMQ{source: "binance-listing", linker: staticLinker("https://example.com/")}
	now := time.Date(2024, 6, 4, 9, 0, 0, 0, time.FixedZone("UTC+8", 8*3600))
	a := &domain.Announcement{
		ID:          "210001",
		Code:        "a1b2c3",
		Title:       "Binance Will List Example (EXM)",
		ReleaseDate: 1717488000000,
		Category:    domain.CategoryListing,
	}

	msg := r.message(a, "cycle-1", now)

	assert.Equal(t, "new", msg.Action)
	assert.Equal(t, "binance-listing", msg.SourceID)
	assert.Equal(t, "cycle-1", msg.CycleID)
	assert.Equal(t, "https://example.com/a1b2c3", msg.Link)
	assert.Equal(t, time.Date(2024, 6, 4, 8, 0, 0, 0, time.UTC), msg.ReleasedAt)
	assert.Equal(t, time.UTC, msg.Timestamp.Location())

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	announcement := decoded["announcement"].(map[string]any)
	assert.Equal(t, "210001", announcement["id"])
	assert.Equal(t, "Listing", announcement["category"])
}

func TestMessage_NoLinker(t *testing.T) {
	r := &RabbitMQ{}
	msg := r.message(&domain.Announcement{ID: "1"}, "c", time.Now())
	assert.Empty(t, msg.Link)
}
