package domain

import (
	"sort"
	"time"
)

// Category groups announcements for display. It plays no part in identity.
type Category string

const (
	CategoryListing Category = "Listing"
	CategoryNews    Category = "News"
)

// Announcement is a single record extracted from the feed.
type Announcement struct {
	ID          string   `json:"id"` // dedup key, stable across fetches
	Code        string   `json:"code"`
	Title       string   `json:"title"`
	ReleaseDate int64    `json:"release_date"` // epoch milliseconds
	Category    Category `json:"category"`
}

// ReleasedAt converts ReleaseDate to a time in loc.
func (a Announcement) ReleasedAt(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(a.ReleaseDate).In(loc)
}

// LinkCode is the trailing identifier of the announcement's deep link.
func (a Announcement) LinkCode() string {
	if a.Code != "" {
		return a.Code
	}
	return a.ID
}

// Feed is the result of one extraction: the catalog list and the
// "latest articles" list, in page order.
type Feed struct {
	Listings []Announcement
	Latest   []Announcement
}

// Combined returns listings followed by latest articles. When dedup is set,
// later records whose ID was already seen are dropped.
func (f Feed) Combined(dedup bool) []Announcement {
	out := make([]Announcement, 0, len(f.Listings)+len(f.Latest))
	seen := make(map[string]struct{}, cap(out))
	for _, list := range [][]Announcement{f.Listings, f.Latest} {
		for _, a := range list {
			if dedup {
				if _, ok := seen[a.ID]; ok {
					continue
				}
				seen[a.ID] = struct{}{}
			}
			out = append(out, a)
		}
	}
	return out
}

// IdentitySet is the set of announcement IDs observed in a cycle.
type IdentitySet map[string]struct{}

func NewIdentitySet(ids ...string) IdentitySet {
	s := make(IdentitySet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// IdentitiesOf collects the IDs of announcements.
func IdentitiesOf(items []Announcement) IdentitySet {
	s := make(IdentitySet, len(items))
	for _, a := range items {
		s[a.ID] = struct{}{}
	}
	return s
}

func (s IdentitySet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IdentitySet) Len() int {
	return len(s)
}

// IDs returns the members in sorted order.
func (s IdentitySet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
