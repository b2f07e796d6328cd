package binance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"listing_watcher/internal/domain"
	"listing_watcher/internal/fsutil"
)

const (
	payloadSelector = `script#__APP_DATA[type="application/json"]`
	catalogKey      = "catalogDetail"
)

var (
	ErrNoPayload        = errors.New("no __APP_DATA payload in document")
	ErrMalformedPayload = errors.New("malformed __APP_DATA payload")
	ErrNoCatalog        = errors.New("no route with " + catalogKey)
)

// Extractor pulls announcement lists out of the feed page.
type Extractor struct {
	parsedPath string
	logger     *slog.Logger
}

// NewExtractor creates an extractor. When parsedPath is set, every parsed
// payload is written there pretty-printed for offline inspection.
func NewExtractor(parsedPath string, logger *slog.Logger) *Extractor {
	return &Extractor{
		parsedPath: parsedPath,
		logger:     logger.With("component", "extractor"),
	}
}

// Extract returns the catalog articles and the latest articles found in doc.
// Latest articles have their publishDate normalized into ReleaseDate.
func (e *Extractor) Extract(doc []byte) (*domain.Feed, error) {
	raw, err := e.payload(doc)
	if err != nil {
		return nil, err
	}

	e.saveParsed(raw)

	var data appData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	routeRaw, err := e.catalogRoute(data.AppState.Loader.DataByRouteID)
	if err != nil {
		return nil, err
	}

	var route catalogRoute
	if err := json.Unmarshal(routeRaw, &route); err != nil {
		return nil, fmt.Errorf("%w: catalog route: %v", ErrMalformedPayload, err)
	}

	feed := &domain.Feed{
		Listings: make([]domain.Announcement, 0, len(route.CatalogDetail.Articles)),
		Latest:   make([]domain.Announcement, 0, len(route.LatestArticles)),
	}
	for _, a := range route.CatalogDetail.Articles {
		feed.Listings = append(feed.Listings, domain.Announcement{
			ID:          string(a.ID),
			Code:        a.Code,
			Title:       a.Title,
			ReleaseDate: a.ReleaseDate,
			Category:    domain.CategoryListing,
		})
	}
	for _, a := range route.LatestArticles {
		feed.Latest = append(feed.Latest, domain.Announcement{
			ID:          string(a.ID),
			Code:        a.Code,
			Title:       a.Title,
			ReleaseDate: a.releaseDate(),
			Category:    domain.CategoryNews,
		})
	}

	e.logger.Debug("extracted announcements",
		"listings", len(feed.Listings),
		"latest", len(feed.Latest),
	)

	return feed, nil
}

func (e *Extractor) payload(doc []byte) ([]byte, error) {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrNoPayload, err)
	}

	sel := gq.Find(payloadSelector).First()
	if sel.Length() == 0 {
		return nil, ErrNoPayload
	}

	raw := []byte(strings.TrimSpace(sel.Text()))
	if len(raw) == 0 {
		return nil, ErrNoPayload
	}
	if !json.Valid(raw) {
		return nil, ErrMalformedPayload
	}
	return raw, nil
}

// catalogRoute picks the route holding the catalog. Route ids are visited in
// sorted order so the choice does not depend on map iteration.
func (e *Extractor) catalogRoute(routes map[string]json.RawMessage) (json.RawMessage, error) {
	ids := make([]string, 0, len(routes))
	for id := range routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matches []string
	for _, id := range ids {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(routes[id], &probe); err != nil {
			continue
		}
		if _, ok := probe[catalogKey]; ok {
			matches = append(matches, id)
		}
	}

	if len(matches) == 0 {
		return nil, ErrNoCatalog
	}
	if len(matches) > 1 {
		e.logger.Warn("several routes carry a catalog, using the first", "routes", matches)
	}
	return routes[matches[0]], nil
}

func (e *Extractor) saveParsed(raw []byte) {
	if e.parsedPath == "" {
		return
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		e.logger.Warn("failed to indent payload", "error", err)
		return
	}
	buf.WriteByte('\n')

	if err := fsutil.WriteFileAtomic(e.parsedPath, buf.Bytes(), 0o644); err != nil {
		e.logger.Warn("failed to save parsed payload", "path", e.parsedPath, "error", err)
		return
	}
	e.logger.Debug("parsed payload saved", "path", e.parsedPath)
}

func (a LatestArticle) releaseDate() int64 {
	switch {
	case a.PublishDate != nil:
		return *a.PublishDate
	case a.ReleaseDate != nil:
		return *a.ReleaseDate
	default:
		return 0
	}
}
