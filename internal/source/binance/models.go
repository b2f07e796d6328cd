package binance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// appData is the part of the __APP_DATA payload we navigate.
type appData struct {
	AppState struct {
		Loader struct {
			DataByRouteID map[string]json.RawMessage `json:"dataByRouteId"`
		} `json:"loader"`
	} `json:"appState"`
}

type catalogRoute struct {
	CatalogDetail struct {
		Articles []CatalogArticle `json:"articles"`
	} `json:"catalogDetail"`
	LatestArticles []LatestArticle `json:"latestArticles"`
}

// CatalogArticle is an entry of catalogDetail.articles.
type CatalogArticle struct {
	ID          RecordID `json:"id"`
	Code        string   `json:"code"`
	Title       string   `json:"title"`
	ReleaseDate int64    `json:"releaseDate"`
}

// LatestArticle is an entry of latestArticles. It carries its time as
// publishDate instead of releaseDate.
type LatestArticle struct {
	ID          RecordID `json:"id"`
	Code        string   `json:"code"`
	Title       string   `json:"title"`
	CatalogName string   `json:"catalogName"`
	PublishDate *int64   `json:"publishDate"`
	ReleaseDate *int64   `json:"releaseDate"`
}

// RecordID accepts both numeric and string ids.
type RecordID string

func (id *RecordID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = RecordID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = RecordID(n.String())
	return nil
}
