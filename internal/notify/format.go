package notify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"listing_watcher/internal/domain"
)

const (
	DefaultLinkBase = "https://www.binance.com/en/support/announcement/"
	timeLayout      = "2006-01-02 15:04:05"
	initialPrefix   = "[initial] "
)

var (
	slugStrip      = regexp.MustCompile(`[()!?.,:“”#&/]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
)

// Classifier picks the icon and label shown in a notification header.
type Classifier interface {
	Classify(title string) (icon, label string)
}

// Formatter renders announcements as notification text.
type Formatter struct {
	classifier Classifier
	linkBase   string
	loc        *time.Location
}

func NewFormatter(classifier Classifier, linkBase string, loc *time.Location) *Formatter {
	if linkBase == "" {
		linkBase = DefaultLinkBase
	}
	if !strings.HasSuffix(linkBase, "/") {
		linkBase += "/"
	}
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{
		classifier: classifier,
		linkBase:   linkBase,
		loc:        loc,
	}
}

// Format renders a. initial marks notifications sent on the first cycle.
func (f *Formatter) Format(a domain.Announcement, initial bool) string {
	icon, label := f.classifier.Classify(a.Title)

	header := fmt.Sprintf("%s %s", icon, label)
	if initial {
		header = initialPrefix + header
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n📌: ")
	b.WriteString(a.Title)
	b.WriteString("\n🗂: ")
	b.WriteString(string(a.Category))
	b.WriteString("\n🕒: ")
	b.WriteString(a.ReleasedAt(f.loc).Format(timeLayout))
	b.WriteString("\n🔗: ")
	b.WriteString(f.Link(a))
	return b.String()
}

// Link builds the public announcement URL: base + slug(title) + "-" + code.
func (f *Formatter) Link(a domain.Announcement) string {
	return f.linkBase + Slug(a.Title) + "-" + a.LinkCode()
}

// Slug lower-cases title, drops punctuation, turns apostrophes into dashes
// and collapses whitespace runs into single dashes.
func Slug(title string) string {
	s := strings.ToLower(title)
	s = slugStrip.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "'", "-")
	return slugWhitespace.ReplaceAllString(s, "-")
}
