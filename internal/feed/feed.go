// Package feed fetches and parses podcast RSS feeds.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// ErrMissingTitle is returned for feeds without a channel title.
var ErrMissingTitle = errors.New("feed is missing a title")

// Podcast is the channel-level data of a feed.
type Podcast struct {
	Title       string
	Description string
	FeedURL     string
	ImageURL    string
	Author      string
	WebsiteURL  string
	Episodes    []Episode
}

// Episode is a feed item with a playable enclosure.
type Episode struct {
	Title       string
	Description string
	AudioURL    string
	ImageURL    string
	PublishedAt *time.Time
	Duration    *int // seconds
	GUID        string
}

// Parser downloads feeds over HTTP and parses them with gofeed.
type Parser struct {
	client    *http.Client
	userAgent string
}

// NewParser returns a parser. A nil client gets a 30s timeout.
func NewParser(client *http.Client) *Parser {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Parser{client: client, userAgent: "podqueue/1.0"}
}

// Parse fetches feedURL and returns its podcast data.
func (p *Parser) Parse(ctx context.Context, feedURL string) (*Podcast, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse podcast feed: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to parse podcast feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to parse podcast feed: status code %d", resp.StatusCode)
	}

	return ParseReader(resp.Body, feedURL)
}

// ParseReader parses a feed document. Items without a title or an
// enclosure URL are skipped; a missing guid falls back to the enclosure URL.
func ParseReader(r io.Reader, feedURL string) (*Podcast, error) {
	f, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse podcast feed: %w", err)
	}
	if strings.TrimSpace(f.Title) == "" {
		return nil, fmt.Errorf("failed to parse podcast feed: %w", ErrMissingTitle)
	}

	podcast := &Podcast{
		Title:       f.Title,
		Description: f.Description,
		FeedURL:     feedURL,
		WebsiteURL:  f.Link,
	}

	if f.Image != nil && f.Image.URL != "" {
		podcast.ImageURL = f.Image.URL
	} else if f.ITunesExt != nil {
		podcast.ImageURL = f.ITunesExt.Image
	}

	if f.ITunesExt != nil && f.ITunesExt.Author != "" {
		podcast.Author = f.ITunesExt.Author
	} else if len(f.Authors) > 0 && f.Authors[0] != nil {
		podcast.Author = f.Authors[0].Name
	}

	for _, item := range f.Items {
		if ep, ok := episodeFromItem(item); ok {
			podcast.Episodes = append(podcast.Episodes, ep)
		}
	}

	return podcast, nil
}

func episodeFromItem(item *gofeed.Item) (Episode, bool) {
	if item == nil || item.Title == "" {
		return Episode{}, false
	}

	var audioURL string
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			audioURL = enc.URL
			break
		}
	}
	if audioURL == "" {
		return Episode{}, false
	}

	ep := Episode{
		Title:       item.Title,
		Description: item.Description,
		AudioURL:    audioURL,
		GUID:        item.GUID,
	}
	if ep.Description == "" {
		ep.Description = item.Content
	}
	if ep.GUID == "" {
		ep.GUID = audioURL
	}

	if item.ITunesExt != nil && item.ITunesExt.Image != "" {
		ep.ImageURL = item.ITunesExt.Image
	} else if item.Image != nil {
		ep.ImageURL = item.Image.URL
	}

	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		ep.PublishedAt = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		ep.PublishedAt = &t
	}

	if item.ITunesExt != nil {
		if d, ok := ParseDuration(item.ITunesExt.Duration); ok {
			ep.Duration = &d
		}
	}

	return ep, true
}

// ParseDuration converts "HH:MM:SS", "MM:SS" or a plain number of seconds to seconds.
func ParseDuration(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(s, 64); err == nil && !strings.Contains(s, ":") {
		if secs < 0 {
			return 0, false
		}
		return int(secs + 0.5), true
	}

	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, false
	}

	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}
