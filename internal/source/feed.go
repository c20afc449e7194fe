package source

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	feedSourceName   = "feed"
	feedFetchTimeout = 30 * time.Second
	feedUserAgent    = "Mozilla/5.0 (compatible; factpane/1.0; +https://github.com/ppiankov/factpane)"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// FeedSource shows the titles of the newest items of one RSS/Atom feed.
type FeedSource struct {
	feedURL string
	count   int
	client  *http.Client
}

// NewFeed creates a feed source. count caps the number of titles (minimum 1).
func NewFeed(feedURL string, count int, timeout time.Duration) *FeedSource {
	if count < 1 {
		count = 1
	}
	if timeout <= 0 {
		timeout = feedFetchTimeout
	}
	return &FeedSource{
		feedURL: feedURL,
		count:   count,
		client: &http.Client{
			Timeout:   timeout,
			Transport: &feedTransport{base: http.DefaultTransport},
		},
	}
}

func (fs *FeedSource) Name() string {
	return feedSourceName
}

// feedTransport injects a User-Agent header into every request.
type feedTransport struct {
	base http.RoundTripper
}

func (t *feedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", feedUserAgent)
	return t.base.RoundTrip(req)
}

func (fs *FeedSource) Fetch(ctx context.Context) ([]string, error) {
	u, err := url.Parse(fs.feedURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fail(feedSourceName, KindInvalidRequest, fmt.Errorf("invalid feed url %q", fs.feedURL))
	}

	fp := gofeed.NewParser()
	fp.Client = fs.client
	feed, err := fp.ParseURLWithContext(fs.feedURL, ctx)
	if err != nil {
		return nil, fail(feedSourceName, classifyFeedError(err), fmt.Errorf("fetch %s: %w", fs.feedURL, err))
	}

	return titlesFromFeed(feed, fs.count), nil
}

// classifyFeedError separates parser failures from network and HTTP ones.
func classifyFeedError(err error) ErrorKind {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		return KindTransport
	}
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return KindDecode
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindTransport
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	return KindDecode
}

func titlesFromFeed(feed *gofeed.Feed, count int) []string {
	texts := make([]string, 0, count)
	for _, item := range feed.Items {
		if len(texts) == count {
			break
		}
		title := stripHTML(item.Title)
		if title == "" {
			title = stripHTML(item.Description)
		}
		if title == "" {
			continue
		}
		texts = append(texts, title)
	}
	return texts
}

func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
