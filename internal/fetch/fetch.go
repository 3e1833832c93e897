// Package fetch retrieves reference pages linked from product requests and
// reduces them to plain text for the research stage.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTimeout is the per-request timeout.
const DefaultTimeout = 20 * time.Second

// DefaultUserAgent identifies the service to fetched sites.
const DefaultUserAgent = "Mozilla/5.0 (compatible; ProductFactory/1.0)"

// maxBodyBytes bounds how much of a page is read.
const maxBodyBytes = 1 << 20

// Error represents a failure fetching one URL.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Fetcher retrieves and extracts text from web pages.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New creates a Fetcher with default timeouts.
func New() *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
	}
}

// PageText retrieves a URL and returns the visible text of its body, with
// scripts, styles, and navigation removed.
func (f *Fetcher) PageText(ctx context.Context, urlStr string) (string, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", &Error{URL: urlStr, Message: "invalid URL", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", &Error{URL: urlStr, Message: "failed to build request", Cause: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &Error{URL: urlStr, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{URL: urlStr, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &Error{URL: urlStr, Message: "failed to parse HTML", Cause: err}
	}

	doc.Find("script, style, noscript, nav, header, footer").Remove()
	return normalizeWhitespace(doc.Find("body").Text()), nil
}

var (
	linkPattern       = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
	blankLinePattern  = regexp.MustCompile(`\n{3,}`)
)

// ExtractLinks pulls up to limit http(s) URLs out of free text, in order of
// appearance and without duplicates.
func ExtractLinks(text string, limit int) []string {
	var links []string
	seen := make(map[string]bool)
	for _, match := range linkPattern.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:")
		if seen[match] {
			continue
		}
		seen[match] = true
		links = append(links, match)
		if limit > 0 && len(links) >= limit {
			break
		}
	}
	return links
}

func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespacePattern.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLinePattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
