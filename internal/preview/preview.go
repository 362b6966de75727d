// Package preview fetches an external page and extracts the title and
// description used for a post's link preview. Fetching is best effort:
// bounded in time and size, and any failure simply yields no preview.
package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"clipstream/pkg/domain"
)

const (
	defaultTimeout = 3 * time.Second
	maxBodyBytes   = 512 * 1024
)

// Fetcher resolves link previews. Implementations must be safe for
// concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (domain.LinkPreview, error)
}

// HTTPFetcher fetches pages over HTTP and parses their metadata.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher with a bounded request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads the page and extracts title/description metadata.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (domain.LinkPreview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.LinkPreview{}, fmt.Errorf("build preview request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	resp, err := f.client.Do(req)
	if err != nil {
		return domain.LinkPreview{}, fmt.Errorf("fetch preview: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.LinkPreview{}, fmt.Errorf("fetch preview: unexpected status %d", resp.StatusCode)
	}
	preview, err := Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.LinkPreview{}, err
	}
	preview.URL = url
	return preview, nil
}

// Parse extracts title and description metadata from an HTML document.
// OpenGraph tags win over the plain <title>/<meta name="description">.
func Parse(r io.Reader) (domain.LinkPreview, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return domain.LinkPreview{}, fmt.Errorf("parse html: %w", err)
	}
	var preview domain.LinkPreview
	var title, ogTitle, desc, ogDesc string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var name, property, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "name":
						name = attr.Val
					case "property":
						property = attr.Val
					case "content":
						content = attr.Val
					}
				}
				content = strings.TrimSpace(content)
				switch {
				case property == "og:title":
					ogTitle = content
				case property == "og:description":
					ogDesc = content
				case name == "description":
					desc = content
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	preview.Title = ogTitle
	if preview.Title == "" {
		preview.Title = title
	}
	preview.Description = ogDesc
	if preview.Description == "" {
		preview.Description = desc
	}
	return preview, nil
}
