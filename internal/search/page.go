package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	pageFetchTimeout = 15 * time.Second
	maxPageBytes     = 1 << 20
	maxPageTextRunes = 4000
)

// fetchPageText downloads a hit page and returns its visible text, stripped
// of markup and boilerplate containers.
func (s *Searcher) fetchPageText(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pageFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "murmur/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") && !strings.Contains(ct, "text/plain") {
		return "", fmt.Errorf("unsupported content type %q", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading page: %w", err)
	}

	text := extractText(string(body))
	if text == "" {
		return "", fmt.Errorf("no text content")
	}
	return text, nil
}

// skippedContainers are elements whose subtree carries no article text.
var skippedContainers = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"form":     true,
}

// extractText walks the HTML tree collecting visible text, skipping
// boilerplate containers and collapsing whitespace. Output is capped at
// maxPageTextRunes runes.
func extractText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedContainers[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if words := strings.Fields(n.Data); len(words) > 0 {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(strings.Join(words, " "))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := b.String()
	runes := []rune(text)
	if len(runes) > maxPageTextRunes {
		text = string(runes[:maxPageTextRunes])
	}
	return text
}
