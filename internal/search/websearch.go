package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/murmurhq/murmur/internal/ollama"
)

const (
	defaultBaseURL = "https://www.googleapis.com/customsearch/v1"
	maxResults     = 10
	searchTimeout  = 20 * time.Second

	// UnavailableSummary is the canonical result summary when no search
	// provider is configured.
	UnavailableSummary = "Search unavailable: API not configured"
)

// Summarizer is the slice of the ollama client the searcher needs for
// per-page refinement and the final synthesis summary.
type Summarizer interface {
	Generate(ctx context.Context, model, prompt string, jsonFormat bool, opts *ollama.Options) (string, error)
}

// Config holds the Google Custom Search credentials.
type Config struct {
	APIKey   string
	EngineID string
	BaseURL  string // empty means the public API endpoint
}

// PageResult is one search hit, optionally enriched with fetched page content.
type PageResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content"`
}

// Result is the outcome of one query: the raw hits plus a synthesized answer.
type Result struct {
	Query   string
	Results []PageResult
	Summary string
}

// MarshalResults renders the hit list as the JSON stored alongside the result.
func (r Result) MarshalResults() string {
	if len(r.Results) == 0 {
		return "[]"
	}
	b, err := json.Marshal(r.Results)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Searcher runs web searches and condenses the findings with a local model.
type Searcher struct {
	cfg    Config
	client *http.Client
	gen    Summarizer
	model  string
}

func NewSearcher(cfg Config, gen Summarizer, model string) *Searcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Searcher{
		cfg:    cfg,
		client: &http.Client{Timeout: searchTimeout},
		gen:    gen,
		model:  model,
	}
}

// Configured reports whether a search provider is usable.
func (s *Searcher) Configured() bool {
	return s.cfg.APIKey != "" && s.cfg.EngineID != ""
}

// Run executes one query end to end: search, fetch the hit pages, refine
// each page against the query, then synthesize a single summary. Page and
// model failures degrade individual results, never the whole call.
func (s *Searcher) Run(ctx context.Context, query string) Result {
	if !s.Configured() {
		return Result{Query: query, Summary: UnavailableSummary}
	}

	hits, err := s.search(ctx, query)
	if err != nil {
		slog.Warn("web search failed", "query", query, "error", err)
		return Result{Query: query, Summary: fmt.Sprintf("Search failed: %v", err)}
	}
	if len(hits) == 0 {
		return Result{Query: query, Summary: "No results found"}
	}

	s.enrich(ctx, query, hits)

	return Result{
		Query:   query,
		Results: hits,
		Summary: s.synthesize(ctx, query, hits),
	}
}

// RunAll executes up to two queries concurrently.
func (s *Searcher) RunAll(ctx context.Context, queries []string) []Result {
	results := make([]Result, len(queries))
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			results[i] = s.Run(ctx, q)
			return nil
		})
	}
	g.Wait()
	return results
}

type cseResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (s *Searcher) search(ctx context.Context, query string) ([]PageResult, error) {
	params := url.Values{}
	params.Set("key", s.cfg.APIKey)
	params.Set("cx", s.cfg.EngineID)
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling search API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed cseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	hits := make([]PageResult, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if len(hits) == maxResults {
			break
		}
		hits = append(hits, PageResult{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
	}
	return hits, nil
}

// enrich fetches each hit page and refines its text against the query.
// Failures leave the hit with just its snippet.
func (s *Searcher) enrich(ctx context.Context, query string, hits []PageResult) {
	var g errgroup.Group
	g.SetLimit(4)
	for i := range hits {
		g.Go(func() error {
			text, err := s.fetchPageText(ctx, hits[i].URL)
			if err != nil {
				slog.Debug("page fetch failed", "url", hits[i].URL, "error", err)
				return nil
			}
			hits[i].Content = s.refine(ctx, query, hits[i].Title, text)
			return nil
		})
	}
	g.Wait()
}

func (s *Searcher) refine(ctx context.Context, query, title, text string) string {
	prompt := fmt.Sprintf(`Extract the information from this web page that answers the query.
Query: %s
Page title: %s
Page text:
%s

Respond with 2-3 sentences of relevant facts, or "irrelevant" if the page does not address the query.`, query, title, text)

	out, err := s.gen.Generate(ctx, s.model, prompt, false, &ollama.Options{Temperature: 0.3})
	if err != nil {
		slog.Debug("page refinement failed", "error", err)
		return ""
	}
	out = strings.TrimSpace(out)
	if strings.EqualFold(out, "irrelevant") {
		return ""
	}
	return out
}

func (s *Searcher) synthesize(ctx context.Context, query string, hits []PageResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Answer the query using only the sources below.\nQuery: %s\n\n", query)
	for i, h := range hits {
		content := h.Content
		if content == "" {
			content = h.Snippet
		}
		if content == "" {
			continue
		}
		fmt.Fprintf(&b, "Source %d (%s): %s\n", i+1, h.Title, content)
	}
	b.WriteString("\nRespond with a concise answer in a short paragraph.")

	out, err := s.gen.Generate(ctx, s.model, b.String(), false, &ollama.Options{Temperature: 0.3})
	if err != nil {
		slog.Warn("search synthesis failed, falling back to snippets", "query", query, "error", err)
		return fallbackSummary(hits)
	}
	return strings.TrimSpace(out)
}

func fallbackSummary(hits []PageResult) string {
	parts := make([]string, 0, 3)
	for _, h := range hits {
		if h.Snippet == "" {
			continue
		}
		parts = append(parts, h.Snippet)
		if len(parts) == 3 {
			break
		}
	}
	if len(parts) == 0 {
		return "No summary available"
	}
	return strings.Join(parts, " ")
}
