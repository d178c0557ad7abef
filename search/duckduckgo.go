// Package search provides the web lookup tools used by the research
// agent: a DuckDuckGo Instant Answer client and a page fetcher.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.duckduckgo.com/"

// Result is one hit from a search.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// DuckDuckGo queries the free Instant Answer API. The zero value is
// usable; BaseURL exists so tests can point it at a local server.
type DuckDuckGo struct {
	HTTPClient *http.Client
	BaseURL    string
	MaxResults int
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	Answer        string     `json:"Answer"`
	Definition    string     `json:"Definition"`
	DefinitionURL string     `json:"DefinitionURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

// Search runs one query and returns the flattened results.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Result, error) {
	base := d.BaseURL
	if base == "" {
		base = defaultAPIBase
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	req.Header.Set("User-Agent", "stepflow-search/1.0")

	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("search request: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search response: %w", err)
	}

	var payload ddgResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("search response: %w", err)
	}

	return d.flatten(payload), nil
}

func (d *DuckDuckGo) flatten(payload ddgResponse) []Result {
	max := d.MaxResults
	if max <= 0 {
		max = 5
	}

	var results []Result
	if payload.Answer != "" {
		results = append(results, Result{Title: payload.Heading, Snippet: payload.Answer})
	}
	if payload.AbstractText != "" {
		results = append(results, Result{
			Title:   payload.Heading,
			URL:     payload.AbstractURL,
			Snippet: payload.AbstractText,
		})
	}
	if payload.Definition != "" {
		results = append(results, Result{
			Title:   payload.Heading,
			URL:     payload.DefinitionURL,
			Snippet: payload.Definition,
		})
	}

	var walk func(topics []ddgTopic)
	walk = func(topics []ddgTopic) {
		for _, topic := range topics {
			if len(results) >= max {
				return
			}
			if len(topic.Topics) > 0 {
				walk(topic.Topics)
				continue
			}
			if topic.Text == "" {
				continue
			}
			results = append(results, Result{
				Title:   topicTitle(topic.Text),
				URL:     topic.FirstURL,
				Snippet: topic.Text,
			})
		}
	}
	walk(payload.RelatedTopics)

	if len(results) > max {
		results = results[:max]
	}
	return results
}

// topicTitle extracts the leading phrase of a related-topic blurb.
func topicTitle(text string) string {
	if idx := strings.Index(text, " - "); idx > 0 {
		return text[:idx]
	}
	return text
}

// Format renders results as a compact block for prompts and notes.
func Format(results []Result) string {
	var sb strings.Builder
	for i, result := range results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, result.Title)
		if result.URL != "" {
			fmt.Fprintf(&sb, "   url: %s\n", result.URL)
		}
		if result.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", result.Snippet)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
