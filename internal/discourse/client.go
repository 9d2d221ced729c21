package discourse

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
)

const userAgent = "Askaosus Matrix Bot/1.0"

// Post is one topic-level search result.
type Post struct {
	ID         int
	Title      string
	Excerpt    string
	URL        string
	TopicID    int
	CategoryID int
	Tags       []string
	CreatedAt  string
	LikeCount  int
	ReplyCount int
}

// Searcher queries a Discourse forum's /search.json endpoint. One logical
// search fans out into several query strategies and merges the results,
// deduplicated by topic id, preserving the order Discourse returned them in.
type Searcher struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	apiUser    string
	maxResults int
	logger     *slog.Logger
}

type Options struct {
	BaseURL     string
	APIKey      string
	APIUsername string
	MaxResults  int
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

func New(opts Options) (*Searcher, error) {
	base := strings.TrimSpace(strings.TrimRight(opts.BaseURL, "/"))
	if base == "" {
		return nil, fmt.Errorf("base_url is required")
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		http:       httpClient,
		baseURL:    base,
		apiKey:     strings.TrimSpace(opts.APIKey),
		apiUser:    strings.TrimSpace(opts.APIUsername),
		maxResults: maxResults,
		logger:     logger,
	}, nil
}

// Search runs all query strategies for the question and returns at most
// MaxResults unique topics. Individual strategy failures are logged and
// skipped; Search fails only when it cannot build a request at all.
func (s *Searcher) Search(ctx context.Context, query string) ([]Post, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	var merged []Post
	seen := make(map[int]struct{})

	for _, q := range searchQueries(query) {
		s.logger.Debug("discourse_search_strategy", "strategy", q.strategy, "query", q.text)
		results, err := s.performSearch(ctx, q.text)
		if err != nil {
			s.logger.Warn("discourse_search_failed", "strategy", q.strategy, "query", q.text, "error", err.Error())
			continue
		}
		for _, p := range results {
			if _, ok := seen[p.TopicID]; ok {
				continue
			}
			seen[p.TopicID] = struct{}{}
			merged = append(merged, p)
		}
	}

	if len(merged) > s.maxResults {
		merged = merged[:s.maxResults]
	}
	s.logger.Info("discourse_search_done", "query", query, "results", len(merged))
	return merged, nil
}

type searchQuery struct {
	strategy string
	text     string
}

// searchQueries expands one question into the strategy list: the original
// text, a stop-word-filtered keyword form, English equivalents of known
// Arabic software names, and the top individual terms.
func searchQueries(query string) []searchQuery {
	queries := []searchQuery{{strategy: "original", text: query}}

	if keywords := extractKeywords(query); len(keywords) > 0 {
		queries = append(queries, searchQuery{strategy: "keywords", text: strings.Join(keywords, " ")})
	}
	if english := englishEquivalents(query); len(english) > 0 {
		queries = append(queries, searchQuery{strategy: "english_terms", text: strings.Join(english, " ")})
	}
	terms := importantTerms(query)
	if len(terms) > 2 {
		terms = terms[:2]
	}
	for _, term := range terms {
		queries = append(queries, searchQuery{strategy: "single_term", text: term})
	}
	return queries
}

func (s *Searcher) performSearch(ctx context.Context, query string) ([]Post, error) {
	limit := s.maxResults * 2
	if limit > 10 {
		limit = 10
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("order", "relevance")
	q.Set("limit", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if s.apiKey != "" && s.apiUser != "" {
		req.Header.Set("Api-Key", s.apiKey)
		req.Header.Set("Api-Username", s.apiUser)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discourse search http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var payload struct {
		Topics []struct {
			ID         int      `json:"id"`
			Title      string   `json:"title"`
			Excerpt    string   `json:"excerpt"`
			CategoryID int      `json:"category_id"`
			Tags       []string `json:"tags"`
			CreatedAt  string   `json:"created_at"`
			LikeCount  int      `json:"like_count"`
			PostsCount int      `json:"posts_count"`
		} `json:"topics"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	// Topic-level results only; individual reply posts are ignored so answer
	// generation always links whole discussions.
	posts := make([]Post, 0, len(payload.Topics))
	for _, t := range payload.Topics {
		if t.ID == 0 {
			continue
		}
		excerpt := t.Excerpt
		if excerpt == "" {
			excerpt = "موضوع في مجتمع أسس"
		}
		title := t.Title
		if title == "" {
			title = "موضوع بدون عنوان"
		}
		posts = append(posts, Post{
			ID:         t.ID,
			Title:      title,
			Excerpt:    excerpt,
			URL:        fmt.Sprintf("%s/t/%d", s.baseURL, t.ID),
			TopicID:    t.ID,
			CategoryID: t.CategoryID,
			Tags:       t.Tags,
			CreatedAt:  t.CreatedAt,
			LikeCount:  t.LikeCount,
			ReplyCount: t.PostsCount,
		})
	}
	return posts, nil
}
