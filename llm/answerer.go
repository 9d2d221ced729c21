package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aosus/askaosus/internal/discourse"
	"github.com/aosus/askaosus/internal/responses"
)

// Searcher is the forum search dependency of the answer loop.
type Searcher interface {
	Search(ctx context.Context, query string) ([]discourse.Post, error)
}

// Answerer turns a user question into a reply by letting the model drive a
// bounded tool loop: it may search the forum a few times, then must either
// send a topic link or admit there is nothing relevant. Answer always
// produces something sendable; failures come back as localized apologies
// alongside the error.
type Answerer struct {
	client       Client
	searcher     Searcher
	catalog      *responses.Catalog
	model        string
	maxTokens    int
	temperature  float64
	maxSearches  int
	language     string
	systemPrompt string
	logger       *slog.Logger
}

type AnswererOptions struct {
	Client       Client
	Searcher     Searcher
	Catalog      *responses.Catalog
	Model        string
	MaxTokens    int
	Temperature  float64
	MaxSearches  int
	Language     string
	SystemPrompt string
	Logger       *slog.Logger
}

func NewAnswerer(opts AnswererOptions) (*Answerer, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if opts.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = responses.Default()
	}
	maxSearches := opts.MaxSearches
	if maxSearches <= 0 {
		maxSearches = 3
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "ar"
	}
	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{
		client:       opts.Client,
		searcher:     opts.Searcher,
		catalog:      catalog,
		model:        opts.Model,
		maxTokens:    maxTokens,
		temperature:  opts.Temperature,
		maxSearches:  maxSearches,
		language:     language,
		systemPrompt: systemPrompt,
		logger:       logger,
	}, nil
}

func answerTools() []Tool {
	return []Tool{
		{
			Type: "function",
			Function: ToolFunction{
				Name:        "search_discourse",
				Description: "Search the Discourse forum for topics related to the user's query, search using keywords in the query language or in english.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "The search query to execute.",
						},
					},
					"required": []string{"query"},
				},
			},
		},
		{
			Type: "function",
			Function: ToolFunction{
				Name:        "send_link",
				Description: "Send a link to the user when you find a relevant topic",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"url": map[string]any{
							"type":        "string",
							"description": "The URL of the relevant topic",
						},
						"message": map[string]any{
							"type":        "string",
							"description": "A brief message indicating this is the best match found",
						},
					},
					"required": []string{"url", "message"},
				},
			},
		},
		{
			Type: "function",
			Function: ToolFunction{
				Name:        "no_result_message",
				Description: "Inform the user when no relevant results could be found",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		},
	}
}

// Answer runs the tool loop for one question. The returned text is always
// sendable; a non-nil error reports what went wrong while the text carries
// the localized apology for it.
func (a *Answerer) Answer(ctx context.Context, question string) (string, error) {
	messages := []Message{
		{Role: "system", Content: a.systemPrompt},
		{Role: "user", Content: question},
	}
	tools := answerTools()

	// One extra attempt beyond the search budget so the model can still
	// deliver its final send_link or text after the last search.
	searches := 0
	for attempt := 1; attempt <= a.maxSearches+1; attempt++ {
		a.logger.Debug("answer_attempt", "attempt", attempt, "searches", searches)
		result, err := a.client.Chat(ctx, Request{
			Model:       a.model,
			Messages:    messages,
			Tools:       tools,
			MaxTokens:   a.maxTokens,
			Temperature: a.temperature,
		})
		if err != nil {
			return a.catalog.Error("processing_error", a.language), fmt.Errorf("chat: %w", err)
		}
		a.logger.Info("answer_llm_usage",
			"prompt_tokens", result.Usage.InputTokens,
			"completion_tokens", result.Usage.OutputTokens,
			"total_tokens", result.Usage.TotalTokens,
		)

		if len(result.ToolCalls) == 0 {
			if text := strings.TrimSpace(result.Text); text != "" {
				return text, nil
			}
			continue
		}

		for _, call := range result.ToolCalls {
			a.logger.Info("answer_tool_call", "function", call.Function.Name)
			switch call.Function.Name {
			case "search_discourse":
				if searches >= a.maxSearches {
					return a.catalog.Error("no_results_found", a.language), nil
				}
				messages = a.runSearch(ctx, messages, call)
				searches++
			case "send_link":
				var args struct {
					URL     string `json:"url"`
					Message string `json:"message"`
				}
				if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
					a.logger.Warn("answer_bad_tool_args", "function", call.Function.Name, "error", err.Error())
					continue
				}
				return args.Message + "\n\n" + args.URL, nil
			case "no_result_message":
				return a.catalog.Error("no_results_found", a.language), nil
			default:
				a.logger.Warn("answer_unknown_tool", "function", call.Function.Name)
			}
		}
	}

	return a.catalog.Error("fallback_error", a.language), nil
}

// runSearch executes one search_discourse call and appends the exchange to
// the conversation.
func (a *Answerer) runSearch(ctx context.Context, messages []Message, call ToolCall) []Message {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		a.logger.Warn("answer_bad_tool_args", "function", call.Function.Name, "error", err.Error())
	}

	var resultText string
	posts, err := a.searcher.Search(ctx, args.Query)
	if err != nil {
		a.logger.Warn("answer_search_failed", "query", args.Query, "error", err.Error())
		resultText = a.catalog.Discourse("no_results", a.language)
	} else {
		resultText = formatSearchResults(posts, a.catalog, a.language)
	}

	messages = append(messages, Message{
		Role:      "assistant",
		ToolCalls: []ToolCall{call},
	})
	return append(messages, Message{
		Role:       "tool",
		ToolCallID: call.ID,
		Content:    resultText,
	})
}

func formatSearchResults(posts []discourse.Post, catalog *responses.Catalog, language string) string {
	if len(posts) == 0 {
		return catalog.Discourse("no_results", language)
	}
	var b strings.Builder
	for i, p := range posts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Result %d:\nTitle: %s\nURL: %s\nContent: %s\n", i+1, p.Title, p.URL, p.Excerpt)
	}
	return b.String()
}
