// Package coach implements the LLM-backed review operations: analyze a
// query, rewrite it, and explain the rewrite.
package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"sqlcoach/internal/llm"
	"sqlcoach/internal/model"
	"sqlcoach/internal/render"
)

// Defaults applied when the caller leaves a field empty.
const (
	DefaultDialect = "PostgreSQL"
	DefaultSchema  = "No schema provided"
)

// Validation errors. Their text is shown to the user as-is.
var (
	ErrEmptyQuery      = errors.New("Query cannot be empty")
	ErrMissingQueries  = errors.New("Both queries are required")
	ErrAnalysisMissing = errors.New("Please analyze the query first")
)

// ParseError reports model output that is not the JSON we asked for.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Failed to parse %s response: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Coach runs the review operations against a completer.
type Coach struct {
	llm    llm.Completer
	logger *slog.Logger
}

// New returns a Coach. A nil logger uses slog.Default().
func New(c llm.Completer, logger *slog.Logger) *Coach {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coach{llm: c, logger: logger}
}

// Analyze reviews query for syntax, logical and performance issues.
func (c *Coach) Analyze(ctx context.Context, query, dialect, schema string) (model.Analysis, error) {
	if strings.TrimSpace(query) == "" {
		return model.Analysis{}, ErrEmptyQuery
	}
	if strings.TrimSpace(dialect) == "" {
		dialect = DefaultDialect
	}
	if strings.TrimSpace(schema) == "" {
		schema = DefaultSchema
	}

	out, err := c.llm.Complete(ctx, llm.Request{
		System: analyzeSystemPrompt,
		User:   analyzePrompt(query, dialect, schema),
		JSON:   true,
	})
	if err != nil {
		return model.Analysis{}, err
	}

	var a model.Analysis
	if err := json.Unmarshal([]byte(CleanJSON(out)), &a); err != nil {
		c.logger.Debug("unparseable analysis", "err", err, "response_chars", len(out))
		return model.Analysis{}, &ParseError{What: "analysis", Err: err}
	}
	return a, nil
}

// rawOptimization accepts both the multi-variant shape and the flat
// single-variant shape some models return.
type rawOptimization struct {
	Original        string          `json:"original"`
	Variants        []model.Variant `json:"optimized_variants"`
	OptimizedQuery  string          `json:"optimized_query"`
	ChangesMade     []string        `json:"changes_made"`
	PerformanceGain string          `json:"performance_gain"`
}

// Optimize asks for rewritten variants of an analyzed query.
func (c *Coach) Optimize(ctx context.Context, query string, analysis model.Analysis) (model.Optimization, error) {
	if strings.TrimSpace(query) == "" {
		return model.Optimization{}, ErrEmptyQuery
	}

	out, err := c.llm.Complete(ctx, llm.Request{
		System: optimizeSystemPrompt,
		User:   optimizePrompt(query, analysis),
		JSON:   true,
	})
	if err != nil {
		return model.Optimization{}, err
	}

	var raw rawOptimization
	if err := json.Unmarshal([]byte(CleanJSON(out)), &raw); err != nil {
		c.logger.Debug("unparseable optimization", "err", err, "response_chars", len(out))
		return model.Optimization{}, &ParseError{What: "optimization", Err: err}
	}
	return normalize(raw, query), nil
}

func normalize(raw rawOptimization, query string) model.Optimization {
	opt := model.Optimization{Original: raw.Original, Variants: raw.Variants}
	if opt.Original == "" {
		opt.Original = query
	}
	if len(opt.Variants) == 0 && strings.TrimSpace(raw.OptimizedQuery) != "" {
		opt.Variants = []model.Variant{{
			ID:              1,
			OptimizedQuery:  raw.OptimizedQuery,
			ChangesMade:     raw.ChangesMade,
			PerformanceGain: raw.PerformanceGain,
		}}
	}

	kept := opt.Variants[:0]
	for _, v := range opt.Variants {
		if strings.TrimSpace(v.OptimizedQuery) == "" {
			continue
		}
		kept = append(kept, v)
	}
	for i := range kept {
		if kept[i].ID == 0 {
			kept[i].ID = i + 1
		}
	}
	opt.Variants = kept
	return opt
}

// Explanation is the model's markdown and its rendered HTML.
type Explanation struct {
	Markdown string
	HTML     string
}

// Explain describes how optimized differs from original.
func (c *Coach) Explain(ctx context.Context, original, optimized, dialect string) (Explanation, error) {
	if strings.TrimSpace(original) == "" || strings.TrimSpace(optimized) == "" {
		return Explanation{}, ErrMissingQueries
	}
	if strings.TrimSpace(dialect) == "" {
		dialect = DefaultDialect
	}

	out, err := c.llm.Complete(ctx, llm.Request{
		System: explainSystemPrompt,
		User:   explainPrompt(original, optimized, dialect),
	})
	if err != nil {
		return Explanation{}, err
	}
	return Explanation{Markdown: out, HTML: render.Markdown(out)}, nil
}

// CleanJSON strips the markdown fence models like to wrap JSON in.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
