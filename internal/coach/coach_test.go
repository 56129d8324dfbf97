package coach

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sqlcoach/internal/llm"
	"sqlcoach/internal/model"
)

type fakeLLM struct {
	reply string
	err   error
	last  llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.last = req
	return f.reply, f.err
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  \n{\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, CleanJSON(tt.in))
	}
}

func TestAnalyze(t *testing.T) {
	f := &fakeLLM{reply: "```json\n" + `{
  "syntax_issues": [],
  "logical_issues": ["missing join condition"],
  "performance_issues": ["SELECT *"],
  "needs_optimization": true,
  "overall_assessment": "Works but slow.",
  "hints_for_improvement": ["select only needed columns"]
}` + "\n```"}
	c := New(f, nil)

	a, err := c.Analyze(context.Background(), "SELECT * FROM a, b", "", "")
	require.NoError(t, err)
	require.Equal(t, []string{"missing join condition"}, a.LogicalIssues)
	require.True(t, a.NeedsOptimization)
	require.Equal(t, "Works but slow.", a.OverallAssessment)

	require.True(t, f.last.JSON)
	require.Contains(t, f.last.User, `Dialect: "PostgreSQL"`)
	require.Contains(t, f.last.User, "No schema provided")
	require.Contains(t, f.last.User, "SELECT * FROM a, b")
}

func TestAnalyzeEmptyQuery(t *testing.T) {
	f := &fakeLLM{}
	_, err := New(f, nil).Analyze(context.Background(), "  \n", "MySQL", "")
	require.ErrorIs(t, err, ErrEmptyQuery)
	require.Equal(t, llm.Request{}, f.last)
}

func TestAnalyzeUnparseable(t *testing.T) {
	f := &fakeLLM{reply: "I think your query is fine."}
	_, err := New(f, nil).Analyze(context.Background(), "SELECT 1", "SQLite", "")

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	require.True(t, strings.HasPrefix(err.Error(), "Failed to parse analysis response: "))
}

func TestAnalyzeUpstreamError(t *testing.T) {
	upstream := &llm.StatusError{Code: 503, Body: "down"}
	_, err := New(&fakeLLM{err: upstream}, nil).Analyze(context.Background(), "SELECT 1", "", "")
	require.ErrorIs(t, err, upstream)
}

func TestOptimizeVariants(t *testing.T) {
	f := &fakeLLM{reply: `{
  "original": "SELECT * FROM t...",
  "optimized_variants": [
    {"id": 1, "optimization_level": "conservative", "optimized_query": "SELECT id FROM t", "changes_made": ["columns"]},
    {"id": 2, "optimization_level": "balanced", "optimized_query": "", "changes_made": []},
    {"optimization_level": "aggressive", "optimized_query": "SELECT id FROM t LIMIT 10", "changes_made": ["limit"]}
  ]
}`}
	opt, err := New(f, nil).Optimize(context.Background(), "SELECT * FROM t", model.Analysis{PerformanceIssues: []string{"SELECT *"}})
	require.NoError(t, err)
	require.Len(t, opt.Variants, 2)
	require.Equal(t, 1, opt.Variants[0].ID)
	require.Equal(t, 2, opt.Variants[1].ID)
	require.Equal(t, "aggressive", opt.Variants[1].OptimizationLevel)

	require.Contains(t, f.last.User, `"performance_issues": [`)
	require.Contains(t, f.last.User, `"original": "SELECT * FROM t..."`)
}

func TestOptimizeSingleVariantShape(t *testing.T) {
	f := &fakeLLM{reply: `{"optimized_query": "SELECT id FROM t", "changes_made": ["narrowed"], "performance_gain": "less IO"}`}
	opt, err := New(f, nil).Optimize(context.Background(), "SELECT * FROM t", model.Analysis{})
	require.NoError(t, err)
	require.Equal(t, "SELECT * FROM t", opt.Original)
	require.Equal(t, []model.Variant{{
		ID:              1,
		OptimizedQuery:  "SELECT id FROM t",
		ChangesMade:     []string{"narrowed"},
		PerformanceGain: "less IO",
	}}, opt.Variants)
}

func TestOptimizeParseError(t *testing.T) {
	_, err := New(&fakeLLM{reply: "{"}, nil).Optimize(context.Background(), "SELECT 1", model.Analysis{})
	require.True(t, strings.HasPrefix(err.Error(), "Failed to parse optimization response: "))
}

func TestExplain(t *testing.T) {
	f := &fakeLLM{reply: "## What changed\n\n1. Narrowed columns\n2. Added LIMIT"}
	ex, err := New(f, nil).Explain(context.Background(), "SELECT * FROM t", "SELECT id FROM t", "")
	require.NoError(t, err)
	require.Equal(t, f.reply, ex.Markdown)
	require.Contains(t, ex.HTML, `<h2 class="main-title">What changed</h2>`)
	require.Contains(t, ex.HTML, `<ol class="explanation-list">`)

	require.False(t, f.last.JSON)
	require.Contains(t, f.last.User, "Dialect: PostgreSQL")
}

func TestExplainRequiresBothQueries(t *testing.T) {
	c := New(&fakeLLM{}, nil)
	_, err := c.Explain(context.Background(), "SELECT 1", " ", "")
	require.ErrorIs(t, err, ErrMissingQueries)
	_, err = c.Explain(context.Background(), "", "SELECT 1", "")
	require.ErrorIs(t, err, ErrMissingQueries)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "ab", truncate("abc", 2))
	require.Equal(t, "héé", truncate("hééllo", 3))
}
