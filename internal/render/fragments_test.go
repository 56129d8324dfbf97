package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sqlcoach/internal/model"
)

func TestAnalysisHTMLNoIssues(t *testing.T) {
	got := AnalysisHTML(model.Analysis{OverallAssessment: "Fine."})
	require.Contains(t, got, `<div class="assessment">Fine.</div>`)
	require.Contains(t, got, "✅ No major issues found! Your query looks good.")
	require.NotContains(t, got, "issue-list")
}

func TestAnalysisHTMLEscapesIssues(t *testing.T) {
	got := AnalysisHTML(model.Analysis{
		SyntaxIssues:        []string{"<img src=x onerror=alert(1)>"},
		PerformanceIssues:   []string{"SELECT *"},
		HintsForImprovement: []string{"add index"},
	})
	require.Contains(t, got, `<ul class="issue-list error"><li>&lt;img src=x onerror=alert(1)&gt;</li></ul>`)
	require.Contains(t, got, "🐌 Performance Issues")
	require.Contains(t, got, `<ul class="issue-list success"><li>add index</li></ul>`)
	require.NotContains(t, got, "No major issues")
	require.NotContains(t, got, "<img")
}

func TestOptimizationHTML(t *testing.T) {
	got := OptimizationHTML(model.Optimization{Variants: []model.Variant{{
		ID:                1,
		OptimizationLevel: "conservative",
		OptimizedQuery:    `SELECT id FROM t WHERE name = "x"`,
		ChangesMade:       []string{"narrowed columns"},
		PerformanceGain:   "fewer bytes",
	}}})
	require.Contains(t, got, "✨ Variant 1: Conservative")
	require.Contains(t, got, "<li>narrowed columns</li>")
	require.Contains(t, got, "<p>fewer bytes</p>")
	require.Contains(t, got, `<div class="query-box">SELECT id FROM t WHERE name = &#34;x&#34;</div>`)

	require.Equal(t, `<p class="no-results">No optimizations needed.</p>`, OptimizationHTML(model.Optimization{}))
}

func TestResultHTML(t *testing.T) {
	set := &model.ResultSet{
		Columns: []string{"id", "name", "price"},
		Rows:    [][]any{{int64(1), "<b>", 12.5}, {int64(2), nil, nil}},
	}
	got := ResultHTML(set, 0)
	require.Contains(t, got, "📊 2 rows returned")
	require.Contains(t, got, "<th>id</th><th>name</th><th>price</th>")
	require.Contains(t, got, "<tr><td>1</td><td>&lt;b&gt;</td><td>12.5</td></tr>")
	require.Equal(t, 2, strings.Count(got, `<span class="null-value">NULL</span>`))

	got = ResultHTML(nil, 3)
	require.Contains(t, got, "<p>3 row(s) affected</p>")
	require.NotContains(t, got, "<table")
}

func TestTablesHTMLSortedWithSchema(t *testing.T) {
	got := TablesHTML([]Table{
		{Name: "orders", Data: model.ResultSet{Columns: []string{"id"}, Rows: [][]any{{int64(1)}}}},
		{
			Name:   "customers",
			Schema: []model.Column{{Name: "id", Type: "INTEGER", PK: true}, {Name: "name", Type: "TEXT"}},
			Data:   model.ResultSet{Columns: []string{"id", "name"}},
		},
	})
	require.Less(t, strings.Index(got, "<h4>customers</h4>"), strings.Index(got, "<h4>orders</h4>"))
	require.Contains(t, got, "<strong>Schema:</strong> id (INTEGER) PK, name (TEXT)</div>")
	require.Contains(t, got, `<span class="row-count">1 rows</span>`)
}

func TestQuestionsHTML(t *testing.T) {
	got := QuestionsHTML([]model.Question{{
		ID:          7,
		Title:       "Top <customers>",
		Difficulty:  model.Medium,
		Description: "Find them.",
		Tables:      []string{"customers", "orders"},
	}})
	require.Contains(t, got, `data-id="7"`)
	require.Contains(t, got, "<h3>7. Top &lt;customers&gt;</h3>")
	require.Contains(t, got, `<span class="difficulty-badge medium">Medium</span>`)
	require.Contains(t, got, "customers, orders")

	require.Contains(t, QuestionsHTML(nil), "No questions found.")
}

func TestTerminal(t *testing.T) {
	out, err := Terminal("# Title\n\nSome **bold** text.", 60)
	require.NoError(t, err)
	require.Contains(t, out, "Title")
	require.Contains(t, out, "bold")
}
