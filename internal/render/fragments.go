package render

import (
	"html/template"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"sqlcoach/internal/model"
)

const fragmentTemplates = `
{{- define "issues" -}}
<h3>{{.Title}}</h3><ul class="issue-list {{.Class}}">{{range .Items}}<li>{{.}}</li>{{end}}</ul>
{{- end -}}

{{- define "analysis" -}}
{{- with .SyntaxIssues}}{{template "issues" (section "❌ Syntax Issues" "error" .)}}{{end -}}
{{- with .LogicalIssues}}{{template "issues" (section "⚠️ Logical Issues" "warning" .)}}{{end -}}
{{- with .PerformanceIssues}}{{template "issues" (section "🐌 Performance Issues" "warning" .)}}{{end -}}
{{- with .OverallAssessment}}<h3>📋 Overall Assessment</h3><div class="assessment">{{.}}</div>{{end -}}
{{- with .HintsForImprovement}}{{template "issues" (section "💡 Hints for Improvement" "success" .)}}{{end -}}
{{- if not .HasIssues}}<div class="assessment success-assessment">✅ No major issues found! Your query looks good.</div>{{end -}}
{{- end -}}

{{- define "optimization" -}}
{{- range .Variants -}}
<div class="optimization-variant">
<h3>✨ Variant {{.ID}}{{with .OptimizationLevel}}: {{title .}}{{end}}</h3>
{{- with .ChangesMade}}<div class="changes-section"><strong>🔧 Changes Made:</strong><ul class="changes-list">{{range .}}<li>{{.}}</li>{{end}}</ul></div>{{end -}}
{{- with .PerformanceGain}}<div class="performance-section"><strong>⚡ Performance Gain:</strong><p>{{.}}</p></div>{{end -}}
<div class="query-box">{{.OptimizedQuery}}</div>
<button class="btn btn-primary explain-btn" data-query="{{.OptimizedQuery}}">📖 Explain Optimization</button>
</div>
{{- else -}}
<p class="no-results">No optimizations needed.</p>
{{- end -}}
{{- end -}}

{{- define "table" -}}
<div class="table-wrapper"><table class="data-table"><thead><tr>
{{- range .Columns}}<th>{{.}}</th>{{end -}}
</tr></thead><tbody>
{{- range .Rows}}<tr>{{range .}}<td>{{cell .}}</td>{{end}}</tr>{{end -}}
</tbody></table></div>
{{- end -}}

{{- define "result" -}}
{{- if .Set -}}
<div class="result-stats"><span class="stat-badge">📊 {{len .Set.Rows}} rows returned</span></div>
{{- template "table" .Set -}}
{{- else -}}
<div class="result-message"><div class="message-icon">✅</div><div class="message-text"><strong>Query executed successfully</strong><p>{{.Affected}} row(s) affected</p></div></div>
{{- end -}}
{{- end -}}

{{- define "tables" -}}
{{- range . -}}
<div class="table-group"><div class="table-group-header"><h4>{{.Name}}</h4><span class="row-count">{{len .Data.Rows}} rows</span></div>
{{- with .Schema}}<div class="schema-info"><strong>Schema:</strong> {{range $i, $c := .}}{{if $i}}, {{end}}{{$c.Name}} ({{$c.Type}}){{if $c.PK}} PK{{end}}{{end}}</div>{{end -}}
{{- template "table" .Data -}}
</div>
{{- end -}}
{{- end -}}

{{- define "questions" -}}
{{- range . -}}
<div class="question-card" data-id="{{.ID}}" data-difficulty="{{.Difficulty}}">
<div class="question-header"><h3>{{.ID}}. {{.Title}}</h3><span class="difficulty-badge {{lower .Difficulty}}">{{.Difficulty}}</span></div>
<p class="question-description">{{.Description}}</p>
<div class="question-meta"><strong>📋 Tables:</strong> {{join .Tables ", "}}</div>
<div class="question-meta"><strong>📊 Expected Output:</strong><pre class="expected-output">{{.ExampleOutput}}</pre></div>
<div class="question-actions"><button class="btn btn-primary" data-action="tables">📋 View Tables</button><button class="btn btn-secondary" data-action="hint">💡 Hint</button><button class="btn btn-secondary" data-action="solution">✓ Solution</button></div>
<div class="hint-box hidden"><strong>💡 Hint:</strong> {{.Hint}}</div>
<div class="solution-box hidden"><strong>✓ Solution:</strong><pre class="code-block"><code>{{.Solution}}</code></pre><button class="btn btn-success" data-action="run-solution">▶️ Run This Query</button></div>
<div class="tables-view hidden"></div>
<div class="query-workspace hidden"><h4>✍️ Write Your Solution:</h4><textarea rows="5" placeholder="Write your SQL query here..."></textarea><button class="btn btn-success" data-action="run">▶️ Run Query</button></div>
<div class="query-results hidden"></div>
</div>
{{- else -}}
<p class="no-results">No questions found.</p>
{{- end -}}
{{- end -}}
`

var fragments = template.Must(template.New("fragments").Funcs(template.FuncMap{
	"section": func(title, class string, items []string) issueSection {
		return issueSection{Title: title, Class: class, Items: items}
	},
	"cell":  cell,
	"title": titleCase,
	"lower": strings.ToLower,
	"join":  strings.Join,
}).Parse(fragmentTemplates))

type issueSection struct {
	Title string
	Class string
	Items []string
}

// Table is one named result set, optionally with its column schema.
type Table struct {
	Name   string
	Schema []model.Column
	Data   model.ResultSet
}

var nullCell = template.HTML(`<span class="null-value">NULL</span>`)

// cell renders a result value; NULL gets a marker span, everything else is
// escaped by the template.
func cell(v any) any {
	switch x := v.(type) {
	case nil:
		return nullCell
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []byte:
		return string(x)
	default:
		return x
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func execute(name string, data any) string {
	var b strings.Builder
	if err := fragments.ExecuteTemplate(&b, name, data); err != nil {
		slog.Error("render fragment", "template", name, "err", err)
		return ""
	}
	return b.String()
}

// AnalysisHTML renders an analysis as issue lists plus the assessment.
func AnalysisHTML(a model.Analysis) string {
	return execute("analysis", a)
}

// OptimizationHTML renders every variant with its changes and query.
func OptimizationHTML(o model.Optimization) string {
	return execute("optimization", o)
}

// ResultHTML renders a query result, or the affected-rows note when set is nil.
func ResultHTML(set *model.ResultSet, affected int64) string {
	return execute("result", struct {
		Set      *model.ResultSet
		Affected int64
	}{set, affected})
}

// ResultSetHTML renders a bare data table.
func ResultSetHTML(set model.ResultSet) string {
	return execute("table", set)
}

// TablesHTML renders one table group per entry, ordered by name.
func TablesHTML(tables []Table) string {
	sorted := make([]Table, len(tables))
	copy(sorted, tables)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return execute("tables", sorted)
}

// QuestionsHTML renders practice question cards.
func QuestionsHTML(qs []model.Question) string {
	return execute("questions", qs)
}
