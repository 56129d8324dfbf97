// Package model holds the wire types shared by the coach, sandbox, practice
// and render packages.
package model

// Analysis is the review the LLM returns for one query.
type Analysis struct {
	SyntaxIssues        []string `json:"syntax_issues"`
	LogicalIssues       []string `json:"logical_issues"`
	PerformanceIssues   []string `json:"performance_issues"`
	NeedsOptimization   bool     `json:"needs_optimization"`
	OverallAssessment   string   `json:"overall_assessment"`
	HintsForImprovement []string `json:"hints_for_improvement"`
}

// HasIssues reports whether any syntax, logical or performance issue was found.
func (a Analysis) HasIssues() bool {
	return len(a.SyntaxIssues) > 0 || len(a.LogicalIssues) > 0 || len(a.PerformanceIssues) > 0
}

// Variant is one rewritten form of the original query.
type Variant struct {
	ID                int      `json:"id"`
	OptimizationLevel string   `json:"optimization_level"`
	OptimizedQuery    string   `json:"optimized_query"`
	ChangesMade       []string `json:"changes_made"`
	PerformanceGain   string   `json:"performance_gain,omitempty"`
}

// Optimization is the LLM's set of rewrites for an analyzed query.
type Optimization struct {
	Original string    `json:"original"`
	Variants []Variant `json:"optimized_variants"`
}

// ResultSet is a tabular query result. Cells are string, int64, float64 or nil.
type ResultSet struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// Column describes one table column as reported by PRAGMA table_info.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
	PK   bool   `json:"pk"`
}

// Difficulty levels of practice questions.
const (
	Easy   = "Easy"
	Medium = "Medium"
	Hard   = "Hard"
)

// Question is the public view of a practice question.
type Question struct {
	ID            int      `json:"id"`
	Title         string   `json:"title"`
	Difficulty    string   `json:"difficulty"`
	Description   string   `json:"description"`
	Tables        []string `json:"tables"`
	ExampleOutput string   `json:"example_output"`
	Hint          string   `json:"hint"`
	Solution      string   `json:"solution"`
}
