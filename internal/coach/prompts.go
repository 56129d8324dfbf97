package coach

import (
	"encoding/json"
	"fmt"
	"strings"

	"sqlcoach/internal/model"
)

const analyzeSystemPrompt = `You are an expert SQL query reviewer and performance engineer.
Your job:
- Analyze SQL queries for syntax issues, logical issues, and performance/maintainability problems.
- Output STRICT JSON only, no markdown, no code blocks, just pure JSON.`

const optimizeSystemPrompt = `You are an expert SQL optimizer.
Generate multiple optimized variations of the given query.
Return STRICT JSON only, no markdown, no code blocks, just pure JSON.`

const explainSystemPrompt = `You are a senior backend engineer and SQL instructor.
Explain SQL queries in simple language using markdown format.`

func analyzePrompt(query, dialect, schema string) string {
	return fmt.Sprintf(`You must respond ONLY with valid JSON.
Dialect: %q
Schema info:
%s

SQL query:
%s

Return JSON in this exact format:
{
  "syntax_issues": ["issue1", "issue2"],
  "logical_issues": ["issue1"],
  "performance_issues": ["issue1"],
  "needs_optimization": true,
  "overall_assessment": "brief assessment",
  "hints_for_improvement": ["hint1", "hint2"]
}`, dialect, schema, query)
}

func optimizePrompt(query string, analysis model.Analysis) string {
	issues, _ := json.MarshalIndent(analysis, "", "  ")
	preview, _ := json.Marshal(truncate(query, 100) + "...")
	return fmt.Sprintf(`You must respond ONLY with valid JSON.
Original SQL:
%s

Detected issues:
%s

Generate optimized versions in this exact format:
{
  "original": %s,
  "optimized_variants": [
    {
      "id": 1,
      "optimization_level": "conservative",
      "optimized_query": "SELECT ...",
      "changes_made": ["change1", "change2"]
    },
    {
      "id": 2,
      "optimization_level": "balanced",
      "optimized_query": "SELECT ...",
      "changes_made": ["change1"]
    },
    {
      "id": 3,
      "optimization_level": "aggressive",
      "optimized_query": "SELECT ...",
      "changes_made": ["change1"]
    }
  ]
}`, query, issues, preview)
}

func explainPrompt(original, optimized, dialect string) string {
	return fmt.Sprintf(`Dialect: %s

Original query:
%s

Optimized query:
%s

Explain in markdown format:
1. What the original query does
2. What optimizations were made
3. Why these optimizations improve performance
4. Any trade-offs to consider

Keep it simple and educational.`, dialect, original, optimized)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
