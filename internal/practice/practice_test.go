package practice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sqlcoach/internal/model"
	"sqlcoach/internal/sandbox"
)

func newService(t *testing.T) *Service {
	t.Helper()
	qs, err := LoadBank("")
	require.NoError(t, err)
	return NewService(qs, sandbox.New(sandbox.Options{}))
}

func TestEmbeddedBankSolutionsAreCorrect(t *testing.T) {
	svc := newService(t)
	for _, q := range svc.List("") {
		t.Run(q.Title, func(t *testing.T) {
			ex, err := svc.Execute(context.Background(), q.ID, q.Solution)
			require.NoError(t, err)
			require.True(t, ex.Correct)
			require.Greater(t, ex.RowCount, 0)
		})
	}
	require.NoError(t, svc.Verify(context.Background()))
}

func TestListFilters(t *testing.T) {
	svc := newService(t)
	all := svc.List("all")
	require.Len(t, all, 12)
	require.Equal(t, all, svc.List(""))

	easy := svc.List("easy")
	require.NotEmpty(t, easy)
	for _, q := range easy {
		require.Equal(t, model.Easy, q.Difficulty)
	}
	require.Empty(t, svc.List("impossible"))
}

func TestExecuteWrongAnswer(t *testing.T) {
	svc := newService(t)
	ex, err := svc.Execute(context.Background(), 1, "SELECT name, email FROM customers ORDER BY name")
	require.NoError(t, err)
	require.False(t, ex.Correct)
	require.Equal(t, 5, ex.RowCount)
}

func TestExecuteOrderInsensitiveWithoutOrderBy(t *testing.T) {
	svc := newService(t)
	// Question 4 has no ORDER BY in its solution.
	ex, err := svc.Execute(context.Background(), 4, "SELECT name FROM departments WHERE location = 'Berlin' ORDER BY name DESC")
	require.NoError(t, err)
	require.True(t, ex.Correct)
}

func TestExecuteOrderSensitiveWithOrderBy(t *testing.T) {
	svc := newService(t)
	ex, err := svc.Execute(context.Background(), 3, "SELECT name, price FROM products ORDER BY price ASC LIMIT 3")
	require.NoError(t, err)
	require.False(t, ex.Correct)

	ex, err = svc.Execute(context.Background(), 3, "SELECT name AS product, price AS cost FROM products ORDER BY 2 DESC LIMIT 3")
	require.NoError(t, err)
	require.True(t, ex.Correct)
}

func TestExecuteUnknownQuestion(t *testing.T) {
	_, err := newService(t).Execute(context.Background(), 999, "SELECT 1")
	require.ErrorIs(t, err, ErrQuestionNotFound)

	_, err = newService(t).Schema(context.Background(), 999)
	require.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestExecuteSQLError(t *testing.T) {
	_, err := newService(t).Execute(context.Background(), 1, "SELECT nope FROM customers")
	var se *sandbox.Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, sandbox.StageQuery, se.Stage)
}

func TestExecuteStatementDoesNotPersist(t *testing.T) {
	svc := newService(t)
	ex, err := svc.Execute(context.Background(), 2, "DELETE FROM products")
	require.NoError(t, err)
	require.False(t, ex.Correct)
	require.EqualValues(t, 6, ex.AffectedRows)

	ex, err = svc.Execute(context.Background(), 2, "SELECT name FROM products WHERE stock = 0")
	require.NoError(t, err)
	require.True(t, ex.Correct)
}

func TestSchema(t *testing.T) {
	schema, err := newService(t).Schema(context.Background(), 6)
	require.NoError(t, err)
	require.Len(t, schema, 2)

	orders := schema["orders"]
	require.Equal(t, "id", orders.Columns[0].Name)
	require.True(t, orders.Columns[0].PK)
	require.Len(t, orders.Data.Rows, 6)
	require.Len(t, schema["order_items"].Data.Rows, 8)
}

func TestMatches(t *testing.T) {
	a := model.ResultSet{Columns: []string{"x", "y"}, Rows: [][]any{{int64(1), "a"}, {75.0, nil}}}

	tests := []struct {
		name    string
		got     model.ResultSet
		ordered bool
		want    bool
	}{
		{"same", a, true, true},
		{"int equals float", model.ResultSet{Columns: []string{"p", "q"}, Rows: [][]any{{1.0, "a"}, {int64(75), nil}}}, true, true},
		{"reordered unordered", model.ResultSet{Columns: []string{"x", "y"}, Rows: [][]any{{75.0, nil}, {int64(1), "a"}}}, false, true},
		{"reordered ordered", model.ResultSet{Columns: []string{"x", "y"}, Rows: [][]any{{75.0, nil}, {int64(1), "a"}}}, true, false},
		{"string vs number", model.ResultSet{Columns: []string{"x", "y"}, Rows: [][]any{{"1", "a"}, {75.0, nil}}}, true, false},
		{"null vs text", model.ResultSet{Columns: []string{"x", "y"}, Rows: [][]any{{int64(1), "a"}, {75.0, "null"}}}, true, false},
		{"extra column", model.ResultSet{Columns: []string{"x", "y", "z"}, Rows: [][]any{{int64(1), "a", nil}, {75.0, nil, nil}}}, true, false},
		{"missing row", model.ResultSet{Columns: []string{"x", "y"}, Rows: [][]any{{int64(1), "a"}}}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Matches(a, tt.got, tt.ordered))
		})
	}
}

func TestHasOrderBy(t *testing.T) {
	require.True(t, HasOrderBy("SELECT 1 ORDER BY 1"))
	require.True(t, HasOrderBy("select 1\norder\n  by 1"))
	require.False(t, HasOrderBy("SELECT border_by FROM t"))
}

func TestParseBankValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "questions: []\n"},
		{"unknown key", "questions:\n  - id: 1\n    titel: x\n"},
		{"duplicate id", `
datasets: {d: "CREATE TABLE t (x INTEGER);"}
questions:
  - {id: 1, title: a, difficulty: Easy, dataset: d, solution: SELECT 1}
  - {id: 1, title: b, difficulty: Easy, dataset: d, solution: SELECT 1}
`},
		{"bad difficulty", `
questions:
  - {id: 1, title: a, difficulty: Extreme, setup_sql: "CREATE TABLE t (x INTEGER);", solution: SELECT 1}
`},
		{"unknown dataset", `
questions:
  - {id: 1, title: a, difficulty: Easy, dataset: nope, solution: SELECT 1}
`},
		{"missing solution", `
questions:
  - {id: 1, title: a, difficulty: Easy, setup_sql: "CREATE TABLE t (x INTEGER);"}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBank([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadBankFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
questions:
  - id: 3
    title: Count
    difficulty: medium
    setup_sql: "CREATE TABLE t (x INTEGER); INSERT INTO t VALUES (1), (2);"
    tables: [t]
    solution: SELECT COUNT(*) FROM t
`), 0o644))

	qs, err := LoadBank(path)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	require.Equal(t, model.Medium, qs[0].Difficulty)

	svc := NewService(qs, sandbox.New(sandbox.Options{}))
	ex, err := svc.Execute(context.Background(), 3, "SELECT 2")
	require.NoError(t, err)
	require.True(t, ex.Correct)
}
