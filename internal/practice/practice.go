package practice

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"sqlcoach/internal/model"
	"sqlcoach/internal/sandbox"
)

// Service answers practice requests from a loaded bank.
type Service struct {
	questions []Question
	byID      map[int]int
	sandbox   *sandbox.Sandbox
}

// NewService indexes qs and runs them in sb.
func NewService(qs []Question, sb *sandbox.Sandbox) *Service {
	byID := make(map[int]int, len(qs))
	for i, q := range qs {
		byID[q.ID] = i
	}
	return &Service{questions: qs, byID: byID, sandbox: sb}
}

// List returns the public view of every question with the given difficulty.
// "" and "all" return everything.
func (s *Service) List(difficulty string) []model.Question {
	want := ""
	if d := strings.TrimSpace(difficulty); d != "" && !strings.EqualFold(d, "all") {
		want, _ = normalizeDifficulty(d)
		if want == "" {
			return []model.Question{}
		}
	}

	out := make([]model.Question, 0, len(s.questions))
	for _, q := range s.questions {
		if want == "" || q.Difficulty == want {
			out = append(out, q.Question)
		}
	}
	return out
}

// Get returns one question.
func (s *Service) Get(id int) (Question, error) {
	i, ok := s.byID[id]
	if !ok {
		return Question{}, ErrQuestionNotFound
	}
	return s.questions[i], nil
}

// TableSchema is the column layout and contents of one table.
type TableSchema struct {
	Columns []model.Column
	Data    model.ResultSet
}

// Schema describes the tables behind a question, keyed by table name.
func (s *Service) Schema(ctx context.Context, id int) (map[string]TableSchema, error) {
	q, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	out := make(map[string]TableSchema)
	err = s.sandbox.Do(ctx, q.SetupSQL, func(ctx context.Context, db *sandbox.DB) error {
		tables := q.Tables
		if len(tables) == 0 {
			all, err := db.Tables(ctx)
			if err != nil {
				return &sandbox.Error{Stage: sandbox.StageSnapshot, Err: err}
			}
			tables = all
		}
		for _, t := range tables {
			cols, err := db.Columns(ctx, t)
			if err != nil {
				return &sandbox.Error{Stage: sandbox.StageSnapshot, Err: err}
			}
			data, err := db.Query(ctx, "SELECT * FROM "+sandbox.QuoteIdent(t))
			if err != nil {
				return &sandbox.Error{Stage: sandbox.StageSnapshot, Err: err}
			}
			out[t] = TableSchema{Columns: cols, Data: data}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Execution is the outcome of running a user query for a question.
type Execution struct {
	Result       model.ResultSet
	RowCount     int
	AffectedRows int64
	Correct      bool
}

// Execute runs query on a fresh copy of the question's data and compares
// its result with the reference solution's.
func (s *Service) Execute(ctx context.Context, id int, query string) (Execution, error) {
	q, err := s.Get(id)
	if err != nil {
		return Execution{}, err
	}
	if strings.TrimSpace(query) == "" {
		return Execution{}, sandbox.ErrEmptyQuery
	}

	var ex Execution
	err = s.sandbox.Do(ctx, q.SetupSQL, func(ctx context.Context, db *sandbox.DB) error {
		want, err := db.Query(ctx, q.Solution)
		if err != nil {
			return fmt.Errorf("reference solution for question %d: %w", q.ID, err)
		}

		set, affected, err := db.Execute(ctx, query)
		if err != nil {
			return &sandbox.Error{Stage: sandbox.StageQuery, Err: err}
		}
		if set == nil {
			ex.Result = model.ResultSet{Columns: []string{}, Rows: [][]any{}}
			ex.AffectedRows = affected
			return nil
		}
		ex.Result = *set
		ex.RowCount = len(set.Rows)
		ex.Correct = Matches(want, *set, HasOrderBy(q.Solution))
		return nil
	})
	if err != nil {
		return Execution{}, err
	}
	return ex, nil
}

// Verify runs every reference solution and reports the first that fails.
func (s *Service) Verify(ctx context.Context) error {
	for _, q := range s.questions {
		ex, err := s.Execute(ctx, q.ID, q.Solution)
		if err != nil {
			return fmt.Errorf("question %d: %w", q.ID, err)
		}
		if !ex.Correct {
			return fmt.Errorf("question %d: solution does not match itself", q.ID)
		}
	}
	return nil
}

var orderBy = regexp.MustCompile(`(?i)\border\s+by\b`)

// HasOrderBy reports whether a query imposes a row order.
func HasOrderBy(q string) bool {
	return orderBy.MatchString(q)
}

// Matches compares two results by column count and row values. Column names
// are ignored so aliases do not matter. Numbers compare by value, so 75 and
// 75.0 are equal.
func Matches(want, got model.ResultSet, ordered bool) bool {
	if len(want.Columns) != len(got.Columns) || len(want.Rows) != len(got.Rows) {
		return false
	}
	if want.Truncated != got.Truncated {
		return false
	}

	wk := rowKeys(want.Rows)
	gk := rowKeys(got.Rows)
	if !ordered {
		sort.Strings(wk)
		sort.Strings(gk)
	}
	for i := range wk {
		if wk[i] != gk[i] {
			return false
		}
	}
	return true
}

func rowKeys(rows [][]any) []string {
	keys := make([]string, len(rows))
	for i, row := range rows {
		parts := make([]string, len(row))
		for j, v := range row {
			parts[j] = cellKey(v)
		}
		keys[i] = strings.Join(parts, "\x1f")
	}
	return keys
}

func cellKey(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case int64:
		return "n:" + strconv.FormatInt(x, 10)
	case float64:
		return "n:" + strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return "s:" + x
	default:
		return fmt.Sprintf("v:%v", x)
	}
}
