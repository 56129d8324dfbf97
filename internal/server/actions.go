package server

import (
	"context"
	"strings"

	"sqlcoach/internal/coach"
	"sqlcoach/internal/model"
	"sqlcoach/internal/render"
	"sqlcoach/internal/session"
	"sqlcoach/internal/util"
)

type analyzeRequest struct {
	Query   string `json:"query"`
	Dialect string `json:"dialect"`
	Schema  string `json:"schema"`
}

func (h *Handler) analyze(ctx context.Context, c *call) (any, error) {
	var req analyzeRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	dialect := orDefault(req.Dialect, coach.DefaultDialect)
	c.note(dialect, req.Query)

	a, err := h.coach.Analyze(ctx, req.Query, dialect, req.Schema)
	if err != nil {
		return nil, err
	}

	h.sessions.Update(c.session, func(ws *session.Workspace) {
		ws.Query = req.Query
		ws.Dialect = dialect
		ws.Analysis = &a
	})

	return map[string]any{
		"success":  true,
		"analysis": a,
		"html":     render.AnalysisHTML(a),
	}, nil
}

type optimizeRequest struct {
	Query    string          `json:"query"`
	Dialect  string          `json:"dialect"`
	Analysis *model.Analysis `json:"analysis"`
}

// optimize uses the analysis from the body, falling back to the one the
// session stored on its last /analyze.
func (h *Handler) optimize(ctx context.Context, c *call) (any, error) {
	var req optimizeRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}

	ws := h.sessions.Get(c.session)
	query := req.Query
	if strings.TrimSpace(query) == "" {
		query = ws.Query
	}
	analysis := req.Analysis
	if analysis == nil {
		analysis = ws.Analysis
	}
	c.note(orDefault(req.Dialect, orDefault(ws.Dialect, coach.DefaultDialect)), query)

	if strings.TrimSpace(query) == "" {
		return nil, coach.ErrEmptyQuery
	}
	if analysis == nil {
		return nil, coach.ErrAnalysisMissing
	}

	opt, err := h.coach.Optimize(ctx, query, *analysis)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":   true,
		"optimized": opt,
		"html":      render.OptimizationHTML(opt),
	}, nil
}

type explainRequest struct {
	Original  string `json:"original"`
	Optimized string `json:"optimized"`
	Dialect   string `json:"dialect"`
}

func (h *Handler) explain(ctx context.Context, c *call) (any, error) {
	var req explainRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	dialect := orDefault(req.Dialect, coach.DefaultDialect)
	c.note(dialect, req.Original)

	ex, err := h.coach.Explain(ctx, req.Original, req.Optimized, dialect)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":          true,
		"explanation":      ex.Markdown,
		"explanation_html": ex.HTML,
	}, nil
}

type renderRequest struct {
	Text string `json:"text"`
}

func (h *Handler) render(_ context.Context, c *call) (any, error) {
	var req renderRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"html":    render.Markdown(req.Text),
	}, nil
}

type compileRequest struct {
	SetupSQL string `json:"setup_sql"`
	Query    string `json:"query"`
	Dialect  string `json:"dialect"`
}

func (h *Handler) compile(ctx context.Context, c *call) (any, error) {
	var req compileRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	c.note(req.Dialect, req.Query)

	res, err := h.sandbox.Run(ctx, req.SetupSQL, req.Query)
	if err != nil {
		return nil, err
	}

	tables := make([]render.Table, 0, len(res.Tables))
	for name, data := range res.Tables {
		tables = append(tables, render.Table{Name: name, Data: data})
	}

	var affected int64
	out := map[string]any{
		"success": true,
		"tables":  res.Tables,
	}
	if res.Query != nil {
		out["result"] = res.Query
	} else if res.AffectedRows != nil {
		affected = *res.AffectedRows
		out["affected_rows"] = affected
	}
	out["html"] = render.ResultHTML(res.Query, affected)
	out["tables_html"] = render.TablesHTML(tables)
	return out, nil
}

func (h *Handler) practiceList(_ context.Context, c *call) (any, error) {
	qs := h.practice.List(c.r.URL.Query().Get("difficulty"))
	return map[string]any{
		"success":   true,
		"questions": qs,
		"html":      render.QuestionsHTML(qs),
	}, nil
}

type questionRequest struct {
	QuestionID any    `json:"question_id"`
	Query      string `json:"query"`
}

func (r questionRequest) id() (int, error) {
	if r.QuestionID == nil {
		return 0, badRequest("question_id is required")
	}
	id, ok := util.ToInt(r.QuestionID)
	if !ok {
		return 0, badRequest("question_id must be an integer")
	}
	return id, nil
}

func (h *Handler) practiceSchema(ctx context.Context, c *call) (any, error) {
	var req questionRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	id, err := req.id()
	if err != nil {
		return nil, err
	}

	schema, err := h.practice.Schema(ctx, id)
	if err != nil {
		return nil, err
	}

	columns := make(map[string][]model.Column, len(schema))
	data := make(map[string]model.ResultSet, len(schema))
	tables := make([]render.Table, 0, len(schema))
	for name, ts := range schema {
		columns[name] = ts.Columns
		data[name] = ts.Data
		tables = append(tables, render.Table{Name: name, Schema: ts.Columns, Data: ts.Data})
	}
	return map[string]any{
		"success": true,
		"schema":  columns,
		"data":    data,
		"html":    render.TablesHTML(tables),
	}, nil
}

func (h *Handler) practiceExecute(ctx context.Context, c *call) (any, error) {
	var req questionRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	id, err := req.id()
	if err != nil {
		return nil, err
	}
	c.note("SQLite", req.Query)

	ex, err := h.practice.Execute(ctx, id, req.Query)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"success":   true,
		"columns":   ex.Result.Columns,
		"rows":      ex.Result.Rows,
		"row_count": ex.RowCount,
		"correct":   ex.Correct,
	}
	if len(ex.Result.Columns) == 0 {
		out["affected_rows"] = ex.AffectedRows
		out["html"] = render.ResultHTML(nil, ex.AffectedRows)
	} else {
		out["html"] = render.ResultHTML(&ex.Result, 0)
	}
	return out, nil
}

func (h *Handler) sessionClear(_ context.Context, c *call) (any, error) {
	h.sessions.Clear(c.session)
	return map[string]any{"success": true}, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
