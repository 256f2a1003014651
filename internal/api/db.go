package api

import (
	"context"
	"database/sql"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapbridge/internal/db"
	"github.com/joeblew999/plat-mapbridge/internal/diag"
	"github.com/joeblew999/plat-mapbridge/internal/humastar"
)

// DBHandler serves the diagnostics journal.
type DBHandler struct {
	db   *sql.DB
	diag *diag.Recorder
}

// NewDBHandler creates a new database handler. Both arguments may be nil.
func NewDBHandler(conn *sql.DB, rec *diag.Recorder) *DBHandler {
	return &DBHandler{db: conn, diag: rec}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/diagnostics", h.ListDiagnostics, huma.OperationTags("diagnostics"))
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("diagnostics"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("diagnostics"))
}

type DiagnosticsInput struct {
	Session string `query:"session" doc:"Only diagnostics of this session"`
	Offset  int    `query:"offset" minimum:"0" default:"0"`
	Limit   int    `query:"limit" minimum:"0" maximum:"1000" default:"50"`
}

type DiagnosticsOutput struct {
	Body humastar.PageBody[diag.Entry]
}

// ListDiagnostics pages through the recent diagnostics, oldest first.
func (h *DBHandler) ListDiagnostics(ctx context.Context, input *DiagnosticsInput) (*DiagnosticsOutput, error) {
	entries := []diag.Entry{}
	if h.diag != nil {
		entries = h.diag.Entries(input.Session, 0)
	}
	return &DiagnosticsOutput{Body: humastar.Page(entries, input.Offset, input.Limit)}, nil
}

type TablesOutput struct {
	Body struct {
		Tables []string `json:"tables" doc:"Journal tables" example:"[\"diagnostics\",\"callbacks\"]"`
	}
}

// ListTables lists the journal tables.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("diagnostics journal not available")
	}
	tables, err := db.Tables(h.db)
	if err != nil {
		return nil, huma.Error500InternalServerError("list tables", err)
	}
	out := &TablesOutput{}
	out.Body.Tables = tables
	return out, nil
}

// maxRows caps a journal query.
const maxRows = 1000

type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" doc:"Read-only SQL over the journal" example:"SELECT kind, count(*) AS n FROM diagnostics GROUP BY kind"`
	}
}

type QueryBody struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Count     int              `json:"count"`
	Truncated bool             `json:"truncated,omitempty" doc:"More than the row cap matched"`
}

type QueryOutput struct {
	Body QueryBody
}

// readOnly reports whether q starts with a statement that cannot write.
func readOnly(q string) bool {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "DESCRIBE", "SHOW", "SUMMARIZE", "EXPLAIN":
		return !strings.Contains(strings.TrimSuffix(strings.TrimSpace(q), ";"), ";")
	}
	return false
}

// Query runs a read-only statement against the journal.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*QueryOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("diagnostics journal not available")
	}
	if !readOnly(input.Body.Query) {
		return nil, huma.Error422UnprocessableEntity("only single read-only statements are allowed")
	}

	rows, err := h.db.QueryContext(ctx, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("query failed: " + err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, huma.Error500InternalServerError("read columns", err)
	}

	body := QueryBody{Columns: columns, Rows: []map[string]any{}}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if len(body.Rows) == maxRows {
			body.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, huma.Error500InternalServerError("scan row", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		body.Rows = append(body.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, huma.Error400BadRequest("query failed: " + err.Error())
	}
	body.Count = len(body.Rows)
	return &QueryOutput{Body: body}, nil
}
