package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/atxgeo/parcelmap/internal/db"
)

// RegisterAnalytics registers the SQL analytics routes over the parcel
// table.
func (h *APIHandler) RegisterAnalytics(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("analytics"))
	huma.Post(api, "/api/v1/query", h.RunQuery, huma.OperationTags("analytics"))
	huma.Get(api, "/api/v1/valuations", h.GetValuations, huma.OperationTags("analytics"))
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []string `json:"tables" doc:"List of table names"`
	}
}

// ListTables returns all analytic tables.
func (h *APIHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.svc.DB == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.svc.DB.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	defer rows.Close()

	out := &TablesOutput{}
	out.Body.Tables = []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			out.Body.Tables = append(out.Body.Tables, name)
		}
	}
	return out, nil
}

// QueryInput is the input for SQL queries.
type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" doc:"SQL query to execute"`
	}
}

// QueryOutput is the response for SQL queries.
type QueryOutput struct {
	Body struct {
		Columns []string         `json:"columns" doc:"Column names"`
		Rows    []map[string]any `json:"rows" doc:"Query results"`
		Count   int              `json:"count" doc:"Number of rows returned"`
	}
}

// RunQuery executes an ad-hoc SQL query against the parcel analytics
// store.
func (h *APIHandler) RunQuery(ctx context.Context, input *QueryInput) (*QueryOutput, error) {
	if h.svc.DB == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.svc.DB.QueryContext(ctx, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get columns", err)
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			continue
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	out := &QueryOutput{}
	out.Body.Columns = columns
	out.Body.Rows = results
	out.Body.Count = len(results)
	return out, nil
}

// ValuationsOutput is the per-type valuation rollup.
type ValuationsOutput struct {
	Body struct {
		Valuations []db.ValuationSummary `json:"valuations" doc:"Market-value rollup by property type"`
	}
}

// GetValuations rolls parcel market values up by property type.
func (h *APIHandler) GetValuations(ctx context.Context, input *struct{}) (*ValuationsOutput, error) {
	if h.svc.DB == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	summaries, err := db.SummarizeValuations(ctx, h.svc.DB)
	if err != nil {
		return nil, huma.Error500InternalServerError("Valuation rollup failed", err)
	}

	out := &ValuationsOutput{}
	out.Body.Valuations = summaries
	if out.Body.Valuations == nil {
		out.Body.Valuations = []db.ValuationSummary{}
	}
	return out, nil
}
