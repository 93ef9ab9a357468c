// Package reporting serves the dashboard's canned aggregate queries over
// medical_records.
package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/medintake/intake/internal/platform/auth"
)

// dateRange restricts every measure to the optional from/to query
// parameters, bound as $1 and $2.
const dateRange = `($1::timestamptz IS NULL OR date >= $1) AND ($2::timestamptz IS NULL OR date < $2)`

// MeasureDefinition defines a reporting measure with its SQL query.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"-"`
	Parameters  []string `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

var rangeParams = []string{"from", "to"}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "records-by-payment-status",
		Name:        "Records by Payment Status",
		Description: "Number of records and amount billed per payment status",
		SQL: `SELECT payment_status, COUNT(*) AS total, COALESCE(SUM(total_amount), 0)::float8 AS billed_usd
			FROM medical_records WHERE ` + dateRange + `
			GROUP BY payment_status ORDER BY total DESC`,
		Parameters: rangeParams,
	},
	{
		ID:          "records-by-branch",
		Name:        "Records by Branch",
		Description: "Number of records and amount billed per branch",
		SQL: `SELECT COALESCE(branch, 'unknown') AS branch, COUNT(*) AS total, COALESCE(SUM(total_amount), 0)::float8 AS billed_usd
			FROM medical_records WHERE ` + dateRange + `
			GROUP BY branch ORDER BY total DESC`,
		Parameters: rangeParams,
	},
	{
		ID:          "outstanding-balance",
		Name:        "Outstanding Balance",
		Description: "Records with an unpaid remainder and the total amount still owed",
		SQL: `SELECT COUNT(*) AS records, COALESCE(SUM(remaining), 0)::float8 AS remaining_usd
			FROM medical_records WHERE payment_status <> 'Completado' AND remaining > 0 AND ` + dateRange,
		Parameters: rangeParams,
	},
	{
		ID:          "daily-intake",
		Name:        "Daily Intake",
		Description: "Records received per day",
		SQL: `SELECT to_char(date AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*) AS total
			FROM medical_records WHERE ` + dateRange + `
			GROUP BY day ORDER BY day`,
		Parameters: rangeParams,
	},
	{
		ID:          "exams-by-type",
		Name:        "Exams by Type",
		Description: "Number of records per exam type",
		SQL: `SELECT COALESCE(exam_type, 'unknown') AS exam_type, COUNT(*) AS total
			FROM medical_records WHERE ` + dateRange + `
			GROUP BY exam_type ORDER BY total DESC`,
		Parameters: rangeParams,
	},
}

// Querier is satisfied by *pgxpool.Pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	db Querier
}

func NewHandler(db Querier) *Handler {
	return &Handler{db: db}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleAnalyst))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	params := map[string]string{}
	for _, p := range measure.Parameters {
		if v := c.QueryParam(p); v != "" {
			params[p] = v
		}
	}
	from, to, err := ParseRange(params["from"], params["to"])
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	results, err := h.executeSQL(c.Request().Context(), measure.SQL, from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}

	return c.JSON(http.StatusOK, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now().UTC(),
		Results:     results,
		Parameters:  params,
	})
}

// ParseRange parses inclusive YYYY-MM-DD bounds. The upper bound is turned
// into the exclusive start of the following day. Empty bounds are nil.
func ParseRange(from, to string) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from date %q: expected YYYY-MM-DD", from)
		}
		start = &t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to date %q: expected YYYY-MM-DD", to)
		}
		t = t.AddDate(0, 0, 1)
		end = &t
	}
	if start != nil && end != nil && !start.Before(*end) {
		return nil, nil, fmt.Errorf("from must not be after to")
	}
	return start, end, nil
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (h *Handler) executeSQL(ctx context.Context, sql string, args ...any) ([]map[string]interface{}, error) {
	rows, err := h.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
