// Package classifier selects a presentation plan for a query result. The
// heuristic is deterministic and every threshold is injected, never
// hard-coded, so behavior is testable by configuration.
package classifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/tessera-data/tessera-engine/pkg/models"
)

// Thresholds tunes the shape heuristic.
type Thresholds struct {
	// MaxBarRows is the row-count ceiling for bar charts.
	MaxBarRows int
	// MaxPieCategories is the distinct-label ceiling for pie charts.
	MaxPieCategories int
}

// DefaultThresholds returns the stock tuning: bars up to 50 rows, pies up
// to 8 slices.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxBarRows:       50,
		MaxPieCategories: 8,
	}
}

// Classifier picks an export/visualization strategy for a tabular result.
type Classifier struct {
	thresholds Thresholds
}

// New creates a classifier. Zero-valued threshold fields fall back to the
// defaults.
func New(thresholds Thresholds) *Classifier {
	defaults := DefaultThresholds()
	if thresholds.MaxBarRows <= 0 {
		thresholds.MaxBarRows = defaults.MaxBarRows
	}
	if thresholds.MaxPieCategories <= 0 {
		thresholds.MaxPieCategories = defaults.MaxPieCategories
	}
	return &Classifier{thresholds: thresholds}
}

// Classify inspects the result shape and returns a presentation plan.
// Evaluation order: empty, bar, line, pie, table. Total function: every
// result maps to exactly one plan.
func (c *Classifier) Classify(result *models.ExecutionResult) models.PresentationPlan {
	if result == nil || result.RowCount == 0 {
		return models.NonePlan()
	}

	roles := columnRolesOf(result)

	if plan, ok := c.barPlan(result, roles); ok {
		return plan
	}
	if plan, ok := c.linePlan(result, roles); ok {
		return plan
	}
	if plan, ok := c.piePlan(result, roles); ok {
		return plan
	}
	return models.TablePlan()
}

// barPlan: exactly two columns, one categorical and one numeric, with few
// enough rows to label each bar.
func (c *Classifier) barPlan(result *models.ExecutionResult, roles []columnRole) (models.PresentationPlan, bool) {
	if len(result.Columns) != 2 || result.RowCount > c.thresholds.MaxBarRows {
		return models.PresentationPlan{}, false
	}

	cat, num := -1, -1
	for i, role := range roles {
		switch role {
		case roleCategorical:
			cat = i
		case roleNumeric:
			num = i
		}
	}
	if cat < 0 || num < 0 {
		return models.PresentationPlan{}, false
	}

	return models.PresentationPlan{
		Kind:    models.PresentationBar,
		XColumn: result.Columns[cat],
		YColumn: result.Columns[num],
	}, true
}

// linePlan: one temporal column plus one or more numeric columns.
func (c *Classifier) linePlan(result *models.ExecutionResult, roles []columnRole) (models.PresentationPlan, bool) {
	temporal := -1
	var numeric []string
	for i, role := range roles {
		switch role {
		case roleTemporal:
			if temporal >= 0 {
				return models.PresentationPlan{}, false // ambiguous time axis
			}
			temporal = i
		case roleNumeric:
			numeric = append(numeric, result.Columns[i])
		}
	}
	if temporal < 0 || len(numeric) == 0 {
		return models.PresentationPlan{}, false
	}

	return models.PresentationPlan{
		Kind:     models.PresentationLine,
		XColumn:  result.Columns[temporal],
		YColumns: numeric,
	}, true
}

// piePlan: two columns, a low-cardinality categorical label and a numeric
// value whose parts sum to a meaningful (positive) whole.
func (c *Classifier) piePlan(result *models.ExecutionResult, roles []columnRole) (models.PresentationPlan, bool) {
	if len(result.Columns) != 2 {
		return models.PresentationPlan{}, false
	}

	cat, num := -1, -1
	for i, role := range roles {
		switch role {
		case roleCategorical:
			cat = i
		case roleNumeric:
			num = i
		}
	}
	if cat < 0 || num < 0 {
		return models.PresentationPlan{}, false
	}

	distinct := make(map[string]struct{}, result.RowCount)
	var sum float64
	for _, row := range result.Rows {
		distinct[stringValue(row[cat])] = struct{}{}
		v, ok := numericValue(row[num])
		if !ok || v < 0 {
			return models.PresentationPlan{}, false
		}
		sum += v
	}
	if len(distinct) > c.thresholds.MaxPieCategories || sum <= 0 {
		return models.PresentationPlan{}, false
	}

	return models.PresentationPlan{
		Kind:        models.PresentationPie,
		LabelColumn: result.Columns[cat],
		ValueColumn: result.Columns[num],
	}, true
}

type columnRole int

const (
	roleCategorical columnRole = iota
	roleNumeric
	roleTemporal
)

// columnRolesOf derives a role per column from the driver type name when
// available, falling back to inspecting the first non-nil value.
func columnRolesOf(result *models.ExecutionResult) []columnRole {
	roles := make([]columnRole, len(result.Columns))
	for i := range result.Columns {
		if i < len(result.ColumnTypes) && result.ColumnTypes[i] != "" {
			roles[i] = roleFromTypeName(result.ColumnTypes[i])
			continue
		}
		roles[i] = roleFromValues(result.Rows, i)
	}
	return roles
}

func roleFromTypeName(typeName string) columnRole {
	t := strings.ToLower(typeName)
	switch {
	case strings.Contains(t, "timestamp"), strings.Contains(t, "date"), strings.Contains(t, "time"):
		return roleTemporal
	case strings.Contains(t, "int"), strings.Contains(t, "numeric"), strings.Contains(t, "decimal"),
		strings.Contains(t, "float"), strings.Contains(t, "double"), strings.Contains(t, "real"),
		strings.Contains(t, "money"):
		return roleNumeric
	default:
		return roleCategorical
	}
}

func roleFromValues(rows [][]any, col int) columnRole {
	for _, row := range rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		v := row[col]
		if _, ok := numericValue(v); ok {
			return roleNumeric
		}
		if isTemporalValue(v) {
			return roleTemporal
		}
		return roleCategorical
	}
	return roleCategorical
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func isTemporalValue(v any) bool {
	switch t := v.(type) {
	case time.Time:
		return true
	case string:
		_, err := time.Parse("2006-01-02", t)
		if err == nil {
			return true
		}
		_, err = time.Parse(time.RFC3339, t)
		return err == nil
	default:
		return false
	}
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
