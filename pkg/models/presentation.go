package models

// PresentationKind identifies the export/visualization strategy chosen for
// a query result.
type PresentationKind string

const (
	PresentationNone  PresentationKind = "none"
	PresentationTable PresentationKind = "table"
	PresentationBar   PresentationKind = "bar"
	PresentationLine  PresentationKind = "line"
	PresentationPie   PresentationKind = "pie"
)

// PresentationPlan is the tagged result of result-shape classification.
// Only the fields relevant to Kind are populated.
type PresentationPlan struct {
	Kind PresentationKind `json:"kind"`

	// Bar chart axes.
	XColumn string `json:"x_column,omitempty"`
	YColumn string `json:"y_column,omitempty"`

	// Line chart series (XColumn is the time axis).
	YColumns []string `json:"y_columns,omitempty"`

	// Pie chart slices.
	LabelColumn string `json:"label_column,omitempty"`
	ValueColumn string `json:"value_column,omitempty"`
}

// TablePlan returns a plain tabular presentation.
func TablePlan() PresentationPlan {
	return PresentationPlan{Kind: PresentationTable}
}

// NonePlan returns the empty presentation used for zero-row results.
func NonePlan() PresentationPlan {
	return PresentationPlan{Kind: PresentationNone}
}
