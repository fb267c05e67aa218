package models

// Requests for the candles HTTP endpoints. Time fields accept RFC3339 or unix seconds.

type MergedCandlesRequest struct {
	Symbol        string `query:"symbol" json:"symbol" validate:"required,symbol"`
	From          string `query:"from" json:"from"`
	To            string `query:"to" json:"to"`
	Intervals     []int  `query:"intervals" json:"intervals" validate:"omitempty,max=8,dive,gte=2,lte=10080"`
	Interpolation string `query:"interp" json:"interp" default:"nearest" validate:"oneof=nearest previous"`
}

type StoredCandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
}

type PipelineRunRequest struct {
	Symbols       []string `json:"symbols" validate:"required,min=1,max=100,dive,required,symbol"`
	From          string   `json:"from"`
	To            string   `json:"to"`
	Intervals     []int    `json:"intervals" validate:"omitempty,max=8,dive,gte=2,lte=10080"`
	Interpolation string   `json:"interp" default:"nearest" validate:"oneof=nearest previous"`
	Persist       bool     `json:"persist"`
}

// RunSummary reports the outcome of one symbol in a pipeline run.
type RunSummary struct {
	Symbol     string   `json:"symbol"`
	Ticks      int      `json:"ticks"`
	BaseRows   int      `json:"base_rows"`
	Columns    []string `json:"columns,omitempty"`
	DurationMs int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
}
