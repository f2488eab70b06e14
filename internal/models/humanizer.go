package models

import (
	"time"

	"github.com/google/uuid"
)

// HumanizerSettings controls one humanization run. Zero values mean
// "use the default".
type HumanizerSettings struct {
	// TargetScore stops the loop once the detection score drops to or
	// below it.
	TargetScore float64 `json:"target_score"`
	// MaxIterations caps the number of rewrite rounds.
	MaxIterations int `json:"max_iterations"`
	// SemanticFloor is the minimum acceptable similarity to the original.
	// It decays by 0.05 per iteration, never below 0.75.
	SemanticFloor float64 `json:"semantic_floor"`
	// TimeBudgetMs is the wall-clock ceiling for the whole run, checked at
	// iteration boundaries. A pointer so an explicit 0 (baseline only) is
	// distinguishable from "use the default".
	TimeBudgetMs *int `json:"time_budget_ms,omitempty"`
}

const (
	DefaultTargetScore   = 0.2
	DefaultMaxIterations = 5
	DefaultSemanticFloor = 0.85
	DefaultTimeBudgetMs  = 20000
)

// WithDefaults fills unset fields with the default settings.
func (s HumanizerSettings) WithDefaults() HumanizerSettings {
	if s.TargetScore <= 0 {
		s.TargetScore = DefaultTargetScore
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	if s.SemanticFloor <= 0 {
		s.SemanticFloor = DefaultSemanticFloor
	}
	if s.TimeBudgetMs == nil {
		budget := DefaultTimeBudgetMs
		s.TimeBudgetMs = &budget
	}
	return s
}

type HumanizeRequest struct {
	Text     string             `json:"text"`
	Settings *HumanizerSettings `json:"settings,omitempty"`
}

// HumanizeResult is the caller-facing outcome of one run. Cached verbatim,
// so a repeat call within the TTL returns a byte-identical payload; the
// Cached flag is in-process only and never serialized.
type HumanizeResult struct {
	HumanizedText    string  `json:"humanized_text"`
	SaplingScore     float64 `json:"sapling_score"`
	Iterations       int     `json:"iterations"`
	Similarity       float64 `json:"similarity"`
	FailedIterations int     `json:"failed_iterations"`
	Cached           bool    `json:"-"`
}

// DetectionResult is the detector's verdict for one text. Score is the
// probability the text is AI-generated; lower is more human.
type DetectionResult struct {
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// HumanizerRun is the append-only audit record written once per call.
type HumanizerRun struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	InputText        string    `json:"input_text"`
	OutputText       string    `json:"output_text"`
	SaplingScore     float64   `json:"sapling_score"`
	Iterations       int       `json:"iterations"`
	FailedIterations int       `json:"failed_iterations"`
	Similarity       float64   `json:"similarity"`
	CreditsUsed      int       `json:"credits_used"`
	CreatedAt        time.Time `json:"created_at"`
}

// HumanizerStats aggregates a user's run history.
type HumanizerStats struct {
	TotalRuns        int     `json:"total_runs"`
	AverageScore     float64 `json:"average_score"`
	BestScore        float64 `json:"best_score"`
	TotalCreditsUsed int     `json:"total_credits_used"`
	CreditsThisWeek  int     `json:"credits_this_week"`
}
