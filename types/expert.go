package types

import (
	"fmt"
	"time"
)

// ExpertConfig describes one entry of the expert registry: a named
// text-generation endpoint tagged with a domain and a relevance weight.
// Configs are loaded once and shared read-only across concurrent calls.
type ExpertConfig struct {
	// ID is the unique expert identifier and doubles as the model name
	// on the generation endpoint.
	ID string `yaml:"id" json:"id"`
	// Domain groups experts for keyword routing (technical, wealth, ...).
	Domain string `yaml:"domain" json:"domain"`
	// Weight is the relevance weight in (0, 1].
	Weight float64 `yaml:"weight" json:"weight"`
	// Timeout is the per-call budget for this expert.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Description is a short human-readable summary of the expert's focus.
	Description string `yaml:"description" json:"description"`
}

// Validate checks the config invariants.
func (c ExpertConfig) Validate() error {
	if c.ID == "" {
		return NewError(ErrValidation, "expert id must not be empty")
	}
	if c.Weight <= 0 || c.Weight > 1 {
		return NewError(ErrValidation, fmt.Sprintf("expert %s: weight must be in (0,1], got %v", c.ID, c.Weight))
	}
	if c.Timeout <= 0 {
		return NewError(ErrValidation, fmt.Sprintf("expert %s: timeout must be positive", c.ID))
	}
	return nil
}

// ResultStatus is the outcome class of a single expert call.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
	StatusTimeout ResultStatus = "timeout"
)

// ExpertResult is the typed outcome of one expert call. The dispatcher
// produces exactly one ExpertResult per selected expert per dispatch,
// regardless of success, failure or timeout. Response is non-empty iff
// Status is StatusSuccess. Immutable once created.
type ExpertResult struct {
	ExpertID   string       `json:"expert_id"`
	Domain     string       `json:"domain"`
	Weight     float64      `json:"weight"`
	DurationMS int64        `json:"duration_ms"`
	Status     ResultStatus `json:"status"`
	Response   string       `json:"response,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Succeeded reports whether the call produced a usable response.
func (r ExpertResult) Succeeded() bool {
	return r.Status == StatusSuccess && r.Response != ""
}
