package types

import "time"

// Theme is a recommendation phrase independently produced by at least two
// experts. Confidence is the fraction of successful experts supporting it.
type Theme struct {
	Text              string   `json:"text"`
	SupportingExperts []string `json:"supporting_experts"`
	Confidence        float64  `json:"confidence"`
	// EvidenceQuotes holds up to three supporting sentences, one per expert.
	EvidenceQuotes []string `json:"evidence_quotes,omitempty"`
}

// ConflictSeverity grades a detected disagreement.
type ConflictSeverity string

const (
	SeverityLow    ConflictSeverity = "low"
	SeverityMedium ConflictSeverity = "medium"
	SeverityHigh   ConflictSeverity = "high"
)

// Conflict is a pairwise disagreement signal between two expert responses.
// Positions always has exactly two keys; distinct conflicts are keyed by
// the unordered pair of expert ids.
type Conflict struct {
	Topic          string            `json:"topic"`
	Positions      map[string]string `json:"positions"`
	Severity       ConflictSeverity  `json:"severity"`
	ResolutionHint string            `json:"resolution_hint,omitempty"`
}

// ActionPriority orders action items. Rank() gives the sort key.
type ActionPriority string

const (
	PriorityHigh   ActionPriority = "high"
	PriorityMedium ActionPriority = "medium"
	PriorityLow    ActionPriority = "low"
)

// Rank returns the sort rank of the priority; High sorts first.
func (p ActionPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// ActionItem is an actionable recommendation extracted from responses.
// Items with matching normalized text are merged: the merge keeps the
// highest priority found in the group and the union of source experts.
type ActionItem struct {
	Action        string         `json:"action"`
	Priority      ActionPriority `json:"priority"`
	SourceExperts []string       `json:"source_experts"`
	Domain        string         `json:"domain"`
	Rationale     string         `json:"rationale"`
}

// SynthesisReport is the aggregated analysis across all expert responses
// for one question. Built fresh per question; no cross-question state.
type SynthesisReport struct {
	Question          string         `json:"question"`
	Themes            []Theme        `json:"themes"`
	Conflicts         []Conflict     `json:"conflicts"`
	Actions           []ActionItem   `json:"actions"`
	DomainCoverage    map[string]int `json:"domain_coverage"`
	ConsensusScore    float64        `json:"consensus_score"`
	TotalExperts      int            `json:"total_experts"`
	SuccessfulExperts int            `json:"successful_experts"`
	Timestamp         time.Time      `json:"timestamp"`
}
