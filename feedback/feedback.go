// Package feedback persists consultation history and user ratings. The
// engine core depends only on the Store interface; the gorm-backed store
// is the production implementation and MemoryStore backs tests.
package feedback

import (
	"context"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// QueryIDLen is the length of the hex query identifier.
const QueryIDLen = 12

// ExpertList stores a string slice as a JSON text column so the same model
// works on sqlite and postgres.
type ExpertList []string

// Value implements driver.Valuer.
func (l ExpertList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *ExpertList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported expert list column type %T", value)
	}
}

// Entry is one consultation's feedback record. It is appended at dispatch
// time with the question and expert panel, and point-updated later as the
// user rates the outcome.
type Entry struct {
	ID               uint       `gorm:"primaryKey" json:"-"`
	QueryID          string     `gorm:"size:12;uniqueIndex;not null" json:"query_id"`
	Question         string     `gorm:"type:text;not null" json:"question"`
	ExpertsUsed      ExpertList `gorm:"type:text" json:"experts_used"`
	SynthesisHelpful *bool      `json:"synthesis_helpful,omitempty"`
	BestExpert       string     `gorm:"size:100" json:"best_expert,omitempty"`
	WorstExpert      string     `gorm:"size:100" json:"worst_expert,omitempty"`
	ActionTaken      string     `gorm:"size:500" json:"action_taken,omitempty"`
	UserNotes        string     `gorm:"type:text" json:"user_notes,omitempty"`
	CreatedAt        time.Time  `json:"timestamp"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (Entry) TableName() string { return "feedback_entries" }

// ExpertStat is the aggregated rating tally for one expert.
type ExpertStat struct {
	ExpertID string `gorm:"primaryKey;size:100" json:"expert_id"`
	Positive int64  `gorm:"default:0" json:"positive"`
	Negative int64  `gorm:"default:0" json:"negative"`
	Total    int64  `gorm:"default:0" json:"total"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (ExpertStat) TableName() string { return "expert_stats" }

// PatternReport summarizes recent feedback for improvement insights.
type PatternReport struct {
	TotalConsultations int `json:"total_consultations"`
	// SynthesisHelpfulRate is nil until at least one synthesis rating exists.
	SynthesisHelpfulRate   *float64       `json:"synthesis_helpful_rate"`
	TopPerformingExperts   map[string]int `json:"top_performing_experts"`
	UnderperformingExperts map[string]int `json:"underperforming_experts"`
	CommonDomains          map[string]int `json:"common_domains"`
}

// Store records consultations and user ratings. LogQuery returns the
// query id used to key all later updates; updates on an unknown id fail
// with a validation error rather than silently creating a record.
type Store interface {
	LogQuery(ctx context.Context, question string, expertsUsed []string) (string, error)
	RateSynthesis(ctx context.Context, queryID string, helpful bool) error
	RateExpert(ctx context.Context, queryID, expertID string, isBest bool) error
	LogAction(ctx context.Context, queryID, action string) error
	AddNotes(ctx context.Context, queryID, notes string) error
	Stats(ctx context.Context) (map[string]ExpertStat, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
	AnalyzePatterns(ctx context.Context) (PatternReport, error)
}

// NewQueryID derives a stable 12-hex-character id from the question and
// the submission instant. Two identical questions asked at different times
// get distinct ids.
func NewQueryID(question string, at time.Time) string {
	sum := sha256.Sum256([]byte(question + at.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:QueryIDLen]
}

// patternWindow is how many recent entries AnalyzePatterns considers.
const patternWindow = 100

// analyzeEntries computes the pattern report over a chronological slice of
// entries. Shared by both store implementations.
func analyzeEntries(entries []Entry) PatternReport {
	report := PatternReport{
		TotalConsultations:     len(entries),
		TopPerformingExperts:   map[string]int{},
		UnderperformingExperts: map[string]int{},
		CommonDomains:          map[string]int{},
	}

	var rated, helpful int
	best := map[string]int{}
	worst := map[string]int{}
	for _, e := range entries {
		if e.SynthesisHelpful != nil {
			rated++
			if *e.SynthesisHelpful {
				helpful++
			}
		}
		if e.BestExpert != "" {
			best[e.BestExpert]++
		}
		if e.WorstExpert != "" {
			worst[e.WorstExpert]++
		}
		for _, id := range e.ExpertsUsed {
			report.CommonDomains[domainPrefix(id)]++
		}
	}

	if rated > 0 {
		rate := float64(helpful) / float64(rated)
		report.SynthesisHelpfulRate = &rate
	}
	report.TopPerformingExperts = topN(best, 5)
	report.UnderperformingExperts = topN(worst, 5)
	return report
}

// domainPrefix maps an expert id to its leading segment, a rough stand-in
// for the expert's domain in pattern summaries.
func domainPrefix(expertID string) string {
	for i := 0; i < len(expertID); i++ {
		if expertID[i] == '-' {
			return expertID[:i]
		}
	}
	return expertID
}

func topN(counts map[string]int, n int) map[string]int {
	if len(counts) <= n {
		out := make(map[string]int, len(counts))
		for k, v := range counts {
			out[k] = v
		}
		return out
	}

	type kv struct {
		key   string
		count int
	}
	sorted := make([]kv, 0, len(counts))
	for k, v := range counts {
		sorted = append(sorted, kv{k, v})
	}
	// Ties broken by key so the cut is deterministic.
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].key < sorted[j].key
	})

	out := make(map[string]int, n)
	for _, e := range sorted[:n] {
		out[e.key] = e.count
	}
	return out
}
