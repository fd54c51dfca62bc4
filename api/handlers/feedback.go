package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/consult-sh/consult/feedback"
	"github.com/consult-sh/consult/internal/metrics"
	"github.com/consult-sh/consult/types"
)

// FeedbackHandler serves the feedback endpoints: rating a past consultation
// and reading back statistics over the journal.
type FeedbackHandler struct {
	store   feedback.Store
	metrics *metrics.Collector
	logger  *zap.Logger
}

// FeedbackUpdateRequest carries point updates for one consultation. Any
// combination of fields may be set; at least one is required.
type FeedbackUpdateRequest struct {
	SynthesisHelpful *bool  `json:"synthesis_helpful,omitempty"`
	BestExpert       string `json:"best_expert,omitempty"`
	WorstExpert      string `json:"worst_expert,omitempty"`
	ActionTaken      string `json:"action_taken,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

func (r FeedbackUpdateRequest) empty() bool {
	return r.SynthesisHelpful == nil && r.BestExpert == "" && r.WorstExpert == "" &&
		r.ActionTaken == "" && r.Notes == ""
}

// NewFeedbackHandler creates the feedback handler. metrics may be nil.
func NewFeedbackHandler(store feedback.Store, collector *metrics.Collector, logger *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{store: store, metrics: collector, logger: logger}
}

// HandleUpdate applies feedback to a past consultation by query id.
// @Summary Rate a consultation
// @Accept json
// @Produce json
// @Param queryID path string true "Query ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/feedback/{queryID} [post]
func (h *FeedbackHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrValidation, "method not allowed", h.logger)
		return
	}

	queryID := r.PathValue("queryID")
	if len(queryID) != feedback.QueryIDLen {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrValidation, "unknown query id: "+queryID, h.logger)
		return
	}

	var req FeedbackUpdateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.empty() {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidation, "no feedback fields set", h.logger)
		return
	}

	ctx := r.Context()
	applied := make([]string, 0, 4)

	apply := func(kind string, fn func() error) bool {
		if err := fn(); err != nil {
			WriteTypedError(w, err, h.logger)
			return false
		}
		applied = append(applied, kind)
		if h.metrics != nil {
			h.metrics.RecordFeedbackUpdate(kind)
		}
		return true
	}

	if req.SynthesisHelpful != nil {
		if !apply("synthesis", func() error {
			return h.store.RateSynthesis(ctx, queryID, *req.SynthesisHelpful)
		}) {
			return
		}
	}
	if req.BestExpert != "" {
		if !apply("best_expert", func() error {
			return h.store.RateExpert(ctx, queryID, req.BestExpert, true)
		}) {
			return
		}
	}
	if req.WorstExpert != "" {
		if !apply("worst_expert", func() error {
			return h.store.RateExpert(ctx, queryID, req.WorstExpert, false)
		}) {
			return
		}
	}
	if req.ActionTaken != "" {
		if !apply("action", func() error {
			return h.store.LogAction(ctx, queryID, req.ActionTaken)
		}) {
			return
		}
	}
	if req.Notes != "" {
		if !apply("notes", func() error {
			return h.store.AddNotes(ctx, queryID, req.Notes)
		}) {
			return
		}
	}

	WriteSuccess(w, map[string]interface{}{
		"query_id": queryID,
		"applied":  applied,
	})
}

// HandleStats returns the accumulated per-expert rating counters.
// @Summary Per-expert feedback stats
// @Produce json
// @Success 200 {object} Response{data=map[string]feedback.ExpertStat}
// @Router /api/v1/feedback/stats [get]
func (h *FeedbackHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		WriteTypedError(w, err, h.logger)
		return
	}
	WriteSuccess(w, stats)
}

// HandleRecent returns the most recent journal entries, oldest first.
// @Summary Recent consultations
// @Produce json
// @Param limit query int false "Maximum entries (default 10)"
// @Success 200 {object} Response{data=[]feedback.Entry}
// @Router /api/v1/feedback/recent [get]
func (h *FeedbackHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidation, "limit must be a positive integer", h.logger)
			return
		}
		limit = n
	}

	entries, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		WriteTypedError(w, err, h.logger)
		return
	}
	WriteSuccess(w, entries)
}

// HandlePatterns returns the pattern analysis over recent feedback.
// @Summary Feedback pattern analysis
// @Produce json
// @Success 200 {object} Response{data=feedback.PatternReport}
// @Router /api/v1/feedback/patterns [get]
func (h *FeedbackHandler) HandlePatterns(w http.ResponseWriter, r *http.Request) {
	report, err := h.store.AnalyzePatterns(r.Context())
	if err != nil {
		WriteTypedError(w, err, h.logger)
		return
	}
	WriteSuccess(w, report)
}
