// Package consult orchestrates one consultation end to end: panel selection
// through the expert registry, feedback journaling, concurrent fan-out via
// the dispatcher, and optional synthesis of the collected responses. The
// HTTP API and the CLI are both thin layers over Service.
package consult

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/consult-sh/consult/dispatch"
	"github.com/consult-sh/consult/feedback"
	"github.com/consult-sh/consult/internal/cache"
	"github.com/consult-sh/consult/internal/metrics"
	"github.com/consult-sh/consult/registry"
	"github.com/consult-sh/consult/synthesis"
	"github.com/consult-sh/consult/types"
)

const (
	// DefaultMaxConcurrent bounds in-flight expert calls per consultation.
	DefaultMaxConcurrent = 4
	// DefaultMaxExperts caps the panel picked by domain routing.
	DefaultMaxExperts = 6
)

// Request describes one consultation. Exactly one panel-selection mode
// applies: All wins over explicit ExpertIDs, which win over domain routing
// (explicit Domains, or keyword detection when Domains is empty too).
type Request struct {
	Question      string   `json:"question"`
	ExpertIDs     []string `json:"experts,omitempty"`
	Domains       []string `json:"domains,omitempty"`
	All           bool     `json:"all,omitempty"`
	MaxExperts    int      `json:"max_experts,omitempty"`
	MaxConcurrent int      `json:"max_concurrent,omitempty"`
	Synthesize    bool     `json:"synthesize,omitempty"`
}

// Consultation is the serialized outcome of one request: the full ordered
// result set plus the optional synthesis report. QueryID keys later
// feedback updates.
type Consultation struct {
	QueryID     string                 `json:"query_id"`
	Question    string                 `json:"question"`
	Domains     []string               `json:"domains,omitempty"`
	TotalTimeMS int64                  `json:"total_time_ms"`
	Results     []types.ExpertResult   `json:"results"`
	Synthesis   *types.SynthesisReport `json:"synthesis,omitempty"`
	FromCache   bool                   `json:"from_cache,omitempty"`
}

// Service wires the registry, dispatcher, feedback store and the optional
// cache and metrics collaborators. Safe for concurrent use; the registry
// pointer is swapped atomically on expert-table reloads, and every
// consultation works on the snapshot it loaded at the start.
type Service struct {
	registry      atomic.Pointer[registry.Registry]
	dispatcher    *dispatch.Dispatcher
	store         feedback.Store
	cache         *cache.Manager
	metrics       *metrics.Collector
	logger        *zap.Logger
	maxConcurrent int
	maxExperts    int
	now           func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithCache enables the Redis-backed response cache.
func WithCache(m *cache.Manager) Option {
	return func(s *Service) { s.cache = m }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithLimits overrides the default concurrency cap and panel cap.
// Non-positive values keep the defaults.
func WithLimits(maxConcurrent, maxExperts int) Option {
	return func(s *Service) {
		if maxConcurrent > 0 {
			s.maxConcurrent = maxConcurrent
		}
		if maxExperts > 0 {
			s.maxExperts = maxExperts
		}
	}
}

// NewService builds a consultation service around a registry, a generation
// endpoint and a feedback store.
func NewService(reg *registry.Registry, gen dispatch.Generator, store feedback.Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		dispatcher:    dispatch.New(gen, logger),
		store:         store,
		logger:        logger.With(zap.String("component", "consult")),
		maxConcurrent: DefaultMaxConcurrent,
		maxExperts:    DefaultMaxExperts,
		now:           time.Now,
	}
	s.registry.Store(reg)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the current expert registry snapshot.
func (s *Service) Registry() *registry.Registry { return s.registry.Load() }

// ReloadRegistry swaps in a new expert registry. In-flight consultations
// keep the snapshot they started with.
func (s *Service) ReloadRegistry(reg *registry.Registry) {
	s.registry.Store(reg)
	s.logger.Info("expert registry reloaded", zap.Int("experts", reg.Len()))
}

// Feedback exposes the feedback store for rating endpoints.
func (s *Service) Feedback() feedback.Store { return s.store }

// Consult runs one consultation: select the panel, journal the query, fan
// out to the experts and optionally synthesize. Per-expert failures are
// recorded in the result list, never returned as an error; the only error
// paths are request validation and panel resolution.
func (s *Service) Consult(ctx context.Context, req Request) (*Consultation, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, types.NewError(types.ErrValidation, "question must not be empty").WithHTTPStatus(400)
	}

	panel, domains, err := s.selectPanel(s.registry.Load(), question, req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(panel))
	for i, e := range panel {
		ids[i] = e.ID
	}

	queryID, err := s.store.LogQuery(ctx, question, ids)
	if err != nil {
		// A journaling failure must not block the consultation itself.
		s.logger.Warn("feedback journal failed", zap.Error(err))
		queryID = feedback.NewQueryID(question, s.now())
	}

	start := s.now()

	var key string
	if s.cache != nil {
		key = cache.Key(question, ids)
		if c, ok := s.fromCache(ctx, key, queryID, req.Synthesize, question); ok {
			s.record("cache", len(panel), c.Synthesis, time.Since(start))
			return c, nil
		}
	}

	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = s.maxConcurrent
	}
	results := s.dispatcher.Run(ctx, question, panel, maxConcurrent)

	if s.metrics != nil {
		for _, r := range results {
			s.metrics.RecordExpertCall(r.ExpertID, r.Domain, string(r.Status),
				time.Duration(r.DurationMS)*time.Millisecond)
		}
	}

	c := &Consultation{
		QueryID:     queryID,
		Question:    question,
		Domains:     domains,
		TotalTimeMS: time.Since(start).Milliseconds(),
		Results:     results,
	}
	if req.Synthesize {
		report := synthesis.NewEngine(results).Synthesize(question)
		c.Synthesis = &report
	}
	s.record("dispatch", len(panel), c.Synthesis, time.Since(start))

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, c); err != nil {
			s.logger.Warn("response cache write failed", zap.Error(err))
		}
	}

	s.logger.Info("consultation complete",
		zap.String("query_id", queryID),
		zap.Int("panel_size", len(panel)),
		zap.Int64("total_time_ms", c.TotalTimeMS),
	)
	return c, nil
}

// selectPanel resolves the expert panel for a request. Explicit expert ids
// are validated before any dispatch work begins.
func (s *Service) selectPanel(reg *registry.Registry, question string, req Request) ([]types.ExpertConfig, []string, error) {
	switch {
	case req.All:
		return reg.All(), nil, nil
	case len(req.ExpertIDs) > 0:
		panel, err := reg.Resolve(req.ExpertIDs)
		if err != nil {
			return nil, nil, err
		}
		return panel, nil, nil
	default:
		domains := req.Domains
		if len(domains) == 0 {
			domains = reg.DetectDomains(question)
		}
		maxExperts := req.MaxExperts
		if maxExperts <= 0 {
			maxExperts = s.maxExperts
		}
		return reg.SelectExperts(domains, maxExperts), domains, nil
	}
}

// fromCache serves a consultation from the response cache. The cached entry
// keeps its result set but takes over the fresh query id so feedback lands
// on this consultation's journal entry. Synthesis is a pure function of the
// results, so a cached entry missing it is completed locally.
func (s *Service) fromCache(ctx context.Context, key, queryID string, synthesize bool, question string) (*Consultation, bool) {
	var c Consultation
	err := s.cache.GetJSON(ctx, key, &c)
	if err != nil {
		if !cache.IsCacheMiss(err) {
			s.logger.Warn("response cache read failed", zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheMiss("response")
		}
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.RecordCacheHit("response")
	}

	c.QueryID = queryID
	c.FromCache = true
	if synthesize && c.Synthesis == nil {
		report := synthesis.NewEngine(c.Results).Synthesize(question)
		c.Synthesis = &report
	}
	return &c, true
}

func (s *Service) record(source string, panelSize int, report *types.SynthesisReport, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	consensus := -1.0
	if report != nil {
		consensus = report.ConsensusScore
	}
	s.metrics.RecordConsultation(source, panelSize, consensus, elapsed)
}
