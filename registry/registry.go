// Package registry holds the static expert registry and the keyword table
// used to route a question to relevant domains. The registry is pure data:
// lookup and selection only, no I/O.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/consult-sh/consult/types"
)

// Registry maps expert ids to their configuration. Loaded once, read-only
// afterwards; safe for concurrent use without synchronization.
type Registry struct {
	experts  map[string]types.ExpertConfig
	keywords map[string][]string
}

// New builds a registry from the given experts and domain keyword table.
// Every expert config is validated; a nil keyword table disables routing.
func New(experts []types.ExpertConfig, keywords map[string][]string) (*Registry, error) {
	m := make(map[string]types.ExpertConfig, len(experts))
	for _, e := range experts {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m[e.ID]; dup {
			return nil, types.NewError(types.ErrValidation, fmt.Sprintf("duplicate expert id: %s", e.ID))
		}
		m[e.ID] = e
	}
	return &Registry{experts: m, keywords: keywords}, nil
}

// Default returns the registry built from the built-in expert table and
// keyword routing table.
func Default() *Registry {
	r, err := New(defaultExperts(), defaultKeywords())
	if err != nil {
		// The built-in table is validated by tests; this is unreachable
		// unless the table itself is edited into an invalid state.
		panic(err)
	}
	return r
}

// Get returns the config for an expert id.
func (r *Registry) Get(id string) (types.ExpertConfig, bool) {
	e, ok := r.experts[id]
	return e, ok
}

// Len returns the number of registered experts.
func (r *Registry) Len() int { return len(r.experts) }

// All returns every registered expert sorted by descending weight,
// ties broken by ascending id.
func (r *Registry) All() []types.ExpertConfig {
	out := make([]types.ExpertConfig, 0, len(r.experts))
	for _, e := range r.experts {
		out = append(out, e)
	}
	sortByWeight(out)
	return out
}

// Domains returns the set of domains present in the registry, sorted.
func (r *Registry) Domains() []string {
	seen := make(map[string]struct{})
	for _, e := range r.experts {
		seen[e.Domain] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ByDomain returns the experts of one domain sorted by descending weight.
func (r *Registry) ByDomain(domain string) []types.ExpertConfig {
	var out []types.ExpertConfig
	for _, e := range r.experts {
		if e.Domain == domain {
			out = append(out, e)
		}
	}
	sortByWeight(out)
	return out
}

// Resolve validates a list of requested expert ids and returns their
// configs. Any unknown id rejects the whole request with a validation
// error before dispatch work begins.
func (r *Registry) Resolve(ids []string) ([]types.ExpertConfig, error) {
	var unknown []string
	out := make([]types.ExpertConfig, 0, len(ids))
	for _, id := range ids {
		e, ok := r.experts[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		out = append(out, e)
	}
	if len(unknown) > 0 {
		return nil, types.NewError(types.ErrValidation,
			fmt.Sprintf("unknown expert ids: %s", strings.Join(unknown, ", "))).
			WithHTTPStatus(400)
	}
	return out, nil
}

// DetectDomains detects relevant domains from keywords in the question.
// Multi-domain questions and long questions (>20 words) also pull in the
// meta domain; with no keyword hit the default is technical+meta.
func (r *Registry) DetectDomains(question string) []string {
	lower := strings.ToLower(question)
	detected := make(map[string]struct{})

	for domain, words := range r.keywords {
		for _, kw := range words {
			if strings.Contains(lower, kw) {
				detected[domain] = struct{}{}
				break
			}
		}
	}

	if len(detected) > 1 || len(strings.Fields(question)) > 20 {
		detected["meta"] = struct{}{}
	}
	if len(detected) == 0 {
		detected["technical"] = struct{}{}
		detected["meta"] = struct{}{}
	}

	out := make([]string, 0, len(detected))
	for d := range detected {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// SelectExperts picks the highest-weighted experts of the given domains,
// capped at maxExperts (0 means no cap).
func (r *Registry) SelectExperts(domains []string, maxExperts int) []types.ExpertConfig {
	want := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		want[d] = struct{}{}
	}

	var selected []types.ExpertConfig
	for _, e := range r.experts {
		if _, ok := want[e.Domain]; ok {
			selected = append(selected, e)
		}
	}
	sortByWeight(selected)

	if maxExperts > 0 && len(selected) > maxExperts {
		selected = selected[:maxExperts]
	}
	return selected
}

func sortByWeight(experts []types.ExpertConfig) {
	sort.Slice(experts, func(i, j int) bool {
		if experts[i].Weight != experts[j].Weight {
			return experts[i].Weight > experts[j].Weight
		}
		return experts[i].ID < experts[j].ID
	})
}

// defaultKeywords is the static routing table from question keywords to
// expert domains.
func defaultKeywords() map[string][]string {
	return map[string][]string{
		"technical": {"architecture", "design", "pattern", "api", "code", "performance",
			"latency", "llm", "prompt", "model", "graph", "microservice", "async"},
		"wealth": {"invest", "passive", "income", "rental", "property", "deal", "acquisition",
			"leverage", "wealth", "portfolio", "cash flow"},
		"tax": {"tax", "deduction", "1031", "s-corp", "llc", "depreciation", "501c3",
			"nonprofit", "compliance", "cpa"},
		"personal": {"skill", "career", "productivity", "time", "focus", "learning",
			"mental model", "systems thinking"},
		"utility": {"translate", "spanish", "language"},
	}
}

// defaultExperts returns the built-in expert panel.
func defaultExperts() []types.ExpertConfig {
	return []types.ExpertConfig{
		// Meta
		{ID: "unified-systems-architect", Domain: "meta", Weight: 0.25, Timeout: 180 * time.Second,
			Description: "Cross-domain synthesis, holistic analysis"},

		// Technical
		{ID: "llm-orchestration-ontology", Domain: "technical", Weight: 0.15, Timeout: 120 * time.Second,
			Description: "Multi-agent systems, orchestration patterns"},
		{ID: "prompt-engineering-expert", Domain: "technical", Weight: 0.15, Timeout: 120 * time.Second,
			Description: "Prompt design, debugging, optimization"},
		{ID: "kg-traversal-expert", Domain: "technical", Weight: 0.10, Timeout: 120 * time.Second,
			Description: "Knowledge graphs, SPARQL, Cypher"},
		{ID: "app-architecture-expert", Domain: "technical", Weight: 0.15, Timeout: 120 * time.Second,
			Description: "Web architecture, SSR, SPA, microservices"},
		{ID: "performance-percentiles-expert", Domain: "technical", Weight: 0.15, Timeout: 120 * time.Second,
			Description: "p50/p95/p99, SLOs, error budgets"},

		// Wealth
		{ID: "wealth-mindset", Domain: "wealth", Weight: 0.10, Timeout: 90 * time.Second,
			Description: "Leverage, ownership thinking"},
		{ID: "passive-income-expert", Domain: "wealth", Weight: 0.15, Timeout: 90 * time.Second,
			Description: "Income streams, investment strategies"},
		{ID: "real-estate-investor", Domain: "wealth", Weight: 0.15, Timeout: 90 * time.Second,
			Description: "BRRRR, financing, rental properties"},
		{ID: "deal-structuring-expert", Domain: "wealth", Weight: 0.15, Timeout: 90 * time.Second,
			Description: "M&A, acquisitions, deal financing"},

		// Tax / legal
		{ID: "business-tax-2026", Domain: "tax", Weight: 0.15, Timeout: 90 * time.Second,
			Description: "Current tax laws, OBBBA provisions"},
		{ID: "cpa-wealth-advisor", Domain: "tax", Weight: 0.15, Timeout: 90 * time.Second,
			Description: "Business owner optimization, retirement"},
		{ID: "homeowner-tax-strategies", Domain: "tax", Weight: 0.10, Timeout: 90 * time.Second,
			Description: "Deductions, 1031 exchanges, depreciation"},
		{ID: "ngo-corporate-structures", Domain: "tax", Weight: 0.10, Timeout: 90 * time.Second,
			Description: "Nonprofit structures, 501c3/c4"},

		// Personal
		{ID: "skill-stack-expert", Domain: "personal", Weight: 0.15, Timeout: 90 * time.Second,
			Description: "Power skill stacks for career acceleration"},
		{ID: "skill-stacker", Domain: "personal", Weight: 0.10, Timeout: 90 * time.Second,
			Description: "Skill development strategy"},
		{ID: "productivity-systems-expert", Domain: "personal", Weight: 0.15, Timeout: 90 * time.Second,
			Description: "Time management, focus, GTD"},
		{ID: "world-model-expert", Domain: "personal", Weight: 0.15, Timeout: 90 * time.Second,
			Description: "Mental models, systems thinking"},

		// Utility
		{ID: "english-to-spanish", Domain: "utility", Weight: 0.05, Timeout: 60 * time.Second,
			Description: "Translation"},
	}
}
