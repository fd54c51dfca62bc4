package synthesis

// Heuristic keyword tables. These are literal configuration data: the
// aggregation is a deterministic, explainable keyword pass, not an NLP
// model, and the lists must stay as-is for results to be reproducible.

// actionIndicators mark sentences that carry a recommendation.
var actionIndicators = []string{
	"should", "recommend", "suggest", "consider", "implement",
	"start with", "begin by", "first step", "priority", "critical",
	"must", "need to", "important to", "key is", "focus on",
}

// conflictIndicators mark disagreement or alternatives between responses.
var conflictIndicators = []string{
	"however", "alternatively", "on the other hand", "instead",
	"but", "conversely", "in contrast", "unlike", "whereas",
	"disagree", "different approach", "better option",
}

// Priority signal words, checked in tier order: high first, then medium,
// anything else is low.
var (
	priorityHigh   = []string{"critical", "must", "essential", "urgent", "immediately", "first"}
	priorityMedium = []string{"should", "recommend", "important", "consider"}
)
