// Package synthesis aggregates expert responses into a structured analysis:
// common themes, cross-expert conflicts, prioritized action items and a
// scalar consensus score. The engine is a pure function of its input result
// set; it performs no I/O and holds no cross-question state.
package synthesis

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/consult-sh/consult/types"
)

const (
	maxThemes         = 10
	maxConflicts      = 5
	maxActions        = 10
	maxEvidenceQuotes = 3

	// Candidate phrases keep between minPhraseTokens and maxPhraseTokens
	// words after punctuation is stripped.
	minPhraseTokens = 3
	maxPhraseTokens = 15

	// evidenceOverlap is the minimum token-overlap ratio between a theme
	// and a sentence for the sentence to count as an evidence quote.
	evidenceOverlap = 0.3

	minActionLen       = 20
	maxActionLen       = 200
	maxTopicLen        = 100
	maxTopicSentence   = 200
	maxPositionLen     = 150
	maxEvidenceSentLen = 300

	// actionMergeKeyLen groups near-duplicate actions by their first
	// lowercased characters.
	actionMergeKeyLen = 50

	// conflictPenalty is subtracted from the consensus score once per
	// detected conflict.
	conflictPenalty = 0.1
)

var (
	sentenceSplitRe = regexp.MustCompile(`[.!?]\s+`)
	punctStripRe    = regexp.MustCompile(`[^\w\s-]`)
)

// Engine aggregates one dispatch's worth of expert results. Only successful
// results with a non-empty response feed the extraction passes; failed and
// timed-out results are excluded from synthesis but still counted in the
// report's TotalExperts.
type Engine struct {
	responses []types.ExpertResult
	total     int
}

// NewEngine builds an engine over the full result set of one dispatch.
func NewEngine(results []types.ExpertResult) *Engine {
	e := &Engine{total: len(results)}
	for _, r := range results {
		if r.Succeeded() {
			e.responses = append(e.responses, r)
		}
	}
	return e
}

// SuccessfulCount returns the number of results feeding synthesis.
func (e *Engine) SuccessfulCount() int { return len(e.responses) }

// Synthesize runs all four extraction passes and assembles the report.
// Themes and conflicts are computed once and reused for the consensus
// score; the passes are pure, so this changes nothing observable.
func (e *Engine) Synthesize(question string) types.SynthesisReport {
	themes := e.ExtractThemes()
	conflicts := e.DetectConflicts()
	actions := e.ExtractActions()

	coverage := make(map[string]int)
	for _, r := range e.responses {
		coverage[r.Domain]++
	}

	return types.SynthesisReport{
		Question:          question,
		Themes:            themes,
		Conflicts:         conflicts,
		Actions:           actions,
		DomainCoverage:    coverage,
		ConsensusScore:    e.consensusFrom(themes, conflicts),
		TotalExperts:      e.total,
		SuccessfulExperts: len(e.responses),
		Timestamp:         time.Now().UTC(),
	}
}

// ExtractThemes finds recommendation phrases shared by at least two experts.
// Confidence is the fraction of successful experts supporting the phrase.
func (e *Engine) ExtractThemes() []types.Theme {
	if len(e.responses) == 0 {
		return []types.Theme{}
	}

	// Phrase -> supporting expert ids, preserving discovery order so the
	// confidence sort below stays deterministic across runs.
	var order []string
	support := make(map[string][]string)
	for _, r := range e.responses {
		for _, phrase := range keyPhrases(r.Response) {
			if _, seen := support[phrase]; !seen {
				order = append(order, phrase)
			}
			support[phrase] = append(support[phrase], r.ExpertID)
		}
	}

	themes := make([]types.Theme, 0)
	for _, phrase := range order {
		experts := support[phrase]
		if len(experts) < 2 {
			continue
		}
		themes = append(themes, types.Theme{
			Text:              phrase,
			SupportingExperts: experts,
			Confidence:        float64(len(experts)) / float64(len(e.responses)),
			EvidenceQuotes:    e.findEvidence(phrase, experts),
		})
	}

	sort.SliceStable(themes, func(i, j int) bool {
		return themes[i].Confidence > themes[j].Confidence
	})
	if len(themes) > maxThemes {
		themes = themes[:maxThemes]
	}
	return themes
}

// keyPhrases extracts the candidate recommendation phrases of one response:
// sentences containing an action indicator, stripped of punctuation, with a
// token count inside the phrase window. Deduplicated per response.
func keyPhrases(text string) []string {
	var phrases []string
	seen := make(map[string]struct{})

	for _, sentence := range splitSentences(strings.ToLower(text)) {
		if !containsAny(sentence, actionIndicators) {
			continue
		}
		cleaned := punctStripRe.ReplaceAllString(sentence, "")
		words := strings.Fields(cleaned)
		if len(words) < minPhraseTokens || len(words) > maxPhraseTokens {
			continue
		}
		phrase := strings.Join(words, " ")
		if _, dup := seen[phrase]; !dup {
			seen[phrase] = struct{}{}
			phrases = append(phrases, phrase)
		}
	}
	return phrases
}

// findEvidence collects, per supporting expert, the first sentence whose
// token overlap with the theme exceeds the threshold. Capped at three.
func (e *Engine) findEvidence(phrase string, experts []string) []string {
	supporting := make(map[string]struct{}, len(experts))
	for _, id := range experts {
		supporting[id] = struct{}{}
	}
	phraseWords := tokenSet(phrase)

	var evidence []string
	for _, r := range e.responses {
		if _, ok := supporting[r.ExpertID]; !ok {
			continue
		}
		for _, sentence := range splitSentences(r.Response) {
			sentWords := tokenSet(strings.ToLower(sentence))
			if overlapRatio(phraseWords, sentWords) > evidenceOverlap && len(sentence) < maxEvidenceSentLen {
				evidence = append(evidence, fmt.Sprintf("[%s] %s", r.ExpertID, strings.TrimSpace(sentence)))
				break
			}
		}
		if len(evidence) == maxEvidenceQuotes {
			break
		}
	}
	return evidence
}

// DetectConflicts compares every unordered pair of successful results and
// reports a conflict when either response carries a contrast indicator.
// Panels are small (single-digit to low tens), so the O(n²) pass is fine.
// A pair contributes at most one conflict; capped at five in discovery
// order.
func (e *Engine) DetectConflicts() []types.Conflict {
	if len(e.responses) < 2 {
		return []types.Conflict{}
	}

	conflicts := make([]types.Conflict, 0)
	seenPairs := make(map[string]struct{})

	for i, r1 := range e.responses {
		for _, r2 := range e.responses[i+1:] {
			c, ok := e.conflictBetween(r1, r2)
			if !ok {
				continue
			}
			key := pairKey(r1.ExpertID, r2.ExpertID)
			if _, dup := seenPairs[key]; dup {
				continue
			}
			seenPairs[key] = struct{}{}
			conflicts = append(conflicts, c)
		}
	}

	if len(conflicts) > maxConflicts {
		conflicts = conflicts[:maxConflicts]
	}
	return conflicts
}

func (e *Engine) conflictBetween(r1, r2 types.ExpertResult) (types.Conflict, bool) {
	lower1 := strings.ToLower(r1.Response)
	lower2 := strings.ToLower(r2.Response)

	for _, indicator := range conflictIndicators {
		if !strings.Contains(lower1, indicator) && !strings.Contains(lower2, indicator) {
			continue
		}
		topic := conflictTopic(r1.Response, r2.Response, indicator)
		if topic == "" {
			return types.Conflict{}, false
		}
		return types.Conflict{
			Topic: topic,
			Positions: map[string]string{
				r1.ExpertID: positionOn(r1.Response, topic),
				r2.ExpertID: positionOn(r2.Response, topic),
			},
			// Severity grading is unimplemented; every detected conflict
			// is reported as medium. See DESIGN.md.
			Severity:       types.SeverityMedium,
			ResolutionHint: "Consider domain context when choosing approach",
		}, true
	}
	return types.Conflict{}, false
}

// conflictTopic returns the first short sentence containing the indicator,
// from either response, truncated to the topic cap.
func conflictTopic(text1, text2, indicator string) string {
	for _, text := range []string{text1, text2} {
		for _, sentence := range splitSentences(text) {
			if strings.Contains(strings.ToLower(sentence), indicator) && len(sentence) < maxTopicSentence {
				return truncateTo(strings.TrimSpace(sentence), maxTopicLen)
			}
		}
	}
	return ""
}

// positionOn extracts an expert's stance on a topic: the first sentence
// sharing at least two tokens with the topic's leading five tokens, or the
// head of the response when nothing qualifies.
func positionOn(text, topic string) string {
	topicWords := strings.Fields(strings.ToLower(topic))
	if len(topicWords) > 5 {
		topicWords = topicWords[:5]
	}
	topicSet := make(map[string]struct{}, len(topicWords))
	for _, w := range topicWords {
		topicSet[w] = struct{}{}
	}

	for _, sentence := range splitSentences(text) {
		shared := 0
		for w := range tokenSet(strings.ToLower(sentence)) {
			if _, ok := topicSet[w]; ok {
				shared++
			}
		}
		if shared >= 2 {
			return truncateTo(strings.TrimSpace(sentence), maxPositionLen)
		}
	}
	return truncateTo(text, maxPositionLen) + "..."
}

// ExtractActions pulls prioritized recommendations out of each response and
// merges near-duplicates, keeping the highest priority in each group and
// the union of source experts.
func (e *Engine) ExtractActions() []types.ActionItem {
	var actions []types.ActionItem
	for _, r := range e.responses {
		actions = append(actions, actionsFrom(r)...)
	}

	merged := mergeActions(actions)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Priority.Rank() < merged[j].Priority.Rank()
	})
	if len(merged) > maxActions {
		merged = merged[:maxActions]
	}
	if merged == nil {
		merged = []types.ActionItem{}
	}
	return merged
}

func actionsFrom(r types.ExpertResult) []types.ActionItem {
	var actions []types.ActionItem
	for _, sentence := range splitSentences(r.Response) {
		lower := strings.ToLower(sentence)
		if len(sentence) <= minActionLen || !containsAny(lower, actionIndicators) {
			continue
		}
		actions = append(actions, types.ActionItem{
			Action:        truncateTo(strings.TrimSpace(sentence), maxActionLen),
			Priority:      determinePriority(lower),
			SourceExperts: []string{r.ExpertID},
			Domain:        r.Domain,
			Rationale:     fmt.Sprintf("Recommended by %s", r.ExpertID),
		})
	}
	return actions
}

func determinePriority(lower string) types.ActionPriority {
	if containsAny(lower, priorityHigh) {
		return types.PriorityHigh
	}
	if containsAny(lower, priorityMedium) {
		return types.PriorityMedium
	}
	return types.PriorityLow
}

// mergeActions groups actions by their leading lowercased characters.
// Each group keeps the text of its highest-priority member, unions the
// source experts, and restates the rationale with the group size.
func mergeActions(actions []types.ActionItem) []types.ActionItem {
	if len(actions) == 0 {
		return nil
	}

	var order []string
	groups := make(map[string][]types.ActionItem)
	for _, a := range actions {
		key := truncateTo(strings.ToLower(a.Action), actionMergeKeyLen)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], a)
	}

	merged := make([]types.ActionItem, 0, len(order))
	for _, key := range order {
		group := groups[key]
		best := group[0]
		expertSet := make(map[string]struct{})
		for _, a := range group {
			if a.Priority.Rank() < best.Priority.Rank() {
				best = a
			}
			for _, id := range a.SourceExperts {
				expertSet[id] = struct{}{}
			}
		}
		experts := make([]string, 0, len(expertSet))
		for id := range expertSet {
			experts = append(experts, id)
		}
		sort.Strings(experts)

		merged = append(merged, types.ActionItem{
			Action:        best.Action,
			Priority:      best.Priority,
			SourceExperts: experts,
			Domain:        best.Domain,
			Rationale:     fmt.Sprintf("Recommended by %d model(s)", len(experts)),
		})
	}
	return merged
}

// CalculateConsensus scores cross-expert agreement in [0,1]. With fewer
// than two successful responses there is nothing to disagree about and the
// score is exactly 1.0.
func (e *Engine) CalculateConsensus() float64 {
	if len(e.responses) < 2 {
		return 1.0
	}
	return e.consensusFrom(e.ExtractThemes(), e.DetectConflicts())
}

func (e *Engine) consensusFrom(themes []types.Theme, conflicts []types.Conflict) float64 {
	if len(e.responses) < 2 {
		return 1.0
	}

	var themeSum float64
	for _, t := range themes {
		themeSum += t.Confidence
	}
	divisor := len(themes)
	if divisor < 1 {
		divisor = 1
	}
	score := themeSum/float64(divisor) - conflictPenalty*float64(len(conflicts))

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ---- text helpers ----

func splitSentences(text string) []string {
	return sentenceSplitRe.Split(text, -1)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

func overlapRatio(phrase, sentence map[string]struct{}) float64 {
	if len(phrase) == 0 {
		return 0
	}
	shared := 0
	for w := range phrase {
		if _, ok := sentence[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(phrase))
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// truncateTo caps s at n runes, never splitting a multibyte character.
func truncateTo(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
