/*
Package types provides the shared type definitions for the consult engine.

types is the lowest-level package with no internal dependencies. It defines
the contracts shared by registry, dispatch, synthesis, feedback and the API
layer, so that none of them need to import each other:

  - ExpertConfig    — one entry of the expert registry (domain, weight, timeout)
  - ExpertResult    — typed outcome of a single expert call (Success/Error/Timeout)
  - Theme           — a recommendation phrase supported by ≥2 experts
  - Conflict        — a pairwise disagreement between two expert responses
  - ActionItem      — a prioritized, deduplicated recommendation
  - SynthesisReport — the aggregated analysis for one question
  - Error/ErrorCode — structured error taxonomy (timeout, transport, validation)
*/
package types
