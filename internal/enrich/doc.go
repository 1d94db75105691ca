// Package enrich provides the optional LLM-backed decision-summarization
// step described in spec.md's supplemental Decision type: given a
// heuristically-detected candidate decision, ask an LLM to turn it into a
// short, structured summary, then fold that summary back into a
// model.Document so it rides the same lexical/vector commit path as any
// other document. Disabled by default (config.EnrichmentConfig.Enabled),
// and a no-op Client keeps the orchestrator's call site unconditional
// when it is.
//
// Grounded on the teacher's internal/extraction package (Summarizer
// interface, DecisionCandidate/Decision types, the heuristic pattern
// matcher that produces candidates), with the teacher's hand-rolled
// Anthropic/OpenAI HTTP clients in llm.go replaced by
// github.com/tmc/langchaingo's provider-agnostic llms.Model interface.
package enrich
