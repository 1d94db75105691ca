package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/chatindex/internal/config"
)

// Rate limiting defaults, unchanged from the teacher's hand-rolled
// clients: 50 requests/minute with bursts of 5.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second
)

const summarizePrompt = `You are an expert at analyzing and summarizing decisions made in software development conversations.

Your task is to extract and refine a decision from the provided content. The decision should be:
1. Clear and actionable
2. Free of unnecessary context
3. Focused on the "what" and "why" of the decision

Respond with a JSON object containing:
- "summary": a clear, concise summary of the decision (1-2 sentences)
- "reasoning": why this decision was made (optional, if evident from context)
- "alternatives": any alternatives that were considered and rejected (optional, as an array)

Respond ONLY with the JSON object, no additional text.`

// langchainClient refines Candidates into Decisions via a langchaingo
// llms.Model, rate-limited the same way the teacher's Anthropic/OpenAI
// HTTP clients were.
type langchainClient struct {
	model   llms.Model
	limiter *rate.Limiter
}

// NewClient builds a Client from an EnrichmentConfig. Returns a no-op
// Client (Available() == false) when cfg.Enabled is false, so callers
// never need to branch on whether enrichment is configured.
func NewClient(cfg config.EnrichmentConfig) (Client, error) {
	if !cfg.Enabled {
		return noopClient{}, nil
	}
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("enrich: api key required when enrichment is enabled")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "anthropic"
	}

	var (
		model llms.Model
		err   error
	)
	switch provider {
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey.Value())}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err = anthropic.New(opts...)
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey.Value())}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("enrich: unknown provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("enrich: building %s client: %w", provider, err)
	}

	return &langchainClient{
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}, nil
}

func (c *langchainClient) Summarize(ctx context.Context, candidate Candidate) (Decision, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Decision{}, fmt.Errorf("enrich: rate limiter: %w", err)
	}

	prompt := buildPrompt(candidate)

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, summarizePrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTemperature(0.3),
		llms.WithMaxTokens(defaultMaxTokens),
	)
	if err != nil {
		return Decision{}, fmt.Errorf("enrich: generating summary: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Decision{}, fmt.Errorf("enrich: empty response from model")
	}

	return parseDecision(resp.Choices[0].Content, candidate.Confidence)
}

func (c *langchainClient) Available() bool {
	return c.model != nil
}

func buildPrompt(candidate Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pattern matched: %s\nConfidence: %.2f\n\nDecision content:\n%s",
		candidate.PatternMatched, candidate.Confidence, candidate.Content)
	if len(candidate.Context) > 0 {
		b.WriteString("\n\nContext:\n")
		b.WriteString(strings.Join(candidate.Context, "\n---\n"))
	}
	return b.String()
}

// decisionJSON is the shape the prompt asks the model to respond with.
type decisionJSON struct {
	Summary      string   `json:"summary"`
	Reasoning    string   `json:"reasoning"`
	Alternatives []string `json:"alternatives"`
}

// parseDecision extracts the JSON object from raw (tolerating leading/
// trailing prose some models add despite instructions) and falls back to
// using the raw text itself as the summary if no valid JSON is found.
func parseDecision(raw string, fallbackConfidence float64) (Decision, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return Decision{Summary: strings.TrimSpace(raw), Confidence: fallbackConfidence}, nil
	}

	var dj decisionJSON
	if err := json.Unmarshal([]byte(raw[start:end+1]), &dj); err != nil {
		return Decision{Summary: strings.TrimSpace(raw), Confidence: fallbackConfidence}, nil
	}

	return Decision{
		Summary:      dj.Summary,
		Reasoning:    dj.Reasoning,
		Alternatives: dj.Alternatives,
		Confidence:   fallbackConfidence,
	}, nil
}

// noopClient is used when enrichment is disabled; Summarize is never
// actually called by well-behaved orchestration code since Available()
// reports false, but it still returns a deterministic, LLM-free decision
// built straight from the candidate rather than erroring, so a caller
// that forgets the Available() check degrades instead of failing.
type noopClient struct{}

func (noopClient) Summarize(_ context.Context, candidate Candidate) (Decision, error) {
	return Decision{Summary: firstSentence(candidate.Content), Confidence: candidate.Confidence}, nil
}

func (noopClient) Available() bool { return false }

func firstSentence(content string) string {
	const maxLen = 200
	for i, r := range content {
		if r == '.' || r == '!' || r == '?' {
			if i < len(content)-1 {
				return content[:i+1]
			}
		}
		if i >= maxLen {
			break
		}
	}
	if len(content) > maxLen {
		return content[:maxLen] + "..."
	}
	return content
}
