package interpret

import (
	"fmt"

	"github.com/terracehq/terrace/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// NewClient creates an interpretive selector based on the provider name.
// Returns an error if the provider is unknown or the API key is empty (except for mock).
func NewClient(provider, apiKey string) (domain.InterpretiveClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIClient(apiKey), nil

	case ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for Anthropic provider")
		}
		return NewAnthropicClient(apiKey), nil

	case ProviderMock:
		return NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unknown interpret provider: %s (valid options: openai, anthropic, mock)", provider)
	}
}

const selectPrompt = `You are the final selection stage of a memory retrieval pipeline.
Given a query and a list of candidate memory items, choose the items that
actually answer the query. Prefer a small precise set over a large vague one.

Query: %s

Candidates (id | score | snippet):
%s

Respond with JSON only, no prose:
{"chosen": ["<id>", ...], "confidence": 0.0-1.0, "followups": ["optional refined query", ...]}
Include followups only if you are unsure and a narrower query would help.`

type selectionPayload struct {
	Chosen     []string `json:"chosen"`
	Confidence float64  `json:"confidence"`
	Followups  []string `json:"followups,omitempty"`
}
