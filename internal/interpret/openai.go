package interpret

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/terracehq/terrace/internal/domain"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	openAIModel   = "gpt-4o-mini"
)

type OpenAIClient struct {
	apiKey     string
	httpClient *http.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(openAIRequest{
		Model:       openAIModel,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIChatURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result openAIResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("chat API error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Select(ctx context.Context, query string, candidates []domain.Candidate) (*domain.InterpretiveSelection, error) {
	raw, err := c.complete(ctx, fmt.Sprintf(selectPrompt, query, formatCandidates(candidates)))
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return parseSelection(raw, candidates)
}

// formatCandidates renders the candidate list for the prompt.
func formatCandidates(candidates []domain.Candidate) string {
	var sb strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&sb, "%s | %.2f | %s\n", c.ItemID, c.Score, c.Snippet)
	}
	return sb.String()
}

// parseSelection decodes the model's JSON answer, tolerating code fences and
// dropping ids that were not in the candidate set.
func parseSelection(raw string, candidates []domain.Candidate) (*domain.InterpretiveSelection, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var payload selectionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("parse selection: %w", err)
	}

	known := make(map[uuid.UUID]bool, len(candidates))
	for _, c := range candidates {
		known[c.ItemID] = true
	}

	sel := &domain.InterpretiveSelection{
		Confidence: payload.Confidence,
		Followups:  payload.Followups,
	}
	for _, idStr := range payload.Chosen {
		id, err := uuid.Parse(idStr)
		if err != nil || !known[id] {
			continue
		}
		sel.Chosen = append(sel.Chosen, id)
	}
	return sel, nil
}
