package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
)

const instruction = `You moderate a board where people confess their own failures.
Answer with exactly one word, ACCEPT or REJECT.
ACCEPT posts about a failure, a mistake, a misfortune, a blunder or self-deprecation.
REJECT everything else, including success stories, bragging, spam, advertisements, URLs, and incoherent or meaningless text.
If you are unsure, answer REJECT.`

var ErrEmptyCompletion = errors.New("moderation provider returned no choices")

// Client classifies text with an OpenAI-compatible chat completions API.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func NewClient(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResp struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Classify(ctx context.Context, text string) (Verdict, error) {
	marshaledReq, err := json.Marshal(chatReq{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: instruction},
			{Role: "user", Content: text},
		},
		Temperature: 0,
		MaxTokens:   5,
	})
	if err != nil {
		return Accept, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(marshaledReq))
	if err != nil {
		return Accept, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Accept, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Accept, fmt.Errorf("moderation provider status %d: %s", resp.StatusCode, body)
	}

	var unmarshaledResp chatResp
	if err := json.NewDecoder(resp.Body).Decode(&unmarshaledResp); err != nil {
		return Accept, err
	}
	if len(unmarshaledResp.Choices) == 0 {
		return Accept, ErrEmptyCompletion
	}

	return parseVerdict(unmarshaledResp.Choices[0].Message.Content), nil
}

// Anything that isn't a clear ACCEPT counts as a rejection.
func parseVerdict(answer string) Verdict {
	answer = strings.ToUpper(strings.TrimSpace(answer))
	answer = strings.Trim(answer, ".!\"'` ")
	if answer == "ACCEPT" {
		return Accept
	}
	return Reject
}
