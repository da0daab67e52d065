package summarize

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAI calls an OpenAI-compatible chat completions API.
type OpenAI struct {
	apiKey    string
	model     string
	maxTokens int
	endpoint  string
	client    *http.Client
}

// NewOpenAI returns an OpenAI-compatible summarizer. An empty endpoint uses
// the public OpenAI API.
func NewOpenAI(apiKey, endpoint, model string, maxTokens int, timeout time.Duration) *OpenAI {
	if endpoint == "" {
		endpoint = openAIEndpoint
	}
	return &OpenAI{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		endpoint:  endpoint,
		client:    newClient(timeout),
	}
}

// Summarize sends prompt as a single user message.
func (o *OpenAI) Summarize(ctx context.Context, prompt string) (Result, error) {
	reqBody := chatRequest{
		Model:     o.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: o.maxTokens,
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+o.apiKey)

	var resp chatResponse
	if err := postJSON(ctx, o.client, o.endpoint, header, reqBody, &resp); err != nil {
		return Result{}, fmt.Errorf("openai: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("openai: %w: empty choices", ErrMalformedResponse)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return Result{}, fmt.Errorf("openai: %w: empty content", ErrMalformedResponse)
	}

	return Result{Text: content, TotalTokens: resp.Usage.TotalTokens}, nil
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}
