package summarize

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models/"

// Gemini calls the generateContent endpoint of the Gemini API.
type Gemini struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewGemini returns a Gemini summarizer. An empty endpoint is derived from model.
func NewGemini(apiKey, endpoint, model string, timeout time.Duration) *Gemini {
	if endpoint == "" {
		endpoint = geminiBaseURL + model + ":generateContent"
	}
	return &Gemini{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   newClient(timeout),
	}
}

// Summarize sends prompt as a single user part.
func (g *Gemini) Summarize(ctx context.Context, prompt string) (Result, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}
	header := http.Header{}
	header.Set("X-Goog-Api-Key", g.apiKey)

	var resp geminiResponse
	if err := postJSON(ctx, g.client, g.endpoint, header, reqBody, &resp); err != nil {
		return Result{}, fmt.Errorf("gemini: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return Result{}, fmt.Errorf("gemini: %w: no candidates", ErrMalformedResponse)
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 || strings.TrimSpace(parts[0].Text) == "" {
		return Result{}, fmt.Errorf("gemini: %w: no text part", ErrMalformedResponse)
	}

	return Result{
		Text:        parts[0].Text,
		TotalTokens: resp.UsageMetadata.TotalTokenCount,
	}, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}
