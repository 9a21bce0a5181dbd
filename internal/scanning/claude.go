package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Claude implements the Recognizer interface using the Anthropic Messages API
type Claude struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewClaude creates a new Claude Recognizer instance
func NewClaude(baseURL string, modelName string) *Claude {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if modelName == "" {
		modelName = "claude-3-7-sonnet-20250219"
	}

	return &Claude{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   modelName,
		client:  &http.Client{},
	}
}

// claudeRequest represents the request body for the Messages API
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type   string             `json:"type"`
	Text   string             `json:"text,omitempty"`
	Source *claudeImageSource `json:"source,omitempty"`
}

type claudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// claudeResponse represents the response from the Messages API
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

// Vendor returns VendorClaude
func (c *Claude) Vendor() Vendor {
	return VendorClaude
}

// Recognize sends the receipt image to Claude and returns the text blocks of the answer
func (c *Claude) Recognize(ctx context.Context, image []byte, apiKey string) (string, error) {
	reqBody := claudeRequest{
		Model:     c.model,
		MaxTokens: 1024,
		Messages: []claudeMessage{
			{
				Role: "user",
				Content: []claudeContent{
					{
						Type: "image",
						Source: &claudeImageSource{
							Type:      "base64",
							MediaType: "image/png",
							Data:      base64.StdEncoding.EncodeToString(image),
						},
					},
					{
						Type: "text",
						Text: receiptScanPrompt,
					},
				},
			},
		},
	}

	headers := map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": "2023-06-01",
	}

	var resp claudeResponse
	url := fmt.Sprintf("%s/v1/messages", c.baseURL)
	if err := postJSON(ctx, c.client, VendorClaude, url, headers, reqBody, &resp); err != nil {
		return "", err
	}

	var texts []string
	for _, part := range resp.Content {
		if part.Type == "text" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}
