package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// ChatGPT implements the Recognizer interface using the OpenAI Chat Completions API.
// It is the only vendor given the strict machine-checked schema.
type ChatGPT struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewChatGPT creates a new ChatGPT Recognizer instance
func NewChatGPT(baseURL string, modelName string) *ChatGPT {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if modelName == "" {
		modelName = "gpt-4o"
	}

	return &ChatGPT{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   modelName,
		client:  &http.Client{},
	}
}

type chatRequest struct {
	Model          string             `json:"model"`
	Messages       []chatMessage      `json:"messages"`
	ResponseFormat chatResponseFormat `json:"response_format"`
	MaxTokens      int                `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponseFormat struct {
	Type       string         `json:"type"`
	JSONSchema chatJSONSchema `json:"json_schema"`
}

type chatJSONSchema struct {
	Name   string      `json:"name"`
	Strict bool        `json:"strict"`
	Schema *jsonSchema `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Vendor returns VendorChatGPT
func (c *ChatGPT) Vendor() Vendor {
	return VendorChatGPT
}

// Recognize sends the receipt image to ChatGPT and returns the first choice's content
func (c *ChatGPT) Recognize(ctx context.Context, image []byte, apiKey string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []chatContent{
					{
						Type: "text",
						Text: receiptScanPrompt,
					},
					{
						Type: "image_url",
						ImageURL: &chatImageURL{
							URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
						},
					},
				},
			},
		},
		ResponseFormat: chatResponseFormat{
			Type: "json_schema",
			JSONSchema: chatJSONSchema{
				Name:   "InvoiceFields",
				Strict: true,
				Schema: buildSchema(true),
			},
		},
		MaxTokens: 1024,
	}

	headers := map[string]string{
		"Authorization": "Bearer " + apiKey,
	}

	var resp chatResponse
	url := fmt.Sprintf("%s/v1/chat/completions", c.baseURL)
	if err := postJSON(ctx, c.client, VendorChatGPT, url, headers, reqBody, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
