package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Gemini implements the Recognizer interface using Google Gemini
type Gemini struct {
	modelName string
	opts      []option.ClientOption
}

// NewGemini creates a new Gemini Recognizer instance. The API key is supplied
// per call, so a client is opened for each recognition.
func NewGemini(modelName string, opts ...option.ClientOption) *Gemini {
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	return &Gemini{
		modelName: modelName,
		opts:      opts,
	}
}

// Vendor returns VendorGemini
func (g *Gemini) Vendor() Vendor {
	return VendorGemini
}

// Recognize sends the receipt image to Gemini and returns the text parts of the first candidate
func (g *Gemini) Recognize(ctx context.Context, image []byte, apiKey string) (string, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("creating gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.modelName)

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	resp, err := model.GenerateContent(ctx,
		genai.Text(receiptScanPrompt),
		genai.ImageData("png", image),
	)
	if err != nil {
		return "", geminiError(err)
	}

	return geminiResponseText(resp), nil
}

// geminiResponseText joins the text parts of the first candidate
func geminiResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			texts = append(texts, string(text))
		}
	}
	return strings.Join(texts, "\n")
}

// geminiError surfaces the HTTP status carried by Google API errors
func geminiError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &VendorRequestError{Vendor: VendorGemini, StatusCode: gErr.Code, Body: gErr.Message}
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPCode() > 0 {
		return &VendorRequestError{Vendor: VendorGemini, StatusCode: apiErr.HTTPCode(), Body: apiErr.Error()}
	}

	return fmt.Errorf("generating content: %w", err)
}
