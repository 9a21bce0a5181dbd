package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedResponse is returned when no JSON object can be located in a vendor response
	ErrMalformedResponse = errors.New("malformed recognition response")

	// ErrVendorAuthMissing is returned when no API key is configured for the selected vendor
	ErrVendorAuthMissing = errors.New("no API key configured")

	// ErrUnknownVendor is returned for a vendor name outside the supported set
	ErrUnknownVendor = errors.New("unknown vendor")
)

// Vendor identifies an external multimodal recognition service
type Vendor string

const (
	VendorGemini  Vendor = "gemini"
	VendorClaude  Vendor = "claude"
	VendorChatGPT Vendor = "chatgpt"
)

// Vendors lists every supported vendor in display order
var Vendors = []Vendor{VendorGemini, VendorClaude, VendorChatGPT}

// ParseVendor converts a user supplied name into a Vendor
func ParseVendor(name string) (Vendor, error) {
	v := Vendor(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Vendors {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVendor, name)
}

// DisplayName returns the human readable vendor name
func (v Vendor) DisplayName() string {
	switch v {
	case VendorGemini:
		return "Gemini"
	case VendorClaude:
		return "Claude"
	case VendorChatGPT:
		return "ChatGPT"
	default:
		return string(v)
	}
}

// VendorRequestError is returned when a vendor answers with a non-success HTTP status
type VendorRequestError struct {
	Vendor     Vendor
	StatusCode int
	Body       string
}

func (e *VendorRequestError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s OCR request failed: %d - %s", e.Vendor.DisplayName(), e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s OCR request failed: %d", e.Vendor.DisplayName(), e.StatusCode)
}

// Recognizer sends a receipt image to a vendor and returns the raw response text
type Recognizer interface {
	// Vendor reports which service this recognizer calls
	Vendor() Vendor
	// Recognize sends the PNG image with the shared prompt and returns the vendor's text answer.
	// The text is expected to contain JSON but is not validated here.
	Recognize(ctx context.Context, image []byte, apiKey string) (string, error)
}
