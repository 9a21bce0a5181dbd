package review

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/zombor/receipt-review/internal/overlay"
	"github.com/zombor/receipt-review/internal/scanning"
)

var (
	// ErrRecognitionInProgress is returned when a recognition is started while another one is running
	ErrRecognitionInProgress = errors.New("a recognition is already in progress")

	// ErrNoSession is returned by review operations when no review session is active
	ErrNoSession = errors.New("no active review session")

	// ErrNoCapture is returned when a capture does not exist or none is pending
	ErrNoCapture = errors.New("capture not found")

	// ErrNoAPIKeys is returned when settings are saved without any vendor key
	ErrNoAPIKeys = errors.New("at least one API key is required")

	// ErrNoResult is returned when a capture has no recognized record to review
	ErrNoResult = errors.New("result not found")

	// ErrUnreadableImage is returned when an upload cannot be decoded as an image
	ErrUnreadableImage = errors.New("unreadable image")
)

// Capture represents a receipt image waiting for, or used by, recognition
type Capture struct {
	ID               string          `json:"id"`
	Filename         string          `json:"filename"`
	OriginalFilename string          `json:"original_filename"`
	Width            int             `json:"width"`
	Height           int             `json:"height"`
	CapturedAt       time.Time       `json:"captured_at"`
	RawResponse      string          `json:"raw_response,omitempty"` // Last vendor answer, kept even when it could not be parsed
	Vendor           scanning.Vendor `json:"vendor,omitempty"`
}

// Size returns the intrinsic pixel size of the stored image
func (c *Capture) Size() overlay.Size {
	return overlay.Size{Width: c.Width, Height: c.Height}
}

// Settings holds the per-vendor API keys and the last vendor used
type Settings struct {
	APIKeys    map[scanning.Vendor]string `json:"api_keys"`
	LastVendor scanning.Vendor            `json:"last_vendor,omitempty"`
}

// Handoff carries a discarded review back to the capture stage
type Handoff struct {
	CaptureID     string          `json:"capture_id"`
	Record        json.RawMessage `json:"record"`
	PreserveImage bool            `json:"preserve_image"`
}

// ExportResult names the files written by an export
type ExportResult struct {
	JSONFile  string `json:"json_file"`
	ImageFile string `json:"image_file"`
}
