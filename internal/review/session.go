package review

import (
	"encoding/json"
	"fmt"

	"github.com/zombor/receipt-review/internal/overlay"
	"github.com/zombor/receipt-review/internal/scanning"
)

// Overlay is the highlight drawn over the displayed receipt for the focused field
type Overlay struct {
	Visible bool               `json:"visible"`
	Field   scanning.FieldName `json:"field,omitempty"`
	Rect    overlay.Rect       `json:"rect"`
}

// Session owns one recognized record while a user reviews it. Bounding boxes
// are never edited; only field values change. A Session is not safe for
// concurrent use.
type Session struct {
	captureID string
	record    scanning.InvoiceRecord
	intrinsic overlay.Size

	active  scanning.FieldName
	display overlay.Size
}

// NewSession starts a review of record. intrinsic is the pixel size of the
// stored capture, used when the record carries no image size of its own.
func NewSession(captureID string, record scanning.InvoiceRecord, intrinsic overlay.Size) *Session {
	return &Session{
		captureID: captureID,
		record:    record,
		intrinsic: intrinsic,
	}
}

// CaptureID returns the capture the record was recognized from
func (s *Session) CaptureID() string {
	return s.captureID
}

// ActiveField returns the focused field, or "" when none is focused
func (s *Session) ActiveField() scanning.FieldName {
	return s.active
}

// Record returns a copy of the record under review
func (s *Session) Record() scanning.InvoiceRecord {
	return s.record
}

// LoadField focuses name and returns its overlay for an image rendered at display
func (s *Session) LoadField(name scanning.FieldName, display overlay.Size) (Overlay, error) {
	if _, ok := s.record.Field(name); !ok {
		return Overlay{}, fmt.Errorf("%w: %q", scanning.ErrUnknownField, name)
	}
	s.active = name
	s.display = display
	return s.currentOverlay(), nil
}

// Resize recomputes the focused field's overlay after the rendered image changed size
func (s *Session) Resize(display overlay.Size) Overlay {
	s.display = display
	return s.currentOverlay()
}

// UnfocusField clears the focused field and hides the overlay
func (s *Session) UnfocusField() Overlay {
	s.active = ""
	return Overlay{}
}

// Overlay returns the current overlay without changing focus
func (s *Session) Overlay() Overlay {
	return s.currentOverlay()
}

func (s *Session) currentOverlay() Overlay {
	field, ok := s.record.Field(s.active)
	if !ok {
		return Overlay{}
	}

	source := overlay.SourceSize(s.record.ImageSize(), s.intrinsic)
	rect, visible := overlay.MapToDisplay(source, s.display, field.Box)
	if !visible {
		return Overlay{Field: s.active}
	}
	return Overlay{Visible: true, Field: s.active, Rect: rect}
}

// SetFieldValue replaces the text of a field, leaving its bounding box as recognized
func (s *Session) SetFieldValue(name scanning.FieldName, value string) error {
	field, ok := s.record.Field(name)
	if !ok {
		return fmt.Errorf("%w: %q", scanning.ErrUnknownField, name)
	}
	field.Value = value
	return nil
}

// Export projects the record to its exported form
func (s *Session) Export() scanning.ExportedRecord {
	return s.record.Export()
}

// DiscardAndReturn packages the full record, boxes included, for the capture
// stage and asks it to keep the captured image.
func (s *Session) DiscardAndReturn() (*Handoff, error) {
	data, err := json.Marshal(s.record)
	if err != nil {
		return nil, fmt.Errorf("marshaling record: %w", err)
	}
	return &Handoff{
		CaptureID:     s.captureID,
		Record:        data,
		PreserveImage: true,
	}, nil
}
