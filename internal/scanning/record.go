package scanning

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zombor/receipt-review/internal/overlay"
)

// ErrUnknownField is returned for a field name outside the six invoice fields
var ErrUnknownField = errors.New("unknown field")

// FieldName is the semantic key of one extracted datum
type FieldName string

const (
	PayeeName          FieldName = "payeeName"
	IssueDate          FieldName = "issueDate"
	AmountIncludingTax FieldName = "amountIncludingTax"
	Currency           FieldName = "currency"
	RegistrationNumber FieldName = "registrationNumber"
	Notes              FieldName = "notes"
)

// FieldNames lists the invoice fields in priority order
var FieldNames = []FieldName{
	PayeeName,
	IssueDate,
	AmountIncludingTax,
	Currency,
	RegistrationNumber,
	Notes,
}

// ParseFieldName validates a field name
func ParseFieldName(name string) (FieldName, error) {
	for _, known := range FieldNames {
		if FieldName(name) == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Field is one recognized value and where in the source image it was read.
// A zero width or height means the value has no visual provenance.
type Field struct {
	Value string `json:"value"`
	overlay.Box
}

// InvoiceRecord is the extracted and editable receipt document
type InvoiceRecord struct {
	ImageWidthPx       int   `json:"imageWidthPx"`
	ImageHeightPx      int   `json:"imageHeightPx"`
	PayeeName          Field `json:"payeeName"`
	IssueDate          Field `json:"issueDate"`
	AmountIncludingTax Field `json:"amountIncludingTax"`
	Currency           Field `json:"currency"`
	RegistrationNumber Field `json:"registrationNumber"`
	Notes              Field `json:"notes"`
}

// Field returns a pointer to the named field
func (r *InvoiceRecord) Field(name FieldName) (*Field, bool) {
	switch name {
	case PayeeName:
		return &r.PayeeName, true
	case IssueDate:
		return &r.IssueDate, true
	case AmountIncludingTax:
		return &r.AmountIncludingTax, true
	case Currency:
		return &r.Currency, true
	case RegistrationNumber:
		return &r.RegistrationNumber, true
	case Notes:
		return &r.Notes, true
	default:
		return nil, false
	}
}

// ImageSize returns the image dimensions reported by the recognizer (zero when unknown)
func (r *InvoiceRecord) ImageSize() overlay.Size {
	return overlay.Size{Width: r.ImageWidthPx, Height: r.ImageHeightPx}
}

// ExportedRecord is the on-disk projection of an InvoiceRecord. Bounding boxes are dropped.
type ExportedRecord struct {
	ImageWidthPx       int    `json:"imageWidthPx"`
	ImageHeightPx      int    `json:"imageHeightPx"`
	PayeeName          string `json:"payeeName"`
	IssueDate          string `json:"issueDate"`
	AmountIncludingTax string `json:"amountIncludingTax"`
	Currency           string `json:"currency"`
	RegistrationNumber string `json:"registrationNumber"`
	Notes              string `json:"notes"`
}

// Export builds the minimized projection of the record
func (r *InvoiceRecord) Export() ExportedRecord {
	return ExportedRecord{
		ImageWidthPx:       r.ImageWidthPx,
		ImageHeightPx:      r.ImageHeightPx,
		PayeeName:          r.PayeeName.Value,
		IssueDate:          r.IssueDate.Value,
		AmountIncludingTax: r.AmountIncludingTax.Value,
		Currency:           r.Currency.Value,
		RegistrationNumber: r.RegistrationNumber.Value,
		Notes:              r.Notes.Value,
	}
}

// MarshalExport renders the export file contents
func MarshalExport(e ExportedRecord) ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling export: %w", err)
	}
	return data, nil
}

// ParseExport reads an exported file back into a record. Fields come back
// without provenance since the export does not carry bounding boxes.
func ParseExport(data []byte) (*InvoiceRecord, error) {
	var e ExportedRecord
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshaling export: %w", err)
	}
	return &InvoiceRecord{
		ImageWidthPx:       e.ImageWidthPx,
		ImageHeightPx:      e.ImageHeightPx,
		PayeeName:          Field{Value: e.PayeeName},
		IssueDate:          Field{Value: e.IssueDate},
		AmountIncludingTax: Field{Value: e.AmountIncludingTax},
		Currency:           Field{Value: e.Currency},
		RegistrationNumber: Field{Value: e.RegistrationNumber},
		Notes:              Field{Value: e.Notes},
	}, nil
}
