package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zombor/receipt-review/internal/overlay"
)

// Normalize extracts an InvoiceRecord from a raw vendor response. The response
// may wrap the JSON object in prose or markdown. Every field is present in the
// result; fields missing from the response come back empty with a zero box.
// Field contents are passed through unvalidated.
func Normalize(raw string) (*InvoiceRecord, error) {
	obj, err := locateObject(raw)
	if err != nil {
		return nil, err
	}

	record := &InvoiceRecord{
		ImageWidthPx:  dimensionFrom(obj["imageWidthPx"]),
		ImageHeightPx: dimensionFrom(obj["imageHeightPx"]),
	}
	for _, name := range FieldNames {
		field, _ := record.Field(name)
		*field = fieldFrom(obj[string(name)])
	}

	return record, nil
}

// locateObject parses raw directly, then retries on the span from the first {
// to the last }.
func locateObject(raw string) (map[string]json.RawMessage, error) {
	if obj, ok := decodeObject([]byte(strings.TrimSpace(raw))); ok {
		return obj, nil
	}

	startIdx := strings.Index(raw, "{")
	endIdx := strings.LastIndex(raw, "}")
	if startIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("%w: no JSON object found in response", ErrMalformedResponse)
	}

	if obj, ok := decodeObject([]byte(raw[startIdx : endIdx+1])); ok {
		return obj, nil
	}
	return nil, fmt.Errorf("%w: invalid JSON object in response", ErrMalformedResponse)
}

// decodeObject accepts a JSON object, or an array whose first object is used
func decodeObject(data []byte) (map[string]json.RawMessage, bool) {
	if bytes.HasPrefix(data, []byte("[")) {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, false
		}
		for _, item := range items {
			if obj, ok := decodeObject(item); ok {
				return obj, true
			}
		}
		return nil, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func fieldFrom(raw json.RawMessage) Field {
	var props map[string]json.RawMessage
	if err := json.Unmarshal(raw, &props); err != nil || props == nil {
		// bare value, no provenance
		return Field{Value: textFrom(raw)}
	}

	return Field{
		Value: textFrom(props["value"]),
		Box: overlay.Box{
			X:      numberFrom(props["x"]),
			Y:      numberFrom(props["y"]),
			Width:  numberFrom(props["width"]),
			Height: numberFrom(props["height"]),
		},
	}
}

// textFrom returns a JSON string's contents, or the literal text of any other value
func textFrom(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

// numberFrom reads a JSON number or numeric string, defaulting to 0
func numberFrom(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return 0
}

func dimensionFrom(raw json.RawMessage) int {
	f := numberFrom(raw)
	if f <= 0 {
		return 0
	}
	return int(math.Round(f))
}
