package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// fieldSpec describes one target field. The prompt schema and the strict
// vendor schema are both derived from these.
type fieldSpec struct {
	Name        FieldName
	Title       string
	Description string
	Pattern     string
	Example     string
}

var fieldSpecs = []fieldSpec{
	{
		Name:        PayeeName,
		Title:       "Payee name",
		Description: "Name of the company being paid. This is the business that issued the receipt, not the addressee or the billed party.",
	},
	{
		Name:        IssueDate,
		Title:       "Issue date",
		Description: "Date the receipt was issued, in YYYY-MM-DD format.",
		Pattern:     `^[0-9]{4}-(0[1-9]|1[0-2])-(0[1-9]|1\d|2\d|3[01])$`,
		Example:     "2025-03-15",
	},
	{
		Name:        AmountIncludingTax,
		Title:       "Amount including tax",
		Description: "Total amount including tax, comma separated with at most two decimal places. If only a pre-tax amount is shown, add the tax to it.",
		Pattern:     `^\d{1,3}(,\d{3})*(\.\d{2})?$`,
		Example:     "12,345.67",
	},
	{
		Name:        Currency,
		Title:       "Currency",
		Description: "ISO 4217 currency code of the amount, e.g. JPY, USD, EUR.",
		Pattern:     `^[A-Z]{3}$`,
		Example:     "JPY",
	},
	{
		Name:        RegistrationNumber,
		Title:       "Registration number",
		Description: "Qualified invoice issuer registration number: \"T\" followed by the 13 digit corporate or assigned number (e.g. T0000000000000).",
		Pattern:     `^T\d{13}$`,
		Example:     "T1234567890123",
	},
	{
		Name:        Notes,
		Title:       "Notes",
		Description: "Any supplementary or noteworthy information about the receipt or the payment.",
	},
}

type jsonSchema struct {
	Schema               string                 `json:"$schema,omitempty"`
	Title                string                 `json:"title,omitempty"`
	Type                 string                 `json:"type"`
	Description          string                 `json:"description,omitempty"`
	Pattern              string                 `json:"pattern,omitempty"`
	Example              string                 `json:"example,omitempty"`
	Properties           map[string]*jsonSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
}

// buildSchema renders the target schema. The strict form drops patterns and
// examples and closes every object, as strict structured output requires.
func buildSchema(strict bool) *jsonSchema {
	var closed *bool
	if strict {
		f := false
		closed = &f
	}

	root := &jsonSchema{
		Title: "InvoiceFields",
		Type:  "object",
		Properties: map[string]*jsonSchema{
			"imageWidthPx":  {Type: "integer", Description: "Width in pixels of the image that was analyzed"},
			"imageHeightPx": {Type: "integer", Description: "Height in pixels of the image that was analyzed"},
		},
		Required:             []string{"imageWidthPx", "imageHeightPx"},
		AdditionalProperties: closed,
	}
	if !strict {
		root.Schema = "http://json-schema.org/draft-07/schema#"
	}

	for _, spec := range fieldSpecs {
		value := &jsonSchema{
			Type:        "string",
			Description: fmt.Sprintf("The recognized text (%s)", strings.ToLower(spec.Title)),
		}
		if !strict {
			value.Pattern = spec.Pattern
			value.Example = spec.Example
		}

		root.Properties[string(spec.Name)] = &jsonSchema{
			Title:       spec.Title,
			Type:        "object",
			Description: spec.Description,
			Properties: map[string]*jsonSchema{
				"value":  value,
				"x":      {Type: "number", Description: "X coordinate in pixels"},
				"y":      {Type: "number", Description: "Y coordinate in pixels"},
				"width":  {Type: "number", Description: "Width in pixels"},
				"height": {Type: "number", Description: "Height in pixels"},
			},
			Required:             []string{"value", "x", "y", "width", "height"},
			AdditionalProperties: closed,
		}
		root.Required = append(root.Required, string(spec.Name))
	}

	return root
}

func buildPrompt() string {
	schema, err := json.MarshalIndent(buildSchema(false), "", "  ")
	if err != nil {
		panic(err)
	}

	var b strings.Builder
	b.WriteString(`You are an experienced accountant. Read the receipt in the image and transcribe its text and amounts.

## Important
- If you cannot determine a field, honestly write "N/A" as its value and use 0 for x, y, width and height.
- If the image contains more than one receipt, create a separate JSON object for each receipt.
- Respond with JSON only. Do not include any text before or after the JSON.
- If the receipt has a non-standard layout or additional information, record it in the notes field.
- For every field, give the location in the image where the text was read as x, y, width and height, in pixels of the image you received, so the region can be cropped.
- Report the width and height of the image you received as imageWidthPx and imageHeightPx.

## Fields (in priority order)
`)
	for i, spec := range fieldSpecs {
		fmt.Fprintf(&b, "%d. %s (%s): %s\n", i+1, spec.Name, spec.Title, spec.Description)
	}
	b.WriteString("\n## JSON schema\n")
	b.Write(schema)

	return b.String()
}

// receiptScanPrompt is the shared prompt used by all vendors for scanning receipts
var receiptScanPrompt = buildPrompt()

// Prompt returns the shared recognition prompt
func Prompt() string {
	return receiptScanPrompt
}
