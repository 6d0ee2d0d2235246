package jobs

import (
	"encoding/json"
	"errors"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvoiceInvalid is returned when the itemization does not match the
// invoice schema.
var ErrInvoiceInvalid = errors.New("invoice items do not match the expected shape")

// Itemizations are informational for the customer; totals stay as quoted.
// The schema keeps garbage out of the stored JSON.
const invoiceItemsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["label", "amount_cents"],
    "properties": {
      "label": {"type": "string", "minLength": 1},
      "amount_cents": {"type": "integer", "minimum": 0},
      "quantity": {"type": "integer", "minimum": 1}
    },
    "additionalProperties": false
  }
}`

var invoiceSchema = jsonschema.MustCompileString("invoice_items.json", invoiceItemsSchema)

func validateInvoiceItems(items json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(items, &doc); err != nil {
		return ErrInvoiceInvalid
	}
	if err := invoiceSchema.Validate(doc); err != nil {
		return ErrInvoiceInvalid
	}
	return nil
}
