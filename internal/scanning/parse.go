package scanning

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyProductCode is returned when the product code is empty after normalization
	ErrEmptyProductCode = errors.New("empty product code")
	// ErrInvalidQuantity is returned when the quantity token is not a finite number
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrEmptyLabel is returned when the label token is empty
	ErrEmptyLabel = errors.New("empty label")
	// ErrUnrecognizedShape is returned when the field count matches no known label layout
	ErrUnrecognizedShape = errors.New("unrecognized label")
)

// Label layouts printed on shipment units, keyed by field count.
const (
	orderLabelFields = 9
	plainLabelFields = 8
)

// Parse decodes a raw pipe-delimited label into a ScanEvent.
//
// Two layouts are accepted:
//
//	9 fields: date|order|client|product|quantity|description|lot|label|extra
//	8 fields: date|product|quantity|?|label|...
func Parse(raw string) (*ScanEvent, error) {
	fields := splitFields(raw)

	var productRaw, quantityRaw, label, orderRef string
	switch len(fields) {
	case orderLabelFields:
		orderRef = fields[1]
		productRaw = fields[3]
		quantityRaw = fields[4]
		label = fields[7]
	case plainLabelFields:
		productRaw = fields[1]
		quantityRaw = fields[2]
		label = fields[4]
	default:
		return nil, fmt.Errorf("%w (fields=%d)", ErrUnrecognizedShape, len(fields))
	}

	code := NormalizeProductCode(productRaw)
	if code == "" {
		return nil, ErrEmptyProductCode
	}

	qty, err := ParseQuantity(quantityRaw)
	if err != nil {
		return nil, err
	}

	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrEmptyLabel
	}

	return &ScanEvent{
		ProductCode:    code,
		Quantity:       qty,
		LabelID:        label,
		OrderReference: orderRef,
	}, nil
}

// splitFields splits on '|', trims every token and drops empty ones
func splitFields(raw string) []string {
	parts := strings.Split(strings.TrimSpace(raw), "|")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			fields = append(fields, p)
		}
	}
	return fields
}

// NormalizeProductCode strips every '.' separator from a printed product code
func NormalizeProductCode(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, ".", ""))
}

// ParseQuantity parses a printed quantity, accepting a comma decimal separator.
// Only the first comma is replaced, as the label printers emit it.
func ParseQuantity(s string) (decimal.Decimal, error) {
	s = strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	if s == "" {
		return decimal.Zero, ErrInvalidQuantity
	}
	qty, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	return qty, nil
}
