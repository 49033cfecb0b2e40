package scanning

import "github.com/shopspring/decimal"

// ScanEvent is one decoded label read
type ScanEvent struct {
	ProductCode    string          `json:"product_code"`
	Quantity       decimal.Decimal `json:"quantity"`
	LabelID        string          `json:"label_id"`
	OrderReference string          `json:"order_reference,omitempty"` // empty when the label carries no order
}

// HasOrderReference reports whether the label names the order it was printed for
func (e *ScanEvent) HasOrderReference() bool {
	return e.OrderReference != ""
}
