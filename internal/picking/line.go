package picking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/dispatch-prep/internal/scanning"
)

// ScanEvent is a decoded label read
type ScanEvent = scanning.ScanEvent

// OrderKey identifies one dispatch order detail
type OrderKey struct {
	OrderID    string `json:"orderId"`
	SubOrderID string `json:"subOrderId"`
}

// OrderLine is one expected item of a dispatch order as reported by the backend.
// Lines are replaced wholesale on every sync and never mutated locally.
type OrderLine struct {
	ItemNumber        string
	ProductCode       string
	Description       string
	UnitOfMeasure     string
	PackSize          string
	InnerUnit         string
	ExpectedQuantity  decimal.Decimal
	FulfilledQuantity decimal.Decimal // scan target: supplied quantity, else ordered quantity
	ScannedQuantity   decimal.Decimal
	Location          string

	// Attributes holds the raw row as received, including fields the station does not read
	Attributes map[string]any
}

// Complete reports whether the scanned quantity matches the target.
// Lines without a positive target are always complete.
func (l OrderLine) Complete() bool {
	if !l.FulfilledQuantity.IsPositive() {
		return true
	}
	return l.ScannedQuantity.Equal(l.FulfilledQuantity)
}

// Remaining returns how much is still to be scanned, never negative
func (l OrderLine) Remaining() decimal.Decimal {
	rem := l.FulfilledQuantity.Sub(l.ScannedQuantity)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// Header holds the order header fields the station reads
type Header struct {
	DocumentDate     string
	OrderNumber      string
	Customer         string
	Address          string
	Notes            string
	PreparerCode     string
	PreparerName     string
	PreparerAssigned bool
	StartedAt        *time.Time
	FinishedAt       *time.Time
	ElapsedMinutes   *int

	Attributes map[string]any
}

// Started reports whether the backend recorded a preparation start
func (h *Header) Started() bool {
	return h != nil && h.StartedAt != nil
}

// Finished reports whether the backend recorded a preparation finish
func (h *Header) Finished() bool {
	return h != nil && h.FinishedAt != nil
}

// ScanRequest is the payload persisted for one accepted label
type ScanRequest struct {
	ProductCode string
	Quantity    decimal.Decimal
	LabelID     string
}

// FinishResult is returned when the backend closes a preparation
type FinishResult struct {
	Message        string
	ElapsedMinutes *int
}
