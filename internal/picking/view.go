package picking

import "github.com/shopspring/decimal"

// LineView is one rendered line
type LineView struct {
	OrderLine
	Complete  bool
	Remaining decimal.Decimal
}

// RenderModel is everything needed to draw the detail table
type RenderModel struct {
	Lines          []LineView
	CompletedLines int
	TotalTarget    decimal.Decimal
	TotalScanned   decimal.Decimal

	// Complete is true when there is at least one line and every line is complete
	Complete bool
}

// Empty reports whether the order has no lines
func (m RenderModel) Empty() bool {
	return len(m.Lines) == 0
}

// Recompute derives the render model from a line set
func Recompute(lines []OrderLine) RenderModel {
	m := RenderModel{
		Lines:        make([]LineView, 0, len(lines)),
		TotalTarget:  decimal.Zero,
		TotalScanned: decimal.Zero,
	}
	for _, l := range lines {
		done := l.Complete()
		if done {
			m.CompletedLines++
		}
		m.TotalTarget = m.TotalTarget.Add(l.FulfilledQuantity)
		m.TotalScanned = m.TotalScanned.Add(l.ScannedQuantity)
		m.Lines = append(m.Lines, LineView{
			OrderLine: l,
			Complete:  done,
			Remaining: l.Remaining(),
		})
	}
	// No lines is never complete, even though every one of zero lines is
	m.Complete = len(lines) > 0 && m.CompletedLines == len(lines)
	return m
}

// ViewModel holds the authoritative line set of the open order.
// It is not safe for concurrent use; Controller serializes access.
type ViewModel struct {
	lines []OrderLine
	model RenderModel
}

// NewViewModel creates an empty ViewModel
func NewViewModel() *ViewModel {
	return &ViewModel{model: Recompute(nil)}
}

// ApplyScanResult replaces the whole line set with the backend's response
func (v *ViewModel) ApplyScanResult(lines []OrderLine) {
	v.lines = append([]OrderLine(nil), lines...)
	v.model = Recompute(v.lines)
}

// Model returns the current render model
func (v *ViewModel) Model() RenderModel {
	return v.model
}

// LineCount returns the number of lines
func (v *ViewModel) LineCount() int {
	return len(v.lines)
}

// Line returns the line for a product code, if present
func (v *ViewModel) Line(productCode string) (OrderLine, bool) {
	for _, l := range v.lines {
		if l.ProductCode == productCode {
			return l, true
		}
	}
	return OrderLine{}, false
}
