package picking

import "context"

// Remote is the dispatch backend. Every call that succeeds returns the
// authoritative state, which the station adopts as is.
type Remote interface {
	// ReadDetail returns the current line set
	ReadDetail(ctx context.Context, key OrderKey) ([]OrderLine, error)

	// SubmitScan persists one label read and returns the updated line set.
	// A *RejectionError means the backend refused the scan (e.g. over target).
	SubmitScan(ctx context.Context, key OrderKey, req ScanRequest) ([]OrderLine, error)

	// ResetProductScan zeroes the scanned quantity of a product
	ResetProductScan(ctx context.Context, key OrderKey, productCode string) ([]OrderLine, error)

	// StartPreparation starts the timer. Fails with ErrPreparerRequired when
	// nobody is assigned.
	StartPreparation(ctx context.Context, key OrderKey) error

	// FinishPreparation stops the timer
	FinishPreparation(ctx context.Context, key OrderKey) (*FinishResult, error)

	// ReadHeader returns the header, including preparer and timer fields
	ReadHeader(ctx context.Context, key OrderKey) (*Header, error)
}

// OrderAdmin is implemented by backends that also manage preparers and close
// finished orders
type OrderAdmin interface {
	// AssignPreparer sets who prepares the order and returns the updated header
	AssignPreparer(ctx context.Context, key OrderKey, code, name string) (*Header, error)

	// CloseOrder saves the finished order and removes it from the open orders
	CloseOrder(ctx context.Context, key OrderKey) error
}
