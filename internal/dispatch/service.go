package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRequest is returned for missing or malformed input
	ErrInvalidRequest = errors.New("invalid request")
	// ErrItemNotFound is returned when the order has no line for a product
	ErrItemNotFound = errors.New("item not found in order")
	// ErrDuplicateLabel is returned when a label was already counted
	ErrDuplicateLabel = errors.New("label already scanned")
	// ErrNotStarted is returned when scanning or finishing before the start
	ErrNotStarted = errors.New("preparation has not been started")
	// ErrOverpick is returned when a scan would exceed the target quantity
	ErrOverpick = errors.New("scan exceeds the supplied quantity")
	// ErrPreparerMissing is returned when starting without an assigned preparer
	ErrPreparerMissing = errors.New("assign a preparer before starting")
	// ErrAlreadyStarted is returned when starting twice
	ErrAlreadyStarted = errors.New("preparation already started")
	// ErrAlreadyFinished is returned for changes to a finished preparation
	ErrAlreadyFinished = errors.New("preparation already finished")
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles dispatch preparation
type Service struct {
	db           DB
	archive      Archive
	timeSource   TimeSource
	targetPolicy TargetPolicy
}

// NewService creates a new Service with the default time source
func NewService(db DB, archive Archive) *Service {
	return NewServiceWithDeps(db, archive, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, archive Archive, timeSrc TimeSource) *Service {
	return &Service{
		db:         db,
		archive:    archive,
		timeSource: timeSrc,
	}
}

// SetTargetPolicy sets how lines without a supplied quantity are scanned.
// The default is TargetOrdered.
func (s *Service) SetTargetPolicy(p TargetPolicy) {
	s.targetPolicy = p
}

// ImportOrder stores a new order snapshot. Scanned quantities and labels
// start empty unless the order carries them.
func (s *Service) ImportOrder(order *Order) error {
	if order == nil {
		return fmt.Errorf("%w: order is required", ErrInvalidRequest)
	}
	if err := order.Key.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	now := s.timeSource.Now()
	for i := range order.Lines {
		l := &order.Lines[i]
		l.ProductCode = strings.TrimSpace(l.ProductCode)
		if l.ProductCode == "" {
			return fmt.Errorf("%w: line %d has no product code", ErrInvalidRequest, i+1)
		}
		if l.Item == 0 {
			l.Item = i + 1
		}
		l.updateDifference(s.targetPolicy)
	}
	if order.Labels == nil {
		order.Labels = make(map[string]bool)
	}
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := s.db.SaveOrder(order); err != nil {
		return fmt.Errorf("saving order: %w", err)
	}
	slog.Info("Order imported", "order", order.Key.String(), "lines", len(order.Lines))
	return nil
}

// ListOrders returns all open orders
func (s *Service) ListOrders() ([]*Order, error) {
	orders, err := s.db.ListOrders()
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

// Detail returns the lines of an order
func (s *Service) Detail(key Key) ([]Line, error) {
	order, err := s.get(key)
	if err != nil {
		return nil, err
	}
	return order.Lines, nil
}

// Header returns the header of an order
func (s *Service) Header(key Key) (*Header, error) {
	order, err := s.get(key)
	if err != nil {
		return nil, err
	}
	return &order.Header, nil
}

func (s *Service) get(key Key) (*Order, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	order, err := s.db.GetOrder(key)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return order, nil
}

// update runs fn against the stored order and stamps the change
func (s *Service) update(key Key, fn func(*Order) error) (*Order, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	now := s.timeSource.Now()
	return s.db.UpdateOrder(key, func(o *Order) error {
		if err := fn(o); err != nil {
			return err
		}
		o.UpdatedAt = now
		return nil
	})
}

// AssignPreparer sets who prepares the order
func (s *Service) AssignPreparer(key Key, code, name string) (*Header, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: preparer code is required", ErrInvalidRequest)
	}

	order, err := s.update(key, func(o *Order) error {
		if o.Header.FinishedAt != nil {
			return ErrAlreadyFinished
		}
		o.Header.PreparerCode = code
		o.Header.PreparerName = strings.TrimSpace(name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("assigning preparer: %w", err)
	}
	return &order.Header, nil
}

// Scan adds qty to the first line of productCode that can take it and
// records the label. Scans are refused before the start, after the finish,
// for labels already counted and when the new total would pass the target.
func (s *Service) Scan(key Key, productCode string, qty decimal.Decimal, labelID string) ([]Line, error) {
	productCode = strings.TrimSpace(productCode)
	labelID = strings.TrimSpace(labelID)
	if productCode == "" {
		return nil, fmt.Errorf("%w: product code is required", ErrInvalidRequest)
	}
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidRequest)
	}

	order, err := s.update(key, func(o *Order) error {
		if o.Header.StartedAt == nil {
			return ErrNotStarted
		}
		if o.Header.FinishedAt != nil {
			return ErrAlreadyFinished
		}
		if labelID != "" && o.Labels[labelKey(productCode, labelID)] {
			return ErrDuplicateLabel
		}

		found := false
		for i := range o.Lines {
			l := &o.Lines[i]
			if l.ProductCode != productCode {
				continue
			}
			found = true
			total := l.Scanned.Add(qty)
			if total.GreaterThan(l.Target(s.targetPolicy)) {
				continue
			}
			l.Scanned = total
			l.updateDifference(s.targetPolicy)
			if labelID != "" {
				o.Labels[labelKey(productCode, labelID)] = true
			}
			return nil
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrItemNotFound, productCode)
		}
		return ErrOverpick
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", productCode, err)
	}

	slog.Info("Scan recorded", "order", key.String(), "product", productCode, "label", labelID, "quantity", qty.String())
	return order.Lines, nil
}

// Reset zeroes the scanned quantity of every line of a product and forgets
// its labels
func (s *Service) Reset(key Key, productCode string) ([]Line, error) {
	productCode = strings.TrimSpace(productCode)
	if productCode == "" {
		return nil, fmt.Errorf("%w: product code is required", ErrInvalidRequest)
	}

	order, err := s.update(key, func(o *Order) error {
		if o.Header.FinishedAt != nil {
			return ErrAlreadyFinished
		}
		found := false
		for i := range o.Lines {
			if o.Lines[i].ProductCode == productCode {
				found = true
				o.Lines[i].Scanned = decimal.Zero
				o.Lines[i].updateDifference(s.targetPolicy)
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrItemNotFound, productCode)
		}
		prefix := productCode + "|"
		for k := range o.Labels {
			if strings.HasPrefix(k, prefix) {
				delete(o.Labels, k)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resetting %s: %w", productCode, err)
	}
	return order.Lines, nil
}

// Start records the preparation start
func (s *Service) Start(key Key) (*Header, error) {
	now := s.timeSource.Now()
	order, err := s.update(key, func(o *Order) error {
		switch {
		case o.Header.FinishedAt != nil:
			return ErrAlreadyFinished
		case o.Header.StartedAt != nil:
			return ErrAlreadyStarted
		case o.Header.PreparerCode == "":
			return ErrPreparerMissing
		}
		o.Header.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("starting preparation: %w", err)
	}
	slog.Info("Preparation started", "order", key.String(), "preparer", order.Header.PreparerCode)
	return &order.Header, nil
}

// Finish records the preparation finish and the elapsed minutes
func (s *Service) Finish(key Key) (*Header, error) {
	now := s.timeSource.Now()
	order, err := s.update(key, func(o *Order) error {
		switch {
		case o.Header.StartedAt == nil:
			return ErrNotStarted
		case o.Header.FinishedAt != nil:
			return ErrAlreadyFinished
		}
		o.Header.FinishedAt = &now
		minutes := int(now.Sub(*o.Header.StartedAt).Round(time.Minute) / time.Minute)
		o.Header.ElapsedMinutes = &minutes
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finishing preparation: %w", err)
	}
	slog.Info("Preparation finished", "order", key.String(), "minutes", *order.Header.ElapsedMinutes)
	return &order.Header, nil
}

// Close archives the order snapshot and removes it from the open orders
func (s *Service) Close(key Key) error {
	order, err := s.get(key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshaling order: %w", err)
	}
	name, err := s.archive.Save(archiveName(key, s.timeSource.Now()), data)
	if err != nil {
		return fmt.Errorf("archiving order: %w", err)
	}

	if err := s.db.DeleteOrder(key); err != nil {
		// The order stays open, so drop its archive
		if delErr := s.archive.Delete(name); delErr != nil {
			slog.Warn("Failed to remove archive", "name", name, "error", delErr)
		}
		return fmt.Errorf("deleting order: %w", err)
	}

	slog.Info("Order closed", "order", key.String(), "archive", name)
	return nil
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]+`)

// archiveName builds a filesystem safe snapshot name for a key
func archiveName(key Key, at time.Time) string {
	order := unsafeNameChars.ReplaceAllString(key.OrderID, "-")
	sub := unsafeNameChars.ReplaceAllString(key.SubOrderID, "-")
	return fmt.Sprintf("%s_%s_%s.json", order, sub, at.UTC().Format("20060102T150405"))
}
