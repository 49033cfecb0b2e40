package picking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/dispatch-prep/internal/scanning"
)

// Level is the severity of an operator notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier shows short, non-blocking messages to the operator
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(level Level, message string)

// Notify calls f
func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// ConfirmFunc asks the operator a yes/no question
type ConfirmFunc func(ctx context.Context, prompt string) bool

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time { return time.Now() }

// slogNotifier logs notifications when no operator display is attached
type slogNotifier struct{}

func (slogNotifier) Notify(level Level, message string) {
	switch level {
	case LevelError:
		slog.Error(message)
	case LevelWarning:
		slog.Warn(message)
	default:
		slog.Info(message, "level", string(level))
	}
}

// Option configures a Controller
type Option func(*Controller)

// WithFinishPolicy sets what finishing requires
func WithFinishPolicy(p FinishPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithNotifier sets where operator messages go
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithConfirm sets the prompt used for labels printed for another order.
// Without it such labels are rejected.
func WithConfirm(f ConfirmFunc) Option {
	return func(c *Controller) { c.confirm = f }
}

// WithAuthFailureHandler sets the hook run once when the backend rejects credentials
func WithAuthFailureHandler(f func()) Option {
	return func(c *Controller) { c.onAuthFailure = f }
}

// WithTimeSource sets the clock used for local timer transitions
func WithTimeSource(t TimeSource) Option {
	return func(c *Controller) { c.timeSource = t }
}

// Snapshot is a consistent view of the controller state
type Snapshot struct {
	Key       OrderKey
	Header    *Header
	State     State
	CanStart  bool
	CanFinish bool
	Pending   int
	Aborted   bool
	Closed    bool
	Model     RenderModel
}

// Controller reconciles label scans of one open order against the backend.
// Guard, session and view are owned by the controller; network calls run
// without holding its lock.
type Controller struct {
	remote        Remote
	key           OrderKey
	policy        FinishPolicy
	notifier      Notifier
	confirm       ConfirmFunc
	onAuthFailure func()
	timeSource    TimeSource

	mu            sync.Mutex
	guard         *Guard
	session       Session
	view          *ViewModel
	header        *Header
	pending       int
	transitioning bool
	aborted       bool
	closed        bool

	// generation counts applied mutations. A refresh issued before the
	// latest one carries older state and is dropped.
	generation uint64
}

// NewController creates a Controller for one order
func NewController(remote Remote, key OrderKey, opts ...Option) *Controller {
	c := &Controller{
		remote:     remote,
		key:        key,
		policy:     FinishWhenStarted,
		notifier:   slogNotifier{},
		timeSource: defaultTimeSource{},
		guard:      NewGuard(),
		view:       NewViewModel(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the order the controller is bound to
func (c *Controller) Key() OrderKey {
	return c.key
}

// Open loads the order. Call Close when the detail view goes away.
func (c *Controller) Open(ctx context.Context) error {
	slog.Info("Opening order", "order", c.key.OrderID, "sub_order", c.key.SubOrderID)
	return c.Refresh(ctx)
}

// Close forgets every scanned label
func (c *Controller) Close() {
	c.guard.Clear()
}

// Refresh reloads header and detail from the backend
func (c *Controller) Refresh(ctx context.Context) error {
	gen, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end(false)

	var (
		header *Header
		lines  []OrderLine
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := c.remote.ReadHeader(gctx, c.key)
		if err != nil {
			return fmt.Errorf("reading header: %w", err)
		}
		header = h
		return nil
	})
	g.Go(func() error {
		l, err := c.remote.ReadDetail(gctx, c.key)
		if err != nil {
			return fmt.Errorf("reading detail: %w", err)
		}
		lines = l
		return nil
	})
	if err := g.Wait(); err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		slog.Debug("Dropping stale refresh", "order", c.key.OrderID)
		return nil
	}
	c.header = header
	c.session.ApplyHeader(header)
	c.view.ApplyScanResult(lines)
	return nil
}

// HandleScan runs one raw label read through parsing, the duplicate guard and
// the backend. The parsed event is returned whenever parsing succeeded.
func (c *Controller) HandleScan(ctx context.Context, raw string) (*ScanEvent, error) {
	// Reject before any parsing or network work
	c.mu.Lock()
	err := c.scanAllowedLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, c.fail(err)
	}

	event, err := scanning.Parse(raw)
	if err != nil {
		return nil, c.fail(fmt.Errorf("parsing label: %w", err))
	}

	if event.HasOrderReference() && event.OrderReference != c.key.OrderID {
		prompt := fmt.Sprintf("Label is for order %s but order %s is open. Continue?", event.OrderReference, c.key.OrderID)
		if c.confirm == nil || !c.confirm(ctx, prompt) {
			return event, c.fail(fmt.Errorf("%w: %s", ErrOrderMismatch, event.OrderReference))
		}
	}

	// Reserve before the call so a repeated read of the same label cannot race it
	c.mu.Lock()
	if err := c.scanAllowedLocked(); err != nil {
		c.mu.Unlock()
		return event, c.fail(err)
	}
	if !c.guard.TryReserve(event.ProductCode, event.LabelID) {
		c.mu.Unlock()
		return event, c.fail(fmt.Errorf("%w: %s", ErrDuplicateLabel, NewDuplicateKey(event.ProductCode, event.LabelID)))
	}
	c.pending++
	c.mu.Unlock()

	lines, err := c.remote.SubmitScan(ctx, c.key, ScanRequest{
		ProductCode: event.ProductCode,
		Quantity:    event.Quantity,
		LabelID:     event.LabelID,
	})

	c.mu.Lock()
	c.pending--
	if err != nil {
		c.guard.Release(event.ProductCode, event.LabelID)
		c.mu.Unlock()
		return event, c.fail(fmt.Errorf("submitting scan: %w", err))
	}
	c.view.ApplyScanResult(lines)
	c.generation++
	c.mu.Unlock()

	slog.Debug("Scan accepted", "product", event.ProductCode, "label", event.LabelID, "quantity", event.Quantity.String())
	c.notify(LevelSuccess, fmt.Sprintf("%s +%s", event.ProductCode, event.Quantity.String()))
	return event, nil
}

func (c *Controller) scanAllowedLocked() error {
	if err := c.liveLocked(); err != nil {
		return err
	}
	if !c.session.AcceptsScans() {
		return ErrNotStarted
	}
	return nil
}

// ResetProduct zeroes the scanned quantity of a product so its labels can be
// scanned again
func (c *Controller) ResetProduct(ctx context.Context, productCode string) error {
	code := scanning.NormalizeProductCode(productCode)
	if code == "" {
		return c.fail(scanning.ErrEmptyProductCode)
	}

	if _, err := c.begin(); err != nil {
		return err
	}
	lines, err := c.remote.ResetProductScan(ctx, c.key, code)
	c.end(false)
	if err != nil {
		return c.fail(fmt.Errorf("resetting product %s: %w", code, err))
	}

	c.mu.Lock()
	c.guard.ReleaseProduct(code)
	c.view.ApplyScanResult(lines)
	c.generation++
	c.mu.Unlock()

	c.notify(LevelSuccess, fmt.Sprintf("Scans of %s reset", code))
	return nil
}

// Start starts the preparation timer
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if err := c.liveLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	switch {
	case c.transitioning:
		c.mu.Unlock()
		return c.fail(fmt.Errorf("%w: start or finish in progress", ErrInvalidState))
	case !c.session.PreparerAssigned():
		c.mu.Unlock()
		return c.fail(ErrPreparerRequired)
	case !c.session.CanStart():
		state := c.session.State()
		c.mu.Unlock()
		return c.fail(fmt.Errorf("%w: preparation is %s", ErrInvalidState, state))
	}
	c.transitioning = true
	c.pending++
	c.mu.Unlock()

	err := c.remote.StartPreparation(ctx, c.key)
	c.end(true)
	if err != nil {
		return c.fail(fmt.Errorf("starting preparation: %w", err))
	}

	c.mu.Lock()
	c.session.Start(c.timeSource.Now())
	c.generation++
	c.mu.Unlock()
	c.notify(LevelSuccess, "Preparation started")

	if err := c.Refresh(ctx); err != nil {
		slog.Warn("Failed to refresh after start", "error", err)
	}
	return nil
}

// Finish stops the preparation timer and ends the scanning session
func (c *Controller) Finish(ctx context.Context) (*FinishResult, error) {
	c.mu.Lock()
	if err := c.liveLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.transitioning {
		c.mu.Unlock()
		return nil, c.fail(fmt.Errorf("%w: start or finish in progress", ErrInvalidState))
	}
	if !c.canFinishLocked() {
		state := c.session.State()
		c.mu.Unlock()
		return nil, c.fail(fmt.Errorf("%w: cannot finish while %s", ErrInvalidState, state))
	}
	c.transitioning = true
	c.pending++
	c.mu.Unlock()

	res, err := c.remote.FinishPreparation(ctx, c.key)
	c.end(true)
	if err != nil {
		return nil, c.fail(fmt.Errorf("finishing preparation: %w", err))
	}

	c.mu.Lock()
	c.session.Finish(c.timeSource.Now())
	c.guard.Clear()
	c.generation++
	c.mu.Unlock()

	msg := "Preparation finished"
	if res != nil && res.ElapsedMinutes != nil {
		msg = fmt.Sprintf("Preparation finished in %d min", *res.ElapsedMinutes)
	}
	c.notify(LevelSuccess, msg)

	if err := c.Refresh(ctx); err != nil {
		slog.Warn("Failed to refresh after finish", "error", err)
	}
	return res, nil
}

func (c *Controller) canFinishLocked() bool {
	if !c.session.CanFinish(c.view.LineCount()) {
		return false
	}
	if c.policy == FinishWhenComplete {
		return c.view.Model().Complete
	}
	return true
}

// Snapshot returns the current state for rendering
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Key:       c.key,
		Header:    c.header,
		State:     c.session.State(),
		CanStart:  !c.aborted && !c.closed && !c.transitioning && c.session.CanStart(),
		CanFinish: !c.aborted && !c.closed && !c.transitioning && c.canFinishLocked(),
		Pending:   c.pending,
		Aborted:   c.aborted,
		Closed:    c.closed,
		Model:     c.view.Model(),
	}
}

// AssignPreparer sets who prepares the order. The backend must implement OrderAdmin.
func (c *Controller) AssignPreparer(ctx context.Context, code, name string) error {
	admin, ok := c.remote.(OrderAdmin)
	if !ok {
		return c.fail(fmt.Errorf("%w: assigning a preparer", ErrNotSupported))
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return c.fail(fmt.Errorf("%w: preparer code is empty", ErrPreparerRequired))
	}

	c.mu.Lock()
	if err := c.liveLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if state := c.session.State(); state == Finished {
		c.mu.Unlock()
		return c.fail(fmt.Errorf("%w: preparation is %s", ErrInvalidState, state))
	}
	c.pending++
	c.mu.Unlock()

	header, err := admin.AssignPreparer(ctx, c.key, code, strings.TrimSpace(name))
	c.end(false)
	if err != nil {
		return c.fail(fmt.Errorf("assigning preparer: %w", err))
	}

	c.mu.Lock()
	if header != nil {
		c.header = header
		c.session.ApplyHeader(header)
	}
	c.generation++
	c.mu.Unlock()

	c.notify(LevelSuccess, fmt.Sprintf("Preparer %s assigned", code))
	return nil
}

// CloseOrder closes a finished order on the backend and ends the session.
// Every later call returns ErrSessionClosed.
func (c *Controller) CloseOrder(ctx context.Context) error {
	admin, ok := c.remote.(OrderAdmin)
	if !ok {
		return c.fail(fmt.Errorf("%w: closing an order", ErrNotSupported))
	}

	c.mu.Lock()
	if err := c.liveLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if state := c.session.State(); c.transitioning || state != Finished {
		c.mu.Unlock()
		return c.fail(fmt.Errorf("%w: cannot close while %s", ErrInvalidState, state))
	}
	c.transitioning = true
	c.pending++
	c.mu.Unlock()

	err := admin.CloseOrder(ctx, c.key)
	c.end(true)
	if err != nil {
		return c.fail(fmt.Errorf("closing order: %w", err))
	}

	c.mu.Lock()
	c.closed = true
	c.generation++
	c.guard.Clear()
	c.mu.Unlock()

	c.notify(LevelSuccess, "Order closed")
	return nil
}

// GuardLen returns how many labels are recorded in this session
func (c *Controller) GuardLen() int {
	return c.guard.Len()
}

// begin marks a network call as pending and returns the generation it started from
func (c *Controller) begin() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.liveLocked(); err != nil {
		return 0, err
	}
	c.pending++
	return c.generation, nil
}

func (c *Controller) liveLocked() error {
	switch {
	case c.aborted:
		return ErrSessionAborted
	case c.closed:
		return ErrSessionClosed
	}
	return nil
}

// end clears the pending mark set by begin, or by Start and Finish when transition is set
func (c *Controller) end(transition bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--
	if transition {
		c.transitioning = false
	}
}

// fail reports err to the operator and aborts the session on authentication failures
func (c *Controller) fail(err error) error {
	if errors.Is(err, ErrSessionAborted) || errors.Is(err, ErrSessionClosed) {
		return err
	}

	kind := Classify(err)
	if kind == FailureAuth {
		c.abort()
		c.notify(LevelError, "Session expired, sign in again")
		return err
	}

	level := LevelError
	if kind == FailureDuplicate {
		level = LevelWarning
	}
	slog.Warn("Operation failed", "order", c.key.OrderID, "kind", string(kind), "error", err)
	c.notify(level, userMessage(err))
	return err
}

func (c *Controller) abort() {
	c.mu.Lock()
	already := c.aborted
	c.aborted = true
	c.mu.Unlock()
	if already {
		return
	}

	c.guard.Clear()
	slog.Error("Authentication rejected, aborting session", "order", c.key.OrderID)
	if c.onAuthFailure != nil {
		c.onAuthFailure()
	}
}

func (c *Controller) notify(level Level, message string) {
	if c.notifier != nil {
		c.notifier.Notify(level, message)
	}
}

// userMessage prefers the backend's own wording for rejections
func userMessage(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) && rej.Message != "" {
		return rej.Message
	}
	switch {
	case errors.Is(err, ErrNotStarted):
		return "Press start before scanning"
	case errors.Is(err, ErrPreparerRequired):
		return "Assign a preparer before starting"
	case errors.Is(err, ErrUnavailable):
		return "Dispatch service unavailable, try again"
	}
	return err.Error()
}
