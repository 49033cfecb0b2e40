package station

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/zombor/dispatch-prep/internal/picking"
)

// Session is the part of picking.Controller the console drives
type Session interface {
	HandleScan(ctx context.Context, raw string) (*picking.ScanEvent, error)
	ResetProduct(ctx context.Context, productCode string) error
	Start(ctx context.Context) error
	Finish(ctx context.Context) (*picking.FinishResult, error)
	Refresh(ctx context.Context) error
	AssignPreparer(ctx context.Context, code, name string) error
	CloseOrder(ctx context.Context) error
	Snapshot() picking.Snapshot
}

// CommandPrefix marks operator commands. Labels never start with it.
const CommandPrefix = ":"

// Console is the terminal front end of a scan station. Input lines are
// either label reads or operator commands.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	session Session
}

// NewConsole creates a Console writing to out. Attach a session before use.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Attach binds the console to a session
func (c *Console) Attach(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// Notify prints an operator message. It implements picking.Notifier.
func (c *Console) Notify(level picking.Level, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s\n", levelTag(level), message)
}

func levelTag(level picking.Level) string {
	switch level {
	case picking.LevelSuccess:
		return "[ OK ]"
	case picking.LevelWarning:
		return "[WARN]"
	case picking.LevelError:
		return "[FAIL]"
	default:
		return "[INFO]"
	}
}

// Handle processes one input line and reports whether the station should stop,
// either because the operator quit or the order was closed. Failures are
// already reported through Notify by the session.
func (c *Console) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, CommandPrefix) {
		if _, err := c.session.HandleScan(ctx, line); err == nil {
			c.Render()
		}
		return false
	}

	fields := strings.Fields(strings.TrimPrefix(line, CommandPrefix))
	if len(fields) == 0 {
		c.Help()
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "q", "quit", "exit":
		return true
	case "start":
		if err := c.session.Start(ctx); err == nil {
			c.Render()
		}
	case "finish":
		if _, err := c.session.Finish(ctx); err == nil {
			c.Render()
		}
	case "reset":
		if len(fields) < 2 {
			c.Notify(picking.LevelWarning, "usage: :reset PRODUCT_CODE")
			return false
		}
		if err := c.session.ResetProduct(ctx, fields[1]); err == nil {
			c.Render()
		}
	case "assign":
		if len(fields) < 2 {
			c.Notify(picking.LevelWarning, "usage: :assign PREPARER_CODE [NAME]")
			return false
		}
		if err := c.session.AssignPreparer(ctx, fields[1], strings.Join(fields[2:], " ")); err == nil {
			c.Render()
		}
	case "close":
		return c.session.CloseOrder(ctx) == nil
	case "refresh":
		if err := c.session.Refresh(ctx); err == nil {
			c.Render()
		}
	case "show":
		c.Render()
	default:
		c.Help()
	}
	return false
}

// Help prints the available commands
func (c *Console) Help() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, "Scan a label, or type a command:")
	fmt.Fprintln(c.out, "  :assign CODE [NAME]  assign the preparer")
	fmt.Fprintln(c.out, "  :start               start the preparation timer")
	fmt.Fprintln(c.out, "  :finish              finish the preparation")
	fmt.Fprintln(c.out, "  :close               save a finished order and leave")
	fmt.Fprintln(c.out, "  :reset CODE          clear the scans of a product")
	fmt.Fprintln(c.out, "  :refresh             reload the order")
	fmt.Fprintln(c.out, "  :show                print the order")
	fmt.Fprintln(c.out, "  :quit                leave the station")
}

// Render prints the order header and the detail table
func (c *Console) Render() {
	snap := c.session.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	preparer := "-"
	if h := snap.Header; h != nil {
		switch {
		case h.PreparerName != "":
			preparer = h.PreparerName
		case h.PreparerCode != "":
			preparer = h.PreparerCode
		}
	}
	fmt.Fprintf(c.out, "\nOrder %s/%s  preparer: %s  state: %s\n", snap.Key.OrderID, snap.Key.SubOrderID, preparer, snap.State)

	if snap.Model.Empty() {
		fmt.Fprintln(c.out, "(no lines)")
		return
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tPRODUCT\tDESCRIPTION\tUM\tTARGET\tSCANNED\tREMAINING\t")
	for _, l := range snap.Model.Lines {
		mark := ""
		if l.Complete {
			mark = "✔"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ItemNumber, l.ProductCode, l.Description, l.UnitOfMeasure,
			l.FulfilledQuantity.String(), l.ScannedQuantity.String(), l.Remaining.String(), mark)
	}
	tw.Flush()

	fmt.Fprintf(c.out, "%d/%d lines complete, %s of %s scanned\n",
		snap.Model.CompletedLines, len(snap.Model.Lines),
		snap.Model.TotalScanned.String(), snap.Model.TotalTarget.String())
	if snap.Model.Complete {
		fmt.Fprintln(c.out, "All lines complete")
	}
}

var _ picking.Notifier = (*Console)(nil)
