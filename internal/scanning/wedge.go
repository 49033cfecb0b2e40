package scanning

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultKeystrokeGap is the longest pause between keystrokes of a single scan.
// HID scanners type far faster than people, so a longer pause starts a new read.
const DefaultKeystrokeGap = 80 * time.Millisecond

// KeyEnter terminates a scan
const KeyEnter = "Enter"

// Keystroke is a single key event from a keyboard-wedge scanner
type Keystroke struct {
	Key string
	At  time.Time
}

// Wedge buffers keystrokes from a keyboard-wedge scanner into raw label reads.
// It only accepts input between Start and Stop.
type Wedge struct {
	mu      sync.Mutex
	gap     time.Duration
	buf     strings.Builder
	last    time.Time
	running bool
	now     func() time.Time
}

// NewWedge creates a stopped Wedge. A non-positive gap uses DefaultKeystrokeGap.
func NewWedge(gap time.Duration) *Wedge {
	if gap <= 0 {
		gap = DefaultKeystrokeGap
	}
	return &Wedge{gap: gap, now: time.Now}
}

// Start begins accepting keystrokes
func (w *Wedge) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = true
	w.buf.Reset()
	w.last = time.Time{}
}

// Stop discards any partial read and ignores further keystrokes
func (w *Wedge) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
	w.buf.Reset()
}

// Running reports whether the wedge accepts keystrokes
func (w *Wedge) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Feed applies one keystroke. It returns the completed read when the key is
// Enter and the buffer holds something other than whitespace.
func (w *Wedge) Feed(k Keystroke) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return "", false
	}

	if !w.last.IsZero() && k.At.Sub(w.last) > w.gap {
		w.buf.Reset()
	}
	w.last = k.At

	if k.Key == KeyEnter {
		raw := strings.TrimSpace(w.buf.String())
		w.buf.Reset()
		return raw, raw != ""
	}

	// Named keys (Shift, Tab, ...) never reach the buffer
	if utf8.RuneCountInString(k.Key) != 1 {
		return "", false
	}
	w.buf.WriteString(k.Key)
	return "", false
}

// Run reads runes from r until EOF or ctx is done, passing every completed
// read to emit. Carriage return and newline act as Enter.
func (w *Wedge) Run(ctx context.Context, r io.Reader, emit func(raw string)) error {
	br := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ch, _, err := br.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading scanner input: %w", err)
		}

		key := string(ch)
		if ch == '\r' || ch == '\n' {
			key = KeyEnter
		}
		if raw, ok := w.Feed(Keystroke{Key: key, At: w.now()}); ok {
			emit(raw)
		}
	}
}
