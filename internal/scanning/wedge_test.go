package scanning

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Wedge", func() {
	var (
		wedge *Wedge
		t0    time.Time
	)

	typeString := func(s string, start time.Time, step time.Duration) time.Time {
		at := start
		for _, r := range s {
			wedge.Feed(Keystroke{Key: string(r), At: at})
			at = at.Add(step)
		}
		return at
	}

	BeforeEach(func() {
		wedge = NewWedge(80 * time.Millisecond)
		wedge.Start()
		t0 = time.Date(2025, 9, 23, 8, 0, 0, 0, time.UTC)
	})

	When("keys arrive quickly and end with Enter", func() {
		It("should emit the buffered read", func() {
			at := typeString("A|B|C", t0, 5*time.Millisecond)
			raw, ok := wedge.Feed(Keystroke{Key: KeyEnter, At: at})
			Expect(ok).To(BeTrue())
			Expect(raw).To(Equal("A|B|C"))
		})

		It("should clear the buffer after emitting", func() {
			at := typeString("XYZ", t0, 5*time.Millisecond)
			wedge.Feed(Keystroke{Key: KeyEnter, At: at})
			_, ok := wedge.Feed(Keystroke{Key: KeyEnter, At: at.Add(time.Millisecond)})
			Expect(ok).To(BeFalse())
		})
	})

	When("the pause between keys exceeds the gap", func() {
		It("should drop the stale prefix", func() {
			at := typeString("junk", t0, 5*time.Millisecond)
			at = typeString("LABEL", at.Add(time.Second), 5*time.Millisecond)
			raw, ok := wedge.Feed(Keystroke{Key: KeyEnter, At: at})
			Expect(ok).To(BeTrue())
			Expect(raw).To(Equal("LABEL"))
		})
	})

	When("named keys are pressed", func() {
		It("should ignore them", func() {
			wedge.Feed(Keystroke{Key: "Shift", At: t0})
			at := typeString("AB", t0.Add(time.Millisecond), time.Millisecond)
			raw, ok := wedge.Feed(Keystroke{Key: KeyEnter, At: at})
			Expect(ok).To(BeTrue())
			Expect(raw).To(Equal("AB"))
		})
	})

	When("only whitespace was typed", func() {
		It("should not emit", func() {
			at := typeString("   ", t0, time.Millisecond)
			_, ok := wedge.Feed(Keystroke{Key: KeyEnter, At: at})
			Expect(ok).To(BeFalse())
		})
	})

	When("the wedge is stopped", func() {
		It("should ignore keystrokes", func() {
			wedge.Stop()
			at := typeString("ABC", t0, time.Millisecond)
			_, ok := wedge.Feed(Keystroke{Key: KeyEnter, At: at})
			Expect(ok).To(BeFalse())
			Expect(wedge.Running()).To(BeFalse())
		})

		It("should discard a partial read", func() {
			at := typeString("ABC", t0, time.Millisecond)
			wedge.Stop()
			wedge.Start()
			raw, ok := wedge.Feed(Keystroke{Key: KeyEnter, At: at})
			Expect(ok).To(BeFalse())
			Expect(raw).To(BeEmpty())
		})
	})

	Describe("Run", func() {
		var reads []string

		BeforeEach(func() {
			reads = nil
			wedge.now = func() time.Time { return t0 }
		})

		It("should emit one read per line", func() {
			input := strings.NewReader("first|label\r\nsecond|label\n\n")
			err := wedge.Run(context.Background(), input, func(raw string) {
				reads = append(reads, raw)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reads).To(Equal([]string{"first|label", "second|label"}))
		})

		It("should stop when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := wedge.Run(ctx, strings.NewReader("a\n"), func(raw string) {
				reads = append(reads, raw)
			})
			Expect(err).To(MatchError(context.Canceled))
			Expect(reads).To(BeEmpty())
		})
	})
})
