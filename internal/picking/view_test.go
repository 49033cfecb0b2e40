package picking

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Render model", func() {
	Describe("Recompute", func() {
		It("should never be complete without lines", func() {
			m := Recompute(nil)
			Expect(m.Complete).To(BeFalse())
			Expect(m.Empty()).To(BeTrue())
		})

		It("should be complete only when every line is", func() {
			m := Recompute([]OrderLine{line("A", "3", "3"), line("B", "2", "1")})
			Expect(m.Complete).To(BeFalse())
			Expect(m.CompletedLines).To(Equal(1))

			m = Recompute([]OrderLine{line("A", "3", "3"), line("B", "2", "2")})
			Expect(m.Complete).To(BeTrue())
		})

		It("should treat lines without a positive target as complete", func() {
			m := Recompute([]OrderLine{line("A", "0", "0")})
			Expect(m.Lines[0].Complete).To(BeTrue())
			Expect(m.Complete).To(BeTrue())
		})

		It("should not count an overscanned line as complete", func() {
			m := Recompute([]OrderLine{line("A", "3", "4")})
			Expect(m.Lines[0].Complete).To(BeFalse())
			Expect(m.Lines[0].Remaining.IsZero()).To(BeTrue())
		})

		It("should compare quantities by value", func() {
			m := Recompute([]OrderLine{line("A", "3.00", "3")})
			Expect(m.Lines[0].Complete).To(BeTrue())
		})

		It("should total targets and scans", func() {
			m := Recompute([]OrderLine{line("A", "3", "1.5"), line("B", "2", "1")})
			Expect(m.TotalTarget.Equal(qty("5"))).To(BeTrue())
			Expect(m.TotalScanned.Equal(qty("2.5"))).To(BeTrue())
			Expect(m.Lines[0].Remaining.Equal(qty("1.5"))).To(BeTrue())
		})
	})

	Describe("ViewModel", func() {
		var view *ViewModel

		BeforeEach(func() {
			view = NewViewModel()
		})

		It("should replace the whole line set", func() {
			view.ApplyScanResult([]OrderLine{line("A", "3", "0"), line("B", "2", "0")})
			view.ApplyScanResult([]OrderLine{line("B", "2", "2")})
			Expect(view.LineCount()).To(Equal(1))
			_, ok := view.Line("A")
			Expect(ok).To(BeFalse())
			b, ok := view.Line("B")
			Expect(ok).To(BeTrue())
			Expect(b.ScannedQuantity.Equal(qty("2"))).To(BeTrue())
		})

		It("should not share the caller's slice", func() {
			lines := []OrderLine{line("A", "3", "0")}
			view.ApplyScanResult(lines)
			lines[0].ProductCode = "Z"
			_, ok := view.Line("A")
			Expect(ok).To(BeTrue())
		})
	})
})
