package picking

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Session", func() {
	var (
		session Session
		now     time.Time
	)

	BeforeEach(func() {
		session = Session{}
		now = time.Date(2025, 9, 23, 8, 0, 0, 0, time.UTC)
	})

	Describe("ApplyHeader", func() {
		It("should be not started without timestamps", func() {
			session.ApplyHeader(&Header{PreparerAssigned: true})
			Expect(session.State()).To(Equal(NotStarted))
			Expect(session.CanStart()).To(BeTrue())
			Expect(session.AcceptsScans()).To(BeFalse())
		})

		It("should be started with a start timestamp", func() {
			session.ApplyHeader(&Header{PreparerAssigned: true, StartedAt: &now})
			Expect(session.State()).To(Equal(Started))
			Expect(session.AcceptsScans()).To(BeTrue())
			Expect(session.StartedAt()).To(Equal(&now))
		})

		It("should be finished whenever a finish timestamp exists", func() {
			session.ApplyHeader(&Header{FinishedAt: &now})
			Expect(session.State()).To(Equal(Finished))
			Expect(session.CanStart()).To(BeFalse())
		})

		It("should ignore a nil header", func() {
			session.ApplyHeader(&Header{PreparerAssigned: true, StartedAt: &now})
			session.ApplyHeader(nil)
			Expect(session.State()).To(Equal(Started))
		})
	})

	Describe("CanStart", func() {
		It("should require a preparer", func() {
			session.ApplyHeader(&Header{})
			Expect(session.CanStart()).To(BeFalse())
		})
	})

	Describe("CanFinish", func() {
		It("should require a started preparation and at least one line", func() {
			Expect(session.CanFinish(3)).To(BeFalse())

			session.ApplyHeader(&Header{PreparerAssigned: true, StartedAt: &now})
			Expect(session.CanFinish(0)).To(BeFalse())
			Expect(session.CanFinish(1)).To(BeTrue())
		})
	})

	Describe("Start and Finish", func() {
		It("should walk the timer forward", func() {
			session.ApplyHeader(&Header{PreparerAssigned: true})
			session.Start(now)
			Expect(session.State()).To(Equal(Started))
			Expect(*session.StartedAt()).To(Equal(now))

			later := now.Add(time.Hour)
			session.Finish(later)
			Expect(session.State()).To(Equal(Finished))
			Expect(*session.FinishedAt()).To(Equal(later))
			Expect(session.AcceptsScans()).To(BeFalse())
		})

		It("should keep a start already recorded by the backend", func() {
			session.ApplyHeader(&Header{PreparerAssigned: true, StartedAt: &now})
			session.Start(now.Add(time.Hour))
			Expect(*session.StartedAt()).To(Equal(now))
		})
	})

	It("should name its states", func() {
		Expect(NotStarted.String()).To(Equal("not_started"))
		Expect(Started.String()).To(Equal("started"))
		Expect(Finished.String()).To(Equal("finished"))
	})
})
