package sensitivity_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/kinsens/internal/sensitivity"
)

func TestSensitivity(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Sensitivity Suite")
}

var errDiverged = errors.New("fake: solver diverged")

// fakeIntegrator replays a fixed table of coefficients, one row per advance.
type fakeIntegrator struct {
	rows     [][]float64
	tracked  int
	total    int
	failAt   int
	t        float64
	advances []float64
}

func newFake(rows [][]float64) *fakeIntegrator {
	return &fakeIntegrator{rows: rows, tracked: len(rows[0]), total: len(rows[0]), failAt: -1}
}

func (f *fakeIntegrator) AdvanceTo(t float64) error {
	if t <= f.t {
		return fmt.Errorf("fake: non-monotonic advance to %g from %g", t, f.t)
	}
	if len(f.advances) == f.failAt {
		return errDiverged
	}
	f.t = t
	f.advances = append(f.advances, t)
	return nil
}

func (f *fakeIntegrator) Time() float64 { return f.t }

func (f *fakeIntegrator) Observe() sensitivity.Observation {
	return sensitivity.Observation{Temperature: 1500 + float64(len(f.advances)), Pressure: 101325}
}

func (f *fakeIntegrator) Sensitivity(observable, reaction int) float64 {
	return f.rows[len(f.advances)-1][reaction]
}

func (f *fakeIntegrator) ReactionName(reaction int) string { return fmt.Sprintf("R%d", reaction) }
func (f *fakeIntegrator) TrackedReactions() int            { return f.tracked }
func (f *fakeIntegrator) ReactionCount() int               { return f.total }
func (f *fakeIntegrator) Observables() int                 { return 3 }

func table(steps, reactions int) [][]float64 {
	rows := make([][]float64, steps)
	for t := range rows {
		rows[t] = make([]float64, reactions)
		for r := range rows[t] {
			v := float64((t+1)*(r+2)%7) - 3
			rows[t][r] = v / 10
		}
	}
	return rows
}

var _ = Describe("Driver", func() {
	var (
		ctx  context.Context
		grid sensitivity.TimeGrid
	)

	BeforeEach(func() {
		ctx = context.Background()
		grid = sensitivity.TimeGrid{Start: 0, Interval: 0.1, Duration: 1.0}
	})

	Context("with a well-formed configuration", func() {
		It("fills a T x R matrix in time order", func() {
			rows := table(10, 4)
			fake := newFake(rows)
			d := sensitivity.NewDriver(fake, sensitivity.Options{Grid: grid, Reactions: 4, Observable: sensitivity.ObservableTemperature})

			m, err := d.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Phase()).To(Equal(sensitivity.PhaseFrozen))

			t, r := m.Dims()
			Expect(t).To(Equal(10))
			Expect(r).To(Equal(4))
			Expect(m.Complete()).To(BeTrue())
			Expect(m.Rows()).To(Equal(rows))

			Expect(fake.advances).To(HaveLen(10))
			for i := 1; i < len(fake.advances); i++ {
				Expect(fake.advances[i]).To(BeNumerically(">", fake.advances[i-1]))
			}
			Expect(fake.advances[0]).To(BeNumerically("~", 0.1, 1e-12))
			Expect(fake.advances[9]).To(BeNumerically("~", 1.0, 1e-12))
		})

		It("is deterministic across identical runs", func() {
			rows := table(10, 5)
			opts := sensitivity.Options{Grid: grid, Reactions: 5, Observable: 1}

			m1, err := sensitivity.NewDriver(newFake(rows), opts).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			m2, err := sensitivity.NewDriver(newFake(rows), opts).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(m1.Equal(m2)).To(BeTrue())

			names := sensitivity.ReactionNames(newFake(rows), 5)
			s1, err := sensitivity.Reduce(m1, names)
			Expect(err).NotTo(HaveOccurred())
			s2, err := sensitivity.Reduce(m2, names)
			Expect(err).NotTo(HaveOccurred())
			Expect(sensitivity.Rank(s1)).To(Equal(sensitivity.Rank(s2)))
		})

		It("notifies observers once per step", func() {
			fake := newFake(table(10, 3))
			d := sensitivity.NewDriver(fake, sensitivity.Options{Grid: grid, Reactions: 3, Observable: 1})

			var records []sensitivity.StepRecord
			d.AddObserver(sensitivity.ObserverFunc(func(rec sensitivity.StepRecord) {
				records = append(records, rec)
			}))
			traj := sensitivity.NewTrajectory(10)
			d.AddObserver(traj)
			d.AddObserver(sensitivity.NewLogObserver())

			_, err := d.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(10))
			Expect(records[4].Step).To(Equal(4))
			Expect(records[4].Last).To(Equal(fake.rows[4][2]))
			Expect(records[4].State.Temperature).To(Equal(1505.0))
			Expect(traj.Temperatures()).To(HaveLen(10))
		})

		It("streams scores equal to the reduced matrix", func() {
			rows := table(10, 6)
			opts := sensitivity.Options{Grid: grid, Reactions: 6, Observable: 1}

			m, err := sensitivity.NewDriver(newFake(rows), opts).Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			streamed, err := sensitivity.NewDriver(newFake(rows), opts).RunStreaming(ctx)
			Expect(err).NotTo(HaveOccurred())

			names := sensitivity.ReactionNames(newFake(rows), 6)
			fromMatrix, err := sensitivity.Reduce(m, names)
			Expect(err).NotTo(HaveOccurred())
			fromStream, err := sensitivity.ScoresFromValues(streamed, names)
			Expect(err).NotTo(HaveOccurred())
			Expect(fromStream).To(Equal(fromMatrix))
		})

		It("refuses to run twice", func() {
			d := sensitivity.NewDriver(newFake(table(10, 2)), sensitivity.Options{Grid: grid, Reactions: 2, Observable: 1})
			_, err := d.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, err = d.Run(ctx)
			Expect(err).To(MatchError(sensitivity.ErrAlreadyRun))
		})
	})

	Context("when the integrator fails to converge", func() {
		It("aborts without returning a partial matrix", func() {
			fake := newFake(table(10, 3))
			fake.failAt = 5
			d := sensitivity.NewDriver(fake, sensitivity.Options{Grid: grid, Reactions: 3, Observable: 1})

			m, err := d.Run(ctx)
			Expect(m).To(BeNil())
			Expect(err).To(MatchError(sensitivity.ErrIntegration))
			Expect(errors.Is(err, errDiverged)).To(BeTrue())
			Expect(d.Phase()).To(Equal(sensitivity.PhaseFailed))

			var ie *sensitivity.IntegrationError
			Expect(errors.As(err, &ie)).To(BeTrue())
			Expect(ie.Step).To(Equal(5))
			Expect(ie.Time).To(BeNumerically("~", 0.6, 1e-12))
			Expect(fake.advances).To(HaveLen(5))
		})

		It("treats non-finite coefficients as a failure", func() {
			rows := table(10, 2)
			rows[3][1] = 0
			rows[3][1] = rows[3][1] / rows[3][1]
			d := sensitivity.NewDriver(newFake(rows), sensitivity.Options{Grid: grid, Reactions: 2, Observable: 1})

			scores, err := d.RunStreaming(ctx)
			Expect(scores).To(BeNil())
			Expect(err).To(MatchError(sensitivity.ErrNonFinite))
			Expect(err).To(MatchError(sensitivity.ErrIntegration))
		})

		It("rejects an oversized grid without integrating", func() {
			fake := newFake(table(10, 2))
			d := sensitivity.NewDriver(fake, sensitivity.Options{
				Grid:       sensitivity.TimeGrid{Interval: 1e-300, Duration: 1},
				Reactions:  2,
				Observable: 1,
			})

			scores, err := d.RunStreaming(ctx)
			Expect(scores).To(BeNil())
			Expect(err).To(MatchError(sensitivity.ErrInvalidGrid))
			Expect(fake.advances).To(BeEmpty())
		})

		It("aborts when the context is canceled", func() {
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			d := sensitivity.NewDriver(newFake(table(10, 2)), sensitivity.Options{Grid: grid, Reactions: 2, Observable: 1})

			m, err := d.Run(canceled)
			Expect(m).To(BeNil())
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	DescribeTable("rejects bad configuration before integrating",
		func(mutate func(*fakeIntegrator, *sensitivity.Options), want error) {
			fake := newFake(table(10, 3))
			opts := sensitivity.Options{Grid: grid, Reactions: 3, Observable: 1}
			mutate(fake, &opts)

			m, err := sensitivity.NewDriver(fake, opts).Run(ctx)
			Expect(m).To(BeNil())
			Expect(err).To(MatchError(want))
			Expect(sensitivity.IsConfigError(err)).To(BeTrue())
			Expect(fake.advances).To(BeEmpty())
		},
		Entry("zero interval", func(_ *fakeIntegrator, o *sensitivity.Options) { o.Grid.Interval = 0 }, sensitivity.ErrInvalidGrid),
		Entry("negative duration", func(_ *fakeIntegrator, o *sensitivity.Options) { o.Grid.Duration = -1 }, sensitivity.ErrInvalidGrid),
		Entry("fractional step count", func(_ *fakeIntegrator, o *sensitivity.Options) { o.Grid.Interval = 0.3 }, sensitivity.ErrInvalidGrid),
		Entry("step count beyond int range", func(_ *fakeIntegrator, o *sensitivity.Options) {
			o.Grid.Interval = 1e-300
			o.Grid.Duration = 1
		}, sensitivity.ErrInvalidGrid),
		Entry("fewer tracked than requested", func(f *fakeIntegrator, _ *sensitivity.Options) { f.tracked = 2 }, sensitivity.ErrReactionCountMismatch),
		Entry("more requested than the mechanism has", func(f *fakeIntegrator, _ *sensitivity.Options) { f.total = 2 }, sensitivity.ErrReactionCountMismatch),
		Entry("zero reactions", func(_ *fakeIntegrator, o *sensitivity.Options) { o.Reactions = 0 }, sensitivity.ErrReactionCountMismatch),
		Entry("observable out of range", func(_ *fakeIntegrator, o *sensitivity.Options) { o.Observable = 3 }, sensitivity.ErrInvalidObservable),
		Entry("negative observable", func(_ *fakeIntegrator, o *sensitivity.Options) { o.Observable = -1 }, sensitivity.ErrInvalidObservable),
		Entry("integrator already advanced", func(f *fakeIntegrator, _ *sensitivity.Options) { f.t = 0.5 }, sensitivity.ErrNotMonotonic),
	)
})
