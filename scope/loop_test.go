package scope

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/rpscope/blocking"
	"github.com/sarchlab/rpscope/coop"
	"github.com/sarchlab/rpscope/scope/scopesim"
)

type simRig struct {
	clock  *coop.VirtualClock
	sched  *coop.Scheduler
	waiter *blocking.Waiter
	dev    *scopesim.Device
}

func newSimRig(latency float64) *simRig {
	r := &simRig{clock: coop.NewVirtualClock()}
	r.sched = coop.MakeBuilder().WithClock(r.clock).Build()
	r.waiter = blocking.MakeBuilder().WithScheduler(r.sched).Build()
	r.dev = scopesim.MakeBuilder().
		WithClock(r.clock).
		WithSignal(1, scopesim.Constant(0.25)).
		WithSignal(2, scopesim.Constant(-0.5)).
		WithTriggerLatency(latency).
		Build()

	return r
}

func (r *simRig) scope(sink EventSink) *Scope {
	return MakeBuilder().
		WithBus(r.dev).
		WithWaiter(r.waiter).
		WithEventSink(sink).
		Build()
}

func allEqual(v []float64, x float64) bool {
	for _, e := range v {
		if e != x {
			return false
		}
	}

	return len(v) > 0
}

var _ = Describe("Single acquisition", func() {
	var (
		mockCtrl *gomock.Controller
		sink     *MockEventSink
		rig      *simRig
		s        *Scope
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		sink = NewMockEventSink(mockCtrl)
		rig = newSimRig(0.001)
		s = rig.scope(sink)

		Expect(s.SetDecimation(1)).To(Succeed())
	})

	AfterEach(func() {
		rig.sched.Shutdown()
		mockCtrl.Finish()
	})

	It("should average TraceAverage captures", func() {
		Expect(s.SetTraceAverage(4)).To(Succeed())
		sink.EXPECT().Emit(EventCurveAcquired, gomock.Any()).Times(4)
		sink.EXPECT().Emit(EventDisplayCurve, gomock.Any()).Times(4)

		c, err := s.Single(time.Second)

		Expect(err).NotTo(HaveOccurred())
		Expect(c.Kind).To(Equal(CurveAveraged))
		Expect(c.Averages).To(Equal(4))
		Expect(allEqual(c.Ch[0], 0.25)).To(BeTrue())
		Expect(allEqual(c.Ch[1], -0.5)).To(BeTrue())
		Expect(s.RunningState()).To(Equal(Stopped))
		Expect(s.State()).To(Equal(Idle))
	})

	It("should capture one trace", func() {
		sink.EXPECT().Emit(EventCurveAcquired, gomock.Any())

		tr, err := s.Curve(time.Second)

		Expect(err).NotTo(HaveOccurred())
		Expect(tr.Times[0]).To(Equal(0.0))
		Expect(allEqual(tr.Ch[0], 0.25)).To(BeTrue())
		Expect(s.State()).To(Equal(Idle))
	})

	It("should center an edge triggered capture on the trigger", func() {
		Expect(s.SetTriggerSource(SourceExtPositiveEdge)).To(Succeed())
		sink.EXPECT().Emit(EventCurveAcquired, gomock.Any())

		tr, err := s.Curve(time.Second)

		Expect(err).NotTo(HaveOccurred())
		Expect(tr.Times[8192]).To(BeNumerically("~", 0, 1e-12))
		Expect(allEqual(tr.Ch[1], -0.5)).To(BeTrue())

		age, err := s.TriggerEventAge()
		Expect(err).NotTo(HaveOccurred())
		Expect(age).To(BeNumerically(">", 0))
	})
})

var _ = Describe("Waiting for a trigger", func() {
	var (
		rig *simRig
		s   *Scope
	)

	BeforeEach(func() {
		rig = newSimRig(10)
		s = rig.scope(nil)

		Expect(s.SetDecimation(1)).To(Succeed())
		Expect(s.SetTriggerSource(SourceCh1PositiveEdge)).To(Succeed())
	})

	AfterEach(func() {
		rig.sched.Shutdown()
	})

	It("should time out and leave the capture armed", func() {
		_, err := s.Curve(10 * time.Millisecond)

		Expect(err).To(MatchError(blocking.ErrTimeout))
		Expect(s.State()).To(Equal(Armed))

		s.Stop()

		Expect(s.State()).To(Equal(Idle))
	})

	It("should wait for the pretrigger buffer and then 100 ms", func() {
		Expect(s.Arm(s.Config())).To(Succeed())
		before := rig.sched.Now()

		Expect(s.WaitForPretrigger()).To(Succeed())

		Expect(rig.sched.Now() - before).To(BeNumerically(">=", 0.1))
		Expect(s.State()).To(Equal(Armed))
	})
})

var _ = Describe("Continuous acquisition", func() {
	var (
		rig    *simRig
		s      *Scope
		events map[string]int
	)

	BeforeEach(func() {
		rig = newSimRig(0.001)
		events = map[string]int{}
		s = rig.scope(SinkFunc(func(name string, _ Curve) {
			events[name]++
		}))

		Expect(s.SetDecimation(1)).To(Succeed())
	})

	AfterEach(func() {
		rig.sched.Shutdown()
	})

	It("should cap the average at TraceAverage", func() {
		Expect(s.SetTraceAverage(3)).To(Succeed())

		s.RunContinuous()
		Expect(rig.waiter.Sleep(0.02)).To(Succeed())

		Expect(s.RunningState()).To(Equal(RunningContinuous))
		Expect(s.Averages()).To(Equal(3))
		Expect(events[EventDisplayCurve]).To(BeNumerically(">", 3))
		Expect(s.LastCurve().Kind).To(Equal(CurveAveraged))
		Expect(allEqual(s.LastCurve().Ch[0], 0.25)).To(BeTrue())
	})

	It("should discard the average and reset the hardware on stop", func() {
		s.RunContinuous()
		Expect(rig.waiter.Sleep(0.005)).To(Succeed())

		s.Stop()

		Expect(s.Averages()).To(Equal(0))
		Expect(s.RunningState()).To(Equal(Stopped))
		Expect(s.State()).To(Equal(Idle))

		Expect(rig.waiter.Sleep(0.005)).To(Succeed())
		Expect(rig.sched.NumLiveTasks()).To(Equal(0))
		Expect(s.State()).To(Equal(Idle))
	})

	It("should keep the average while paused", func() {
		Expect(s.SetTraceAverage(1000)).To(Succeed())

		s.RunContinuous()
		Expect(rig.waiter.Sleep(0.005)).To(Succeed())
		s.Pause()
		Expect(rig.waiter.Sleep(0.005)).To(Succeed())

		n := s.Averages()
		Expect(n).To(BeNumerically(">", 0))
		Expect(s.RunningState()).To(Equal(PausedContinuous))
		Expect(s.State()).To(Equal(Idle))

		Expect(rig.waiter.Sleep(0.01)).To(Succeed())
		Expect(s.Averages()).To(Equal(n))

		s.RunContinuous()
		Expect(s.RunningState()).To(Equal(RunningContinuous))
		Expect(rig.waiter.Sleep(0.005)).To(Succeed())
		Expect(s.Averages()).To(BeNumerically(">", n))
	})

	It("should restart the average when settings change", func() {
		Expect(s.SetTraceAverage(1000)).To(Succeed())

		s.RunContinuous()
		Expect(rig.waiter.Sleep(0.01)).To(Succeed())
		n := s.Averages()
		Expect(n).To(BeNumerically(">=", 5))

		Expect(s.SetThreshold(0.1)).To(Succeed())
		Expect(rig.waiter.Sleep(0.0025)).To(Succeed())

		Expect(s.Averages()).To(BeNumerically("<", n))
	})

	It("should stop a running loop when a single acquisition starts", func() {
		s.RunContinuous()
		Expect(rig.waiter.Sleep(0.003)).To(Succeed())

		c, err := s.Single(time.Second)

		Expect(err).NotTo(HaveOccurred())
		Expect(c.Averages).To(Equal(1))
		Expect(s.RunningState()).To(Equal(Stopped))
	})

	Context("with a long duration", func() {
		BeforeEach(func() {
			Expect(s.SetDecimation(1024)).To(Succeed())
			Expect(s.RollingModeActive()).To(BeTrue())
		})

		It("should show the rolling buffer", func() {
			s.RunContinuous()
			Expect(rig.waiter.Sleep(0.05)).To(Succeed())

			Expect(s.IsRolling()).To(BeTrue())
			Expect(s.State()).To(Equal(Armed))
			Expect(s.LastCurve().Kind).To(Equal(CurveRolling))
			Expect(s.LastCurve().Times).To(HaveLen(16384))
			Expect(s.Arm(s.Config())).To(MatchError(ErrBusy))

			s.Stop()

			Expect(s.IsRolling()).To(BeFalse())
			Expect(s.State()).To(Equal(Idle))
		})

		It("should switch to triggered captures when the duration shrinks", func() {
			s.RunContinuous()
			Expect(rig.waiter.Sleep(0.05)).To(Succeed())

			Expect(s.SetDuration(1e-3)).To(Succeed())
			Expect(rig.waiter.Sleep(0.02)).To(Succeed())

			Expect(s.RollingModeActive()).To(BeFalse())
			Expect(s.LastCurve().Kind).To(Equal(CurveAveraged))
		})

		It("should not roll when rolling mode is off", func() {
			s.SetRollingMode(false)

			Expect(s.RollingModeActive()).To(BeFalse())
			Expect(s.RollingModeAllowed()).To(BeTrue())
		})
	})
})
