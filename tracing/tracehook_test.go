package tracing

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/rpscope/blocking"
	"github.com/sarchlab/rpscope/coop"
	"github.com/sarchlab/rpscope/scope"
	"github.com/sarchlab/rpscope/scope/scopesim"
)

type rig struct {
	clock *coop.VirtualClock
	sched *coop.Scheduler
	scope *scope.Scope
}

func newRig() *rig {
	r := &rig{clock: coop.NewVirtualClock()}
	r.sched = coop.MakeBuilder().WithClock(r.clock).Build()

	waiter := blocking.MakeBuilder().WithScheduler(r.sched).Build()
	dev := scopesim.MakeBuilder().WithClock(r.clock).Build()

	r.scope = scope.MakeBuilder().
		WithName("scope0").
		WithBus(dev).
		WithWaiter(waiter).
		Build()

	return r
}

var _ = Describe("TraceHook", func() {
	var (
		mockCtrl *gomock.Controller
		tracer   *MockTracer
		r        *rig
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		tracer = NewMockTracer(mockCtrl)
		r = newRig()
		Expect(r.scope.SetDecimation(1)).To(Succeed())
	})

	AfterEach(func() {
		r.sched.Shutdown()
		mockCtrl.Finish()
	})

	It("should trace a capture from arm to acquisition", func() {
		var started, ended Task

		CollectTrace(r.scope, tracer)

		tracer.EXPECT().StartTask(gomock.Any()).
			Do(func(t Task) { started = t })
		tracer.EXPECT().EndTask(gomock.Any()).
			Do(func(t Task) { ended = t })

		trace, err := r.scope.Curve(time.Second)
		Expect(err).NotTo(HaveOccurred())

		Expect(started.ID).To(Equal(trace.ID))
		Expect(started.Kind).To(Equal(KindCapture))
		Expect(started.What).To(Equal("triggered"))
		Expect(started.Location).To(Equal("scope0"))
		Expect(ended.ID).To(Equal(trace.ID))
		Expect(ended.Outcome).To(Equal("acquired"))
		Expect(ended.EndTime).To(BeNumerically(">", started.StartTime))
	})

	It("should trace a reset capture", func() {
		var ended Task

		CollectTrace(r.scope, tracer)

		tracer.EXPECT().StartTask(gomock.Any())
		tracer.EXPECT().EndTask(gomock.Any()).
			Do(func(t Task) { ended = t })

		Expect(r.scope.StartRolling()).To(Succeed())
		Expect(r.scope.Reset()).To(Succeed())

		Expect(ended.What).To(Equal("rolling"))
		Expect(ended.Outcome).To(Equal("reset"))
	})

	It("should refuse the same tracer twice", func() {
		CollectTrace(r.scope, tracer)

		Expect(func() { CollectTrace(r.scope, tracer) }).To(Panic())
	})

	It("should trace scheduler tasks", func() {
		var started, ended Task

		CollectTaskTrace(r.sched, "main", tracer)

		tracer.EXPECT().StartTask(gomock.Any()).
			Do(func(t Task) { started = t })
		tracer.EXPECT().EndTask(gomock.Any()).
			Do(func(t Task) { ended = t })

		task := r.sched.Schedule(func(t *coop.Task) (any, error) {
			return nil, t.Delay(0.5)
		})
		Expect(r.sched.RunUntilComplete(task, math.Inf(1))).To(Succeed())

		Expect(started.ID).To(Equal(task.ID()))
		Expect(started.Kind).To(Equal(KindTask))
		Expect(started.Location).To(Equal("main"))
		Expect(ended.Outcome).To(Equal("done"))
		Expect(ended.EndTime - started.StartTime).To(BeNumerically("~", 0.5, 1e-9))
	})
})

var _ = Describe("TotalTimeTracer", func() {
	It("should sum the time of matching tasks", func() {
		t := NewTotalTimeTracer(KindFilter(KindCapture))

		t.StartTask(Task{ID: "a", Kind: KindCapture, StartTime: 1})
		t.StartTask(Task{ID: "b", Kind: KindTask, StartTime: 1})
		t.EndTask(Task{ID: "a", Kind: KindCapture, EndTime: 3, Outcome: "acquired"})
		t.EndTask(Task{ID: "b", Kind: KindTask, EndTime: 9, Outcome: "done"})
		t.StartTask(Task{ID: "c", Kind: KindCapture, StartTime: 4})
		t.EndTask(Task{ID: "c", Kind: KindCapture, EndTime: 5, Outcome: "reset"})

		Expect(t.TotalTime()).To(Equal(3.0))
		Expect(t.TaskCount()).To(Equal(uint64(2)))
		Expect(t.AverageTime()).To(Equal(1.5))
		Expect(t.Outcomes()).To(Equal(map[string]uint64{
			"acquired": 1,
			"reset":    1,
		}))
	})

	It("should not mix up tasks of different kinds with the same ID", func() {
		t := NewTotalTimeTracer(nil)

		t.StartTask(Task{ID: "1", Kind: KindTask, StartTime: 0})
		t.StartTask(Task{ID: "1", Kind: KindCapture, StartTime: 1})
		t.EndTask(Task{ID: "1", Kind: KindTask, EndTime: 2, Outcome: "done"})
		t.EndTask(Task{ID: "1", Kind: KindCapture, EndTime: 5, Outcome: "acquired"})

		Expect(t.TaskCount()).To(Equal(uint64(2)))
		Expect(t.TotalTime()).To(Equal(6.0))
	})

	It("should report zero average before any task ends", func() {
		t := NewTotalTimeTracer(nil)

		Expect(t.AverageTime()).To(BeZero())
	})
})
