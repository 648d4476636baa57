package coop

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rpscope/hooking"
)

var _ = Describe("Scheduler", func() {
	var (
		clock *VirtualClock
		s     *Scheduler
	)

	BeforeEach(func() {
		clock = NewVirtualClock()
		s = MakeBuilder().WithClock(clock).Build()
	})

	AfterEach(func() {
		s.Shutdown()
	})

	It("should not run work when scheduling", func() {
		ran := false
		t := s.Schedule(func(*Task) (any, error) {
			ran = true
			return nil, nil
		})

		Expect(ran).To(BeFalse())
		Expect(t.State()).To(Equal(TaskPending))
		Expect(s.HasReady()).To(BeTrue())
	})

	It("should run a task to completion and return its result", func() {
		t := s.Schedule(func(*Task) (any, error) {
			return 42, nil
		})

		Expect(s.RunUntilComplete(t, math.Inf(1))).To(Succeed())
		Expect(t.State()).To(Equal(TaskDone))

		res, err := t.Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal(42))
		Expect(t.Finished()).To(BeClosed())
	})

	It("should interleave tasks only at suspension points", func() {
		order := []string{}
		a := s.Schedule(func(t *Task) (any, error) {
			order = append(order, "a1")
			Expect(t.Delay(0)).To(Succeed())
			order = append(order, "a2")
			return nil, nil
		})
		b := s.Schedule(func(t *Task) (any, error) {
			order = append(order, "b1")
			Expect(t.Delay(0)).To(Succeed())
			order = append(order, "b2")
			return nil, nil
		})

		Expect(s.RunUntilComplete(a, math.Inf(1))).To(Succeed())
		Expect(s.RunUntilComplete(b, math.Inf(1))).To(Succeed())
		Expect(order).To(Equal([]string{"a1", "b1", "a2", "b2"}))
	})

	It("should wake delayed tasks in deadline order", func() {
		order := []string{}
		mk := func(name string, d float64) *Task {
			return s.Schedule(func(t *Task) (any, error) {
				err := t.Delay(d)
				order = append(order, name)
				return nil, err
			})
		}

		late := mk("late", 0.3)
		mk("early", 0.1)
		mk("middle", 0.2)

		Expect(s.RunUntilComplete(late, math.Inf(1))).To(Succeed())
		Expect(order).To(Equal([]string{"early", "middle", "late"}))
		Expect(clock.Now()).To(BeNumerically("~", 0.3, 1e-12))
	})

	It("should resume a zero delay without advancing time", func() {
		t := s.Schedule(func(t *Task) (any, error) {
			return nil, t.Delay(-1)
		})

		Expect(s.RunUntilComplete(t, math.Inf(1))).To(Succeed())
		Expect(clock.Now()).To(Equal(0.0))
	})

	It("should reject a NaN delay", func() {
		t := s.Schedule(func(t *Task) (any, error) {
			return nil, t.Delay(math.NaN())
		})

		Expect(s.RunUntilComplete(t, math.Inf(1))).To(Succeed())
		Expect(t.State()).To(Equal(TaskFailed))
		_, err := t.Result()
		Expect(errors.Is(err, ErrInvalidArgument)).To(BeTrue())
	})

	It("should cancel the pending wake-up of a cancelled delay", func() {
		t := s.Schedule(func(t *Task) (any, error) {
			return nil, t.Delay(10)
		})

		s.RunOnce()
		Expect(t.State()).To(Equal(TaskSuspended))
		_, hasTimer := s.NextTimer()
		Expect(hasTimer).To(BeTrue())

		Expect(t.Cancel()).To(BeTrue())
		_, hasTimer = s.NextTimer()
		Expect(hasTimer).To(BeFalse())

		Expect(s.RunUntilComplete(t, math.Inf(1))).To(Succeed())
		Expect(t.State()).To(Equal(TaskCancelled))
		Expect(clock.Now()).To(Equal(0.0))
	})

	It("should never run a task cancelled before it started", func() {
		ran := false
		t := s.Schedule(func(*Task) (any, error) {
			ran = true
			return nil, nil
		})

		t.Cancel()
		s.RunOnce()

		Expect(ran).To(BeFalse())
		Expect(t.State()).To(Equal(TaskCancelled))
		Expect(t.Cancel()).To(BeFalse())
	})

	It("should let a task swallow cancellation and finish normally", func() {
		cleaned := false
		t := s.Schedule(func(t *Task) (any, error) {
			if err := t.Delay(5); errors.Is(err, ErrCancelled) {
				cleaned = true
			}
			return "cleaned", nil
		})

		s.RunOnce()
		t.Cancel()

		Expect(s.RunUntilComplete(t, math.Inf(1))).To(Succeed())
		Expect(cleaned).To(BeTrue())
		Expect(t.State()).To(Equal(TaskDone))
	})

	It("should turn a panic into a failed task", func() {
		t := s.Schedule(func(*Task) (any, error) {
			panic("boom")
		})

		Expect(s.RunUntilComplete(t, math.Inf(1))).To(Succeed())
		Expect(t.State()).To(Equal(TaskFailed))

		_, err := t.Result()
		var perr *PanicError
		Expect(errors.As(err, &perr)).To(BeTrue())
		Expect(perr.Value).To(Equal("boom"))
	})

	It("should await another task", func() {
		inner := s.Schedule(func(t *Task) (any, error) {
			if err := t.Delay(0.5); err != nil {
				return nil, err
			}
			return "inner", nil
		})
		outer := s.Schedule(func(t *Task) (any, error) {
			res, err := t.Await(inner)
			if err != nil {
				return nil, err
			}
			return res.(string) + "+outer", nil
		})

		Expect(s.RunUntilComplete(outer, math.Inf(1))).To(Succeed())
		res, _ := outer.Result()
		Expect(res).To(Equal("inner+outer"))
	})

	It("should stop at the deadline and leave the task running", func() {
		t := s.Schedule(func(t *Task) (any, error) {
			for {
				if err := t.Delay(1); err != nil {
					return nil, err
				}
			}
		})

		err := s.RunUntilComplete(t, 0.01)
		Expect(err).To(MatchError(ErrDeadlineExceeded))
		Expect(t.IsDone()).To(BeFalse())
		Expect(clock.Now()).To(BeNumerically("~", 0.01, 1e-12))
	})

	It("should report a stall when nothing can finish the task", func() {
		evt := s.NewEvent()
		t := s.Schedule(func(t *Task) (any, error) {
			return nil, evt.Wait(t)
		})

		Expect(s.RunUntilComplete(t, math.Inf(1))).To(MatchError(ErrStalled))
		Expect(t.State()).To(Equal(TaskSuspended))
	})

	It("should invoke hooks at task start and end", func() {
		positions := []string{}
		s.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			positions = append(positions, ctx.Pos.Name)
		}))

		t := s.Schedule(func(*Task) (any, error) { return nil, nil })
		Expect(s.RunUntilComplete(t, math.Inf(1))).To(Succeed())

		Expect(positions).To(Equal([]string{"TaskStart", "TaskEnd"}))
	})

	It("should fire CallLater callbacks unless cancelled", func() {
		fired := []string{}
		s.CallLater(0.1, func() { fired = append(fired, "kept") })
		h := s.CallLater(0.05, func() { fired = append(fired, "dropped") })
		h.Cancel()

		clock.Advance(0.2)
		s.RunOnce()

		Expect(fired).To(Equal([]string{"kept"}))
		Expect(h.Cancelled()).To(BeTrue())
		Expect(h.Fired()).To(BeFalse())
	})
})

var _ = Describe("Event", func() {
	var (
		s *Scheduler
	)

	BeforeEach(func() {
		s = MakeBuilder().WithClock(NewVirtualClock()).Build()
	})

	AfterEach(func() {
		s.Shutdown()
	})

	It("should wake every waiter when set", func() {
		evt := s.NewEvent()
		woken := 0
		mk := func() *Task {
			return s.Schedule(func(t *Task) (any, error) {
				if err := evt.Wait(t); err != nil {
					return nil, err
				}
				woken++
				return nil, nil
			})
		}

		a, b := mk(), mk()
		s.RunOnce()
		Expect(woken).To(Equal(0))

		evt.Set()
		Expect(s.RunUntilComplete(a, math.Inf(1))).To(Succeed())
		Expect(s.RunUntilComplete(b, math.Inf(1))).To(Succeed())
		Expect(woken).To(Equal(2))
	})

	It("should return immediately when already set", func() {
		evt := s.NewEvent()
		evt.Set()

		t := s.Schedule(func(t *Task) (any, error) {
			return nil, evt.Wait(t)
		})

		s.RunOnce()
		Expect(t.State()).To(Equal(TaskDone))
	})

	It("should return ErrCancelled when the waiter is cancelled", func() {
		evt := s.NewEvent()
		t := s.Schedule(func(t *Task) (any, error) {
			return nil, evt.Wait(t)
		})

		s.RunOnce()
		t.Cancel()
		s.RunOnce()

		Expect(t.State()).To(Equal(TaskCancelled))
		Expect(evt.waiters).To(BeEmpty())
	})
})
