package scope

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/rpscope/blocking"
	"github.com/sarchlab/rpscope/coop"
	"github.com/sarchlab/rpscope/hooking"
	"github.com/sarchlab/rpscope/regio"
	"github.com/sarchlab/rpscope/scope/regmap"
)

func newTestWaiter() *blocking.Waiter {
	sched := coop.MakeBuilder().WithClock(coop.NewVirtualClock()).Build()
	return blocking.MakeBuilder().WithScheduler(sched).Build()
}

func addr(off uint32) uint32 {
	return regmap.BaseAddr + off
}

var _ = Describe("Acquisition", func() {
	var (
		bus *regio.MemoryBus
		s   *Scope
		cfg TriggerConfig
	)

	BeforeEach(func() {
		bus = regio.NewMemoryBus()
		s = MakeBuilder().WithBus(bus).WithWaiter(newTestWaiter()).Build()
		cfg = TriggerConfig{Source: SourceImmediately, Decimation: 64}
	})

	It("should be idle and not ready when fresh", func() {
		Expect(s.State()).To(Equal(Idle))
		Expect(s.CurveReady()).To(BeFalse())
	})

	It("should program the hardware in order when arming", func() {
		Expect(s.Arm(cfg)).To(Succeed())

		var addrs []uint32
		for _, w := range bus.Writes() {
			addrs = append(addrs, w.Addr-regmap.BaseAddr)
		}

		Expect(addrs).To(Equal([]uint32{
			regmap.Control,
			regmap.Decimation.Addr,
			regmap.Threshold.Addr,
			regmap.Hysteresis.Addr,
			regmap.TriggerDelay.Addr,
			regmap.Control,
			regmap.TriggerSource.Addr,
		}))
		Expect(bus.Peek(addr(regmap.TriggerDelay.Addr))).To(Equal(uint32(16384)))
		Expect(bus.Peek(addr(regmap.Decimation.Addr))).To(Equal(uint32(64)))
		Expect(bus.Peek(addr(regmap.TriggerSource.Addr))).
			To(Equal(regmap.SourceImmediately))
	})

	It("should not be ready right after arming", func() {
		Expect(s.Arm(cfg)).To(Succeed())

		Expect(s.State()).To(Equal(Armed))
		Expect(s.CurveReady()).To(BeFalse())
	})

	It("should report the post-trigger countdown", func() {
		Expect(s.Arm(cfg)).To(Succeed())
		bus.Poke(addr(regmap.Control), 1<<regmap.BitTriggerDelayActive)

		Expect(s.State()).To(Equal(TriggerDelayRunning))
		Expect(s.CurveReady()).To(BeFalse())
	})

	It("should be ready once both flags clear", func() {
		Expect(s.Arm(cfg)).To(Succeed())
		bus.Poke(addr(regmap.Control), 0)

		Expect(s.State()).To(Equal(DataReady))
		Expect(s.CurveReady()).To(BeTrue())
	})

	It("should reject a second arm without touching the hardware", func() {
		Expect(s.Arm(cfg)).To(Succeed())
		bus.ClearLog()

		err := s.Arm(cfg)

		Expect(err).To(MatchError(ErrBusy))
		Expect(bus.Writes()).To(BeEmpty())
		Expect(s.State()).To(Equal(Armed))
	})

	It("should reject an invalid config without touching the hardware", func() {
		cfg.Decimation = 100

		err := s.Arm(cfg)

		Expect(err).To(MatchError(ErrInvalidArgument))
		Expect(errors.Is(err, coop.ErrInvalidArgument)).To(BeTrue())
		Expect(bus.Writes()).To(BeEmpty())
		Expect(s.State()).To(Equal(Idle))
	})

	It("should not return a trace before the capture completes", func() {
		_, err := s.Trace()
		Expect(err).To(MatchError(ErrNotReady))

		Expect(s.Arm(cfg)).To(Succeed())

		_, err = s.Trace()
		Expect(err).To(MatchError(ErrNotReady))
	})

	Context("when the capture has completed", func() {
		BeforeEach(func() {
			for i := uint32(0); i < regmap.BufferLength; i++ {
				bus.Poke(addr(regmap.Ch1Data+4*i), i%8192)
				bus.Poke(addr(regmap.Ch2Data+4*i), 16383)
			}

			Expect(s.Arm(cfg)).To(Succeed())

			bus.Poke(addr(regmap.Control), 0)
			bus.Poke(addr(regmap.WritePointerTrigger.Addr), 100)
		})

		It("should rotate the buffer to start after the last written sample", func() {
			tr, err := s.Trace()

			Expect(err).NotTo(HaveOccurred())
			Expect(tr.Ch[0]).To(HaveLen(16384))
			Expect(tr.Ch[0][0]).To(Equal(101.0 / 8192))
			Expect(tr.Ch[0][16383]).To(Equal(100.0 / 8192))
			Expect(tr.Ch[1][0]).To(Equal(-1.0 / 8192))
			Expect(tr.Times[0]).To(Equal(0.0))
			Expect(tr.Config).To(Equal(cfg))
		})

		It("should consume the capture", func() {
			_, err := s.Trace()
			Expect(err).NotTo(HaveOccurred())

			Expect(s.State()).To(Equal(Idle))
			Expect(s.CurveReady()).To(BeFalse())

			_, err = s.Trace()
			Expect(err).To(MatchError(ErrNotReady))
		})

		It("should keep the armed config when settings change", func() {
			Expect(s.SetDecimation(1024)).To(Succeed())

			tr, err := s.Trace()

			Expect(err).NotTo(HaveOccurred())
			Expect(tr.Config.Decimation).To(Equal(64))
		})
	})

	It("should go back to idle on reset", func() {
		Expect(s.Arm(cfg)).To(Succeed())

		Expect(s.Reset()).To(Succeed())

		Expect(s.State()).To(Equal(Idle))
		word := bus.Peek(addr(regmap.Control))
		Expect(regio.GetBit(word, regmap.BitTriggerArmed)).To(BeFalse())
	})

	It("should invoke the capture hooks", func() {
		var positions []string
		s.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			positions = append(positions, ctx.Pos.Name)
			Expect(ctx.Item.(CaptureInfo).ID).NotTo(BeEmpty())
		}))

		Expect(s.Arm(cfg)).To(Succeed())
		bus.Poke(addr(regmap.Control), 0)
		_, err := s.Trace()
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Arm(cfg)).To(Succeed())
		Expect(s.Reset()).To(Succeed())

		Expect(positions).To(Equal([]string{
			"CaptureArmed", "CaptureAcquired", "CaptureArmed", "CaptureReset",
		}))
	})

	It("should clamp threshold writes that do not fit", func() {
		cfg.Threshold = 2

		Expect(s.Arm(cfg)).To(Succeed())

		raw := bus.Peek(addr(regmap.Threshold.Addr))
		Expect(regio.Normalize(uint64(raw), 14, 8192)).
			To(Equal(8191.0 / 8192))
	})
})

var _ = Describe("Acquisition on a failing bus", func() {
	var (
		mockCtrl *gomock.Controller
		bus      *MockBus
		s        *Scope
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		bus = NewMockBus(mockCtrl)
		s = MakeBuilder().WithBus(bus).WithWaiter(newTestWaiter()).Build()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should reset and stay idle when a register write fails", func() {
		boom := errors.New("bus error")
		resets := 0

		bus.EXPECT().Read(gomock.Any()).Return(uint32(0), nil).AnyTimes()
		bus.EXPECT().Write(gomock.Any(), gomock.Any()).
			DoAndReturn(func(a, v uint32) error {
				if a == addr(regmap.Decimation.Addr) {
					return boom
				}

				if a == addr(regmap.Control) &&
					regio.GetBit(v, regmap.BitResetStateMachine) {
					resets++
				}

				return nil
			}).AnyTimes()

		err := s.Arm(TriggerConfig{Source: SourceImmediately, Decimation: 1})

		Expect(err).To(MatchError(boom))
		Expect(resets).To(Equal(2), "pulse before arming and reset after failure")
		Expect(s.State()).To(Equal(Idle))
	})

	It("should report a failing status read", func() {
		bus.EXPECT().Read(gomock.Any()).Return(uint32(0), nil).AnyTimes()
		bus.EXPECT().Write(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		Expect(s.Arm(TriggerConfig{Source: SourceImmediately, Decimation: 1})).
			To(Succeed())

		mockCtrl.Finish()
		mockCtrl = gomock.NewController(GinkgoT())
		failing := NewMockBus(mockCtrl)
		failing.EXPECT().Read(gomock.Any()).
			Return(uint32(0), errors.New("timeout")).AnyTimes()
		s.regs = regio.NewWindow(failing, regmap.BaseAddr)

		_, err := s.State()
		Expect(err).To(HaveOccurred())
		Expect(s.CurveReady()).To(BeFalse())
	})
})

var _ = Describe("Rolling curve", func() {
	var (
		bus *regio.MemoryBus
		s   *Scope
	)

	BeforeEach(func() {
		bus = regio.NewMemoryBus()
		s = MakeBuilder().WithBus(bus).WithWaiter(newTestWaiter()).Build()

		for i := uint32(0); i < regmap.BufferLength; i++ {
			bus.Poke(addr(regmap.Ch1Data+4*i), i%4096)
			bus.Poke(addr(regmap.Ch2Data+4*i), i%4096)
		}

		bus.Poke(addr(regmap.WritePointerCurrent.Addr), 5000)
	})

	It("should start at the write pointer when nothing was overwritten", func() {
		w, err := s.RollingCurve()

		Expect(err).NotTo(HaveOccurred())
		Expect(w.Discarded).To(Equal(0))
		Expect(w.Ch[0][0]).To(Equal(float64(5000%4096) / 8192))
		Expect(w.Times[16383]).To(Equal(0.0))
		Expect(w.Times[0]).To(BeNumerically("<", 0))
	})

	It("should never expose slots overwritten during the read", func() {
		reads := 0
		wpAddr := addr(regmap.WritePointerCurrent.Addr)
		bus.OnRead = func(a uint32) {
			if a != wpAddr {
				return
			}

			reads++
			if reads == 2 {
				bus.Poke(wpAddr, 5300)
			}
		}

		w, err := s.RollingCurve()

		Expect(err).NotTo(HaveOccurred())
		Expect(w.Discarded).To(Equal(300))

		for _, ch := range w.Ch {
			for i := 0; i < 300; i++ {
				Expect(math.IsNaN(ch[i])).To(BeTrue())
			}

			for i := 300; i < 16384; i++ {
				slot := (5000 + i) % 16384
				Expect(ch[i]).To(Equal(float64(slot%4096) / 8192))
			}
		}
	})

	It("should handle a write pointer that wrapped around", func() {
		reads := 0
		wpAddr := addr(regmap.WritePointerCurrent.Addr)
		bus.Poke(wpAddr, 16380)
		bus.OnRead = func(a uint32) {
			if a == wpAddr {
				reads++
				if reads == 2 {
					bus.Poke(wpAddr, 4)
				}
			}
		}

		w, err := s.RollingCurve()

		Expect(err).NotTo(HaveOccurred())
		Expect(w.Discarded).To(Equal(8))
		Expect(math.IsNaN(w.Ch[0][7])).To(BeTrue())
		Expect(math.IsNaN(w.Ch[0][8])).To(BeFalse())
	})

	It("should leave inactive channels out", func() {
		Expect(s.SetChannelActive(2, false)).To(Succeed())

		w, err := s.RollingCurve()

		Expect(err).NotTo(HaveOccurred())
		Expect(w.Ch[0]).To(HaveLen(16384))
		Expect(w.Ch[1]).To(BeNil())
	})
})
