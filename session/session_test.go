package session

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rpscope/datarecording"
	"github.com/sarchlab/rpscope/scope"
	"github.com/sarchlab/rpscope/scope/scopesim"
	"github.com/sarchlab/rpscope/tracing"
)

type execInfo struct {
	Property string
	Value    string
}

var _ = Describe("Session", func() {
	It("should acquire on virtual time and record the capture", func() {
		path := filepath.Join(GinkgoT().TempDir(), "run")

		s := MakeBuilder().
			WithVirtualTime().
			WithoutMonitoring().
			WithOutputFileName(path).
			WithSignal(1, scopesim.Constant(0.25)).
			Build()

		Expect(s.Queue()).To(BeNil())
		Expect(s.Device()).NotTo(BeNil())
		Expect(s.Scope().SetDecimation(1)).To(Succeed())

		c, err := s.Scope().Single(time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Kind).To(Equal(scope.CurveAveraged))
		Expect(c.Ch[0][0]).To(Equal(0.25))

		s.Note("Decimation", "1")
		s.Terminate()

		Expect(s.CaptureStats().TaskCount()).To(Equal(uint64(1)))
		Expect(s.CaptureStats().Outcomes()).To(HaveKeyWithValue("acquired", uint64(1)))

		reader := datarecording.NewReader(path + ".sqlite3")
		defer reader.Close()

		reader.MapTable(tracing.TaskTable, tracing.TaskEntry{})
		reader.MapTable("exec_info", execInfo{})

		_, total, err := reader.Query(context.Background(), tracing.TaskTable,
			datarecording.QueryParams{
				Where: "Kind = ? AND Outcome = ?",
				Args:  []any{tracing.KindCapture, "acquired"},
			})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))

		tasks, _, err := reader.Query(context.Background(), tracing.TaskTable,
			datarecording.QueryParams{
				Where: "Kind = ? AND Location = ?",
				Args:  []any{tracing.KindTask, "scheduler"},
			})
		Expect(err).NotTo(HaveOccurred())
		Expect(tasks).NotTo(BeEmpty())

		rows, _, err := reader.Query(context.Background(), "exec_info",
			datarecording.QueryParams{Where: "Property = ?", Args: []any{"Decimation"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].(*execInfo).Value).To(Equal("1"))
	})

	It("should refuse to serve without a host loop", func() {
		s := MakeBuilder().WithVirtualTime().WithoutMonitoring().
			WithoutRecording().Build()
		defer s.Terminate()

		Expect(s.Serve()).To(MatchError(ErrNoHostLoop))
	})

	It("should serve until quit", func() {
		s := MakeBuilder().WithoutMonitoring().WithoutRecording().Build()

		done := make(chan error)
		go func() { done <- s.Serve() }()

		s.Quit()
		Eventually(done, time.Second).Should(Receive(BeNil()))

		s.Terminate()
	})

	It("should serve the monitor on the wall clock", func() {
		s := MakeBuilder().WithoutRecording().Build()

		Expect(s.Monitor()).NotTo(BeNil())

		done := make(chan error)
		go func() { done <- s.Serve() }()

		s.Quit()
		Eventually(done, time.Second).Should(Receive(BeNil()))

		s.Terminate()
	})

	DescribeTable("invalid builders",
		func(b Builder) {
			Expect(func() { b.Build() }).To(Panic())
		},
		Entry("monitor on virtual time", MakeBuilder().WithVirtualTime()),
		Entry("port without monitor",
			MakeBuilder().WithoutMonitoring().WithMonitorPort(8080)),
		Entry("output without recording",
			MakeBuilder().WithoutMonitoring().WithoutRecording().
				WithOutputFileName("x")),
	)
})
