package session

import (
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/sarchlab/rpscope/blocking"
	"github.com/sarchlab/rpscope/coop"
	"github.com/sarchlab/rpscope/datarecording"
	"github.com/sarchlab/rpscope/monitoring"
	"github.com/sarchlab/rpscope/regio"
	"github.com/sarchlab/rpscope/scope"
	"github.com/sarchlab/rpscope/scope/scopesim"
	"github.com/sarchlab/rpscope/tracing"
)

// DefaultQueueCapacity is the number of host events that can be pending.
const DefaultQueueCapacity = 64

// Builder can be used to build a session.
type Builder struct {
	virtualTime    bool
	monitorOn      bool
	monitorPort    int
	openBrowser    bool
	recordingOn    bool
	outputFileName string
	clickHouse     *datarecording.ClickHouseOptions
	bus            regio.Bus
	signals        [2]scopesim.Signal
	log            zerolog.Logger
}

// MakeBuilder creates a new builder. By default a session runs on the wall
// clock with a monitor and a SQLite recording, and drives a simulated
// device fed with a 1 kHz sine and a 2 ms ramp.
func MakeBuilder() Builder {
	return Builder{
		monitorOn:   true,
		recordingOn: true,
		signals: [2]scopesim.Signal{
			scopesim.Sine(0.5, 1e3, 0),
			scopesim.Ramp(0.8, 2e-3),
		},
		log: zerolog.Nop(),
	}
}

// WithVirtualTime runs the session on a virtual clock. Nothing waits for
// real time, so it only suits batch acquisitions against the simulator.
func (b Builder) WithVirtualTime() Builder {
	b.virtualTime = true
	return b
}

// WithoutMonitoring sets the session to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithBrowser opens the monitor page once the server is up.
func (b Builder) WithBrowser() Builder {
	b.openBrowser = true
	return b
}

// WithoutRecording sets the session to not trace captures.
func (b Builder) WithoutRecording() Builder {
	b.recordingOn = false
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithClickHouse records into ClickHouse instead of a SQLite file.
func (b Builder) WithClickHouse(opt datarecording.ClickHouseOptions) Builder {
	b.clickHouse = &opt
	return b
}

// WithBus drives real hardware instead of the simulator.
func (b Builder) WithBus(bus regio.Bus) Builder {
	b.bus = bus
	return b
}

// WithSignal sets the simulated signal at input 1 or 2.
func (b Builder) WithSignal(ch int, s scopesim.Signal) Builder {
	b.signals[ch-1] = s
	return b
}

// WithLogger sets the logger shared by all parts of the session.
func (b Builder) WithLogger(l zerolog.Logger) Builder {
	b.log = l
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if b.monitorOn && b.virtualTime {
		panic("monitoring needs the wall clock")
	}

	if !b.recordingOn && (b.outputFileName != "" || b.clickHouse != nil) {
		panic("output cannot be set when recording is disabled")
	}
}

// Build builds the session.
func (b Builder) Build() *Session {
	b.parametersMustBeValid()

	s := &Session{
		id:  xid.New().String(),
		log: b.log,
	}

	b.buildRuntime(s)
	b.buildScope(s)

	s.captureStats = tracing.NewTotalTimeTracer(
		tracing.KindFilter(tracing.KindCapture))
	tracing.CollectTrace(s.scope, s.captureStats)

	if b.recordingOn {
		b.buildRecording(s)
	}

	if b.monitorOn {
		b.buildMonitor(s)
	}

	s.log.Info().Str("session", s.id).Bool("virtual_time", b.virtualTime).
		Msg("session started")

	return s
}

func (b Builder) buildRuntime(s *Session) {
	if b.virtualTime {
		s.clock = coop.NewVirtualClock()
	} else {
		s.clock = coop.NewWallClock()
	}

	s.sched = coop.MakeBuilder().
		WithClock(s.clock).
		WithLogger(b.log).
		Build()
	s.quit = s.sched.NewEvent()

	wb := blocking.MakeBuilder().
		WithScheduler(s.sched).
		WithLogger(b.log)

	if !b.virtualTime {
		s.queue = blocking.NewQueue(DefaultQueueCapacity)
		wb = wb.WithHostLoop(s.queue)
	}

	s.waiter = wb.Build()
}

func (b Builder) buildScope(s *Session) {
	bus := b.bus
	if bus == nil {
		s.device = scopesim.MakeBuilder().
			WithClock(s.clock).
			WithSignal(1, b.signals[0]).
			WithSignal(2, b.signals[1]).
			WithLogger(b.log).
			Build()
		bus = s.device
	}

	s.scope = scope.MakeBuilder().
		WithBus(bus).
		WithWaiter(s.waiter).
		WithLogger(b.log).
		Build()
}

func (b Builder) buildRecording(s *Session) {
	if b.clickHouse != nil {
		s.recorder = datarecording.NewClickHouseRecorder(*b.clickHouse)
	} else {
		s.outputPath = b.outputFileName
		if s.outputPath == "" {
			s.outputPath = "rpscope_" + s.id
		}

		s.recorder = datarecording.New(s.outputPath)
	}

	s.exec = datarecording.NewExecRecorder(s.recorder)
	s.exec.Start()
	s.exec.Note("Session", s.id)

	s.tracer = tracing.NewDBTracer(s.recorder, nil)
	tracing.CollectTrace(s.scope, s.tracer)
	tracing.CollectTaskTrace(s.sched, "scheduler", s.tracer)
}

func (b Builder) buildMonitor(s *Session) {
	s.monitor = monitoring.NewMonitor().
		WithPortNumber(b.monitorPort).
		WithLogger(b.log)
	s.monitor.RegisterScope(s.scope, s.queue)

	if s.outputPath != "" {
		s.monitor.RegisterRecording(s.recorder,
			datarecording.NewReader(s.outputPath+".sqlite3"))
	}

	url := s.monitor.StartServer()
	if s.exec != nil {
		s.exec.Note("Monitor", url)
	}

	if b.openBrowser {
		s.monitor.OpenBrowser(url)
	}
}
