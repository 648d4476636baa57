// Package monitoring serves a scope over HTTP so that it can be watched and
// controlled from a browser.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/rpscope/blocking"
	"github.com/sarchlab/rpscope/datarecording"
	"github.com/sarchlab/rpscope/monitoring/web"
	"github.com/sarchlab/rpscope/scope"
	"github.com/sarchlab/rpscope/tracing"
)

// Monitor turns a scope into a web server. The scope is only ever touched
// on the logical thread: every handler goes through the host queue.
type Monitor struct {
	scope      *scope.Scope
	queue      *blocking.Queue
	recorder   datarecording.DataRecorder
	reader     datarecording.DataReader
	portNumber int
	log        zerolog.Logger

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{log: zerolog.Nop()}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(l zerolog.Logger) *Monitor {
	m.log = l.With().Str("component", "monitor").Logger()
	return m
}

// RegisterScope sets the scope to serve and the queue that runs closures
// on the logical thread.
func (m *Monitor) RegisterScope(s *scope.Scope, q *blocking.Queue) {
	m.scope = s
	m.queue = q
}

// RegisterRecording lets /api/captures list the traced captures. The
// recorder is flushed before each query.
func (m *Monitor) RegisterRecording(
	recorder datarecording.DataRecorder,
	reader datarecording.DataReader,
) {
	m.recorder = recorder
	m.reader = reader
	m.reader.MapTable(tracing.TaskTable, tracing.TaskEntry{})
}

// Router returns the routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	api.HandleFunc("/state", m.state).Methods(http.MethodGet)
	api.HandleFunc("/scope", m.scopeDetails).Methods(http.MethodGet)
	api.HandleFunc("/curve", m.curve).Methods(http.MethodGet)
	api.HandleFunc("/setup", m.setup).Methods(http.MethodPost)
	api.HandleFunc("/run", m.control(m.run)).Methods(http.MethodPost)
	api.HandleFunc("/single", m.control(m.single)).Methods(http.MethodPost)
	api.HandleFunc("/pause", m.control(m.pause)).Methods(http.MethodPost)
	api.HandleFunc("/resume", m.control(m.resume)).Methods(http.MethodPost)
	api.HandleFunc("/stop", m.control(m.stop)).Methods(http.MethodPost)
	api.HandleFunc("/captures", m.captures).Methods(http.MethodGet)
	api.HandleFunc("/resource", m.listResources).Methods(http.MethodGet)
	api.HandleFunc("/profile", m.collectProfile).Methods(http.MethodGet)

	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

// StartServer starts serving in the background and returns the URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	m.dieOnErr(err)

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring scope with %s\n", url)

	go func() {
		err := m.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			m.dieOnErr(err)
		}
	}()

	return url
}

// OpenBrowser opens the monitor page in the default browser.
func (m *Monitor) OpenBrowser(url string) {
	if err := browser.OpenURL(url); err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("cannot open browser")
	}
}

// StopServer shuts the server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) state(w http.ResponseWriter, _ *http.Request) {
	var status scope.Status
	m.queue.Call(func() { status = m.scope.Status() })

	m.writeJSON(w, status)
}

// scopeDetails dumps the scope status with goseth. The optional field
// query parameter selects a nested field, such as Config.Source.
func (m *Monitor) scopeDetails(w http.ResponseWriter, r *http.Request) {
	var status scope.Status
	m.queue.Call(func() { status = m.scope.Status() })

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&status)
	serializer.SetMaxDepth(2)

	if field := r.URL.Query().Get("field"); field != "" {
		err := serializer.SetEntryPoint(strings.Split(field, "."))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	m.dieOnErr(serializer.Serialize(w))
}

// curveRsp is a Curve with NaN samples turned into nulls.
type curveRsp struct {
	Kind     scope.CurveKind `json:"kind"`
	Times    []float64       `json:"times"`
	Ch       [2][]*float64   `json:"ch"`
	Averages int             `json:"averages"`
}

func toCurveRsp(c *scope.Curve) curveRsp {
	rsp := curveRsp{
		Kind:     c.Kind,
		Times:    c.Times,
		Averages: c.Averages,
	}

	for i, samples := range c.Ch {
		if samples == nil {
			continue
		}

		rsp.Ch[i] = make([]*float64, len(samples))
		for k := range samples {
			if !math.IsNaN(samples[k]) {
				rsp.Ch[i][k] = &samples[k]
			}
		}
	}

	return rsp
}

func (m *Monitor) curve(w http.ResponseWriter, _ *http.Request) {
	var c *scope.Curve
	m.queue.Call(func() { c = m.scope.LastCurve() })

	if c == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	m.writeJSON(w, toCurveRsp(c))
}

type setupReq struct {
	Config       *scope.TriggerConfig `json:"config,omitempty"`
	Duration     *float64             `json:"duration,omitempty"`
	TraceAverage *int                 `json:"trace_average,omitempty"`
	RollingMode  *bool                `json:"rolling_mode,omitempty"`
}

func (m *Monitor) applySetup(req setupReq) error {
	if req.Config != nil {
		if err := m.scope.Setup(*req.Config); err != nil {
			return err
		}
	}

	if req.Duration != nil {
		if err := m.scope.SetDuration(*req.Duration); err != nil {
			return err
		}
	}

	if req.TraceAverage != nil {
		if err := m.scope.SetTraceAverage(*req.TraceAverage); err != nil {
			return err
		}
	}

	if req.RollingMode != nil {
		m.scope.SetRollingMode(*req.RollingMode)
	}

	return nil
}

func (m *Monitor) setup(w http.ResponseWriter, r *http.Request) {
	req := setupReq{}

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var status scope.Status

	m.queue.Call(func() {
		err = m.applySetup(req)
		status = m.scope.Status()
	})

	if errors.Is(err, scope.ErrInvalidArgument) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeJSON(w, status)
}

// control wraps an operation that only starts or steers the acquisition
// loop. It never waits for a capture, so it is safe to run between host
// events.
func (m *Monitor) control(op func()) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var status scope.Status

		m.queue.Call(func() {
			op()
			status = m.scope.Status()
		})

		m.log.Debug().Str("running_state", status.RunningState).
			Msg("control request")

		m.writeJSON(w, status)
	}
}

func (m *Monitor) run()    { m.scope.RunContinuous() }
func (m *Monitor) single() { m.scope.SingleTask() }
func (m *Monitor) pause()  { m.scope.Pause() }
func (m *Monitor) resume() { m.scope.Resume() }
func (m *Monitor) stop()   { m.scope.Stop() }

type capturesRsp struct {
	Total    int   `json:"total"`
	Captures []any `json:"captures"`
}

func (m *Monitor) captures(w http.ResponseWriter, r *http.Request) {
	if m.reader == nil {
		http.Error(w, "no recording", http.StatusNotFound)
		return
	}

	params, err := capturesParseParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.recorder.Flush()

	results, total, err := m.reader.Query(r.Context(), tracing.TaskTable, params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if results == nil {
		results = []any{}
	}

	m.writeJSON(w, capturesRsp{Total: total, Captures: results})
}

// capturesParseParams reads limit, offset and outcome from the query.
func capturesParseParams(r *http.Request) (datarecording.QueryParams, error) {
	params := datarecording.QueryParams{
		Where:   "Kind = ?",
		Args:    []any{tracing.KindCapture},
		OrderBy: "StartTime DESC",
		Limit:   100,
	}

	q := r.URL.Query()

	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			return params, fmt.Errorf("invalid limit %q", s)
		}

		params.Limit = limit
	}

	if s := q.Get("offset"); s != "" {
		offset, err := strconv.Atoi(s)
		if err != nil || offset < 0 {
			return params, fmt.Errorf("invalid offset %q", s)
		}

		params.Offset = offset
	}

	if s := q.Get("outcome"); s != "" {
		if s != "acquired" && s != "reset" {
			return params, fmt.Errorf(
				"invalid outcome %q, allowed values are acquired and reset", s)
		}

		params.Where += " AND Outcome = ?"
		params.Args = append(params.Args, s)
	}

	return params, nil
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	m.dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	m.dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	m.dieOnErr(err)

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second
	if s := r.URL.Query().Get("seconds"); s != "" {
		seconds, err := strconv.ParseFloat(s, 64)
		if err != nil || seconds <= 0 || seconds > 30 {
			http.Error(w, fmt.Sprintf("invalid seconds %q", s),
				http.StatusBadRequest)
			return
		}

		duration = time.Duration(seconds * float64(time.Second))
	}

	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(duration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	m.dieOnErr(err)

	m.writeJSON(w, prof)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	m.dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	if err != nil {
		m.log.Debug().Err(err).Msg("write response")
	}
}

func (m *Monitor) dieOnErr(err error) {
	if err != nil {
		m.log.Error().Err(err).Msg("monitor failure")
		panic(err)
	}
}
