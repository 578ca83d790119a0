package cmd

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/dvfs-sim/sim"
	"github.com/inference-sim/dvfs-sim/sim/trace"
)

// Status is the body of GET /api/status.
type Status struct {
	RunID        string  `json:"run_id"`
	Hierarchy    string  `json:"hierarchy"`
	Policy       string  `json:"policy"`
	State        string  `json:"state"`
	Intervals    int     `json:"intervals"`
	Tick         int64   `json:"tick"`
	Level        int     `json:"level"`
	Frequency    string  `json:"frequency,omitempty"`
	Voltage      string  `json:"voltage,omitempty"`
	CumulativeNJ float64 `json:"cumulative_nj"`
	PowerW       float64 `json:"power_w"`
	UptimeSec    float64 `json:"uptime_sec"`
}

// Monitor publishes the progress of one run over HTTP. Publish is called
// from the run loop; handlers read a copy under the lock.
type Monitor struct {
	mu      sync.RWMutex
	status  Status
	records []trace.IntervalRecord
	started time.Time
}

// NewMonitor creates a monitor for a run that has not started yet.
func NewMonitor(runID, hierarchy, policy string) *Monitor {
	return &Monitor{
		status: Status{
			RunID:     runID,
			Hierarchy: hierarchy,
			Policy:    policy,
			State:     string(sim.StateRunning),
		},
		started: time.Now(),
	}
}

// Publish records a finished interval. It has the sim.IntervalObserver shape.
func (m *Monitor) Publish(rec trace.IntervalRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	m.status.Intervals = rec.Interval
	m.status.Tick = rec.Tick
	m.status.Level = rec.Level
	m.status.Frequency = rec.Frequency
	m.status.Voltage = rec.Voltage
	m.status.CumulativeNJ = rec.CumulativeNJ
	m.status.PowerW = rec.PowerW
}

// Finish records the terminal run state.
func (m *Monitor) Finish(state sim.RunState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.State = string(state)
}

// Router returns the monitor's HTTP routes.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", m.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/intervals", m.handleIntervals).Methods(http.MethodGet)
	r.HandleFunc("/api/intervals/{n:[0-9]+}", m.handleInterval).Methods(http.MethodGet)
	return r
}

// Serve listens on addr and serves the router in the background.
func (m *Monitor) Serve(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: m.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("monitor: %v", err)
		}
	}()
	logrus.Infof("Monitor listening on http://%s/api/status", ln.Addr())
	return srv, nil
}

func (m *Monitor) handleStatus(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	status := m.status
	m.mu.RUnlock()
	status.UptimeSec = time.Since(m.started).Seconds()
	writeJSON(w, http.StatusOK, status)
}

// handleIntervals lists records, optionally only those after ?since=N.
func (m *Monitor) handleIntervals(w http.ResponseWriter, r *http.Request) {
	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "since must be a non-negative integer", http.StatusBadRequest)
			return
		}
		since = n
	}
	m.mu.RLock()
	out := make([]trace.IntervalRecord, 0, len(m.records))
	for _, rec := range m.records {
		if rec.Interval > since {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()
	writeJSON(w, http.StatusOK, out)
}

func (m *Monitor) handleInterval(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(mux.Vars(r)["n"])
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.Interval == n {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	http.Error(w, "interval not recorded", http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("monitor: encoding response: %v", err)
	}
}
