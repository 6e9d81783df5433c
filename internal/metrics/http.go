package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/eventq/internal/engine"
	"github.com/dshills/eventq/internal/queue"
)

// NewRouter serves the Prometheus metrics gathered by g at /metrics and
// JSON snapshots of c at /queues, /queues/{name} and /engine. /healthz
// always answers ok.
func NewRouter(c *Collector, g prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", Handler(g)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/queues", c.handleQueues).Methods(http.MethodGet)
	r.HandleFunc("/queues/{name}", c.handleQueue).Methods(http.MethodGet)
	r.HandleFunc("/engine", c.handleEngine).Methods(http.MethodGet)
	return r
}

type queueJSON struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Pending  int    `json:"pending"`
	Ticks    uint64 `json:"ticks"`
	Leaks    uint64 `json:"leaks"`
	Masked   uint64 `json:"masked"`
	Filtered uint64 `json:"filtered"`
	Dropped  uint64 `json:"dropped"`
	Enqueued uint64 `json:"enqueued"`
	Polled   uint64 `json:"polled"`
}

func toQueueJSON(s queue.Stats) queueJSON {
	return queueJSON{
		Name:     s.Name,
		Capacity: s.Capacity,
		Pending:  s.Pending,
		Ticks:    s.Ticks,
		Leaks:    s.Leaks,
		Masked:   s.Masked,
		Filtered: s.Filtered,
		Dropped:  s.Dropped,
		Enqueued: s.Enqueued,
		Polled:   s.Polled,
	}
}

type engineJSON struct {
	Steps          uint64 `json:"steps"`
	Pulses         uint64 `json:"pulses"`
	Transferred    uint64 `json:"transferred"`
	Dispatched     uint64 `json:"dispatched"`
	DispatchErrors uint64 `json:"dispatch_errors"`
	JournalErrors  uint64 `json:"journal_errors"`
	Routes         int    `json:"routes"`
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *Collector) handleQueues(w http.ResponseWriter, _ *http.Request) {
	stats := c.Queues()
	out := make([]queueJSON, len(stats))
	for i, s := range stats {
		out[i] = toQueueJSON(s)
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *Collector) handleQueue(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, s := range c.Queues() {
		if s.Name == name {
			writeJSON(w, http.StatusOK, toQueueJSON(s))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown queue " + name})
}

func (c *Collector) handleEngine(w http.ResponseWriter, _ *http.Request) {
	_, _, loop := c.snapshot()
	if loop == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not running"})
		return
	}
	writeJSON(w, http.StatusOK, engineFromStats(loop()))
}

func engineFromStats(s engine.Stats) engineJSON {
	return engineJSON{
		Steps:          s.Steps,
		Pulses:         s.Pulses,
		Transferred:    s.Transferred,
		Dispatched:     s.Dispatched,
		DispatchErrors: s.DispatchErrors,
		JournalErrors:  s.JournalErrors,
		Routes:         s.Routes,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
