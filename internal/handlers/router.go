package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/mild-blue/shepherd/internal/metrics"
	"github.com/mild-blue/shepherd/internal/shepherd"
)

// NewRouter builds the Shepherd HTTP API (spec.md §4.6, §6), wrapped with
// permissive CORS matching the teacher's router style.
func NewRouter(sched *shepherd.Shepherd, reg *metrics.Registry) http.Handler {
	mux := http.NewServeMux()

	jobHandler := NewJobHandler(sched)
	statusHandler := NewStatusHandler(sched)
	reconfigureHandler := NewReconfigureHandler(sched)

	mux.HandleFunc("/start-job", withMetrics(reg, "/start-job", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		jobHandler.StartJob(w, r)
	}))

	mux.HandleFunc("/interrupt-job/", withMetrics(reg, "/interrupt-job", func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/interrupt-job/")
		if jobID == "" || r.Method != http.MethodPost {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		jobHandler.InterruptJob(w, r, jobID)
	}))

	mux.HandleFunc("/reconfigure/", withMetrics(reg, "/reconfigure", func(w http.ResponseWriter, r *http.Request) {
		sheepID := strings.TrimPrefix(r.URL.Path, "/reconfigure/")
		if sheepID == "" || r.Method != http.MethodPost {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		reconfigureHandler.Reconfigure(w, r, sheepID)
	}))

	mux.HandleFunc("/status", withMetrics(reg, "/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		statusHandler.Status(w, r)
	}))

	mux.HandleFunc("/jobs/", withMetrics(reg, "/jobs/{id}/wait", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/jobs/")
		jobID := strings.TrimSuffix(path, "/wait")
		if jobID == "" || jobID == path || r.Method != http.MethodGet {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		jobHandler.WaitJob(w, r, jobID)
	}))

	if reg != nil {
		mux.Handle("/metrics", reg.Handler())
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})
	return c.Handler(mux)
}

// statusRecorder captures the status code written so withMetrics can label
// APIRequests after the inner handler returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withMetrics records APIRequests/APIRequestDuration for route, mirroring
// the teacher's RecordAPIRequest/RecordAPIRequestDuration pairing. reg may
// be nil, in which case h runs uninstrumented.
func withMetrics(reg *metrics.Registry, route string, h http.HandlerFunc) http.HandlerFunc {
	if reg == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h(rec, r)
		reg.APIRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		reg.APIRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	}
}
