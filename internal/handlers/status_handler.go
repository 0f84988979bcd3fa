package handlers

import (
	"net/http"

	"github.com/mild-blue/shepherd/internal/shepherd"
)

// StatusHandler serves GET /status -> status() (spec.md §4.5, §4.6).
type StatusHandler struct {
	BaseHandler
	sched *shepherd.Shepherd
}

func NewStatusHandler(sched *shepherd.Shepherd) *StatusHandler {
	return &StatusHandler{sched: sched}
}

type usageBody struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
}

type sheepStatusBody struct {
	Running     bool       `json:"running"`
	Model       modelSpec  `json:"model"`
	QueueLength int        `json:"queue_length"`
	InFlight    string     `json:"in_flight,omitempty"`
	Usage       *usageBody `json:"usage,omitempty"`
}

func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	snapshot := h.sched.Status()
	body := map[string]map[string]sheepStatusBody{"sheep": {}}
	for _, s := range snapshot {
		entry := sheepStatusBody{
			Running:     s.Running,
			Model:       modelSpec{Name: s.Model.Name, Version: s.Model.Version},
			QueueLength: s.QueueLength,
			InFlight:    s.InFlight,
		}
		if s.HasUsage {
			entry.Usage = &usageBody{CPUPercent: s.Usage.CPUPercent, MemoryRSSBytes: s.Usage.MemoryRSSBytes}
		}
		body["sheep"][s.ID] = entry
	}
	h.respondWithJSON(w, http.StatusOK, body)
}
