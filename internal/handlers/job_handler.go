package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mild-blue/shepherd/internal/apierr"
	"github.com/mild-blue/shepherd/internal/jobstore"
	"github.com/mild-blue/shepherd/internal/sheep"
	"github.com/mild-blue/shepherd/internal/shepherd"
)

// JobHandler serves the job-lifecycle routes of the API Facade.
type JobHandler struct {
	BaseHandler
	sched *shepherd.Shepherd
}

func NewJobHandler(sched *shepherd.Shepherd) *JobHandler {
	return &JobHandler{sched: sched}
}

type location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type modelSpec struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// startJobRequest is the body for POST /start-job (spec.md §6).
type startJobRequest struct {
	ID        string    `json:"id"`
	SheepID   string    `json:"sheep_id"`
	Model     modelSpec `json:"model"`
	Payload   location  `json:"payload"`
	Result    location  `json:"result"`
	StatusURL string    `json:"status_url,omitempty"`
}

// StartJob handles POST /start-job -> enqueue (spec.md §4.5, §4.6).
func (h *JobHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, apierr.New(apierr.KindApiClient, fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if req.ID == "" || req.SheepID == "" {
		h.respondWithError(w, apierr.New(apierr.KindApiClient, "id and sheep_id are required"))
		return
	}

	record := jobstore.Record{
		ID:        req.ID,
		SheepID:   req.SheepID,
		Model:     sheep.Model{Name: req.Model.Name, Version: req.Model.Version},
		Payload:   jobstore.Location{Bucket: req.Payload.Bucket, Key: req.Payload.Key},
		Result:    jobstore.Location{Bucket: req.Result.Bucket, Key: req.Result.Key},
		StatusURL: req.StatusURL,
	}

	if err := h.sched.Enqueue(r.Context(), record); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]any{})
}

// InterruptJob handles POST /interrupt-job/{id} -> cancel.
func (h *JobHandler) InterruptJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if err := h.sched.Cancel(r.Context(), jobID); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]any{})
}

// waitResponse is the body for GET /jobs/{id}/wait (spec.md §6).
type waitResponse struct {
	State string         `json:"state"`
	Error *waitErrorBody `json:"error,omitempty"`
}

type waitErrorBody struct {
	Message string `json:"message"`
}

// WaitJob handles GET /jobs/{id}/wait?timeout=SECONDS -> await_job.
func (h *JobHandler) WaitJob(w http.ResponseWriter, r *http.Request, jobID string) {
	timeout := time.Duration(0)
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.respondWithError(w, apierr.New(apierr.KindApiClient, "invalid timeout"))
			return
		}
		timeout = time.Duration(seconds * float64(time.Second))
	}

	state, err := h.sched.AwaitJob(r.Context(), jobID, timeout)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	resp := waitResponse{State: string(state)}
	if state == jobstore.StateFailed {
		record, lookupErr := h.sched.JobRecord(jobID)
		if lookupErr == nil && record.Err != nil {
			resp.Error = &waitErrorBody{Message: record.Err.Message}
		}
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}
