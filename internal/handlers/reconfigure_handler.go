package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mild-blue/shepherd/internal/apierr"
	"github.com/mild-blue/shepherd/internal/sheep"
	"github.com/mild-blue/shepherd/internal/shepherd"
)

// ReconfigureHandler serves POST /reconfigure/{sheep} -> reconfigure
// (spec.md §4.5, §4.6).
type ReconfigureHandler struct {
	BaseHandler
	sched *shepherd.Shepherd
}

func NewReconfigureHandler(sched *shepherd.Shepherd) *ReconfigureHandler {
	return &ReconfigureHandler{sched: sched}
}

type reconfigureRequest struct {
	Model modelSpec `json:"model"`
}

func (h *ReconfigureHandler) Reconfigure(w http.ResponseWriter, r *http.Request, sheepID string) {
	var req reconfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, apierr.New(apierr.KindApiClient, fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	model := sheep.Model{Name: req.Model.Name, Version: req.Model.Version}
	if err := h.sched.Reconfigure(r.Context(), sheepID, model); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]any{})
}
