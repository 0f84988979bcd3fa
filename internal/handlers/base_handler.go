// Package handlers implements the API Facade (spec.md §4.6): routes that
// map 1:1 to Shepherd scheduler operations.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mild-blue/shepherd/internal/apierr"
)

// ErrorResponse is the JSON body for every non-2xx response (spec.md §6).
type ErrorResponse struct {
	Message string `json:"message"`
}

// BaseHandler provides the shared JSON response helpers every route uses.
type BaseHandler struct{}

func (h *BaseHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError maps an error's apierr.Kind to the HTTP status table in
// spec.md §7.
func (h *BaseHandler) respondWithError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)

	code := http.StatusInternalServerError
	switch kind {
	case apierr.KindApiClient:
		code = http.StatusBadRequest
	case apierr.KindUnknownSheep, apierr.KindUnknownJob:
		code = http.StatusNotFound
	case apierr.KindNameConflict:
		code = http.StatusConflict
	case apierr.KindStorageInaccessible, apierr.KindSheepConfiguration:
		code = http.StatusServiceUnavailable
	case apierr.KindTimeout:
		code = http.StatusGatewayTimeout
	case apierr.KindInternal:
		code = http.StatusInternalServerError
	}

	message := err.Error()
	if code == http.StatusInternalServerError {
		message = "internal server error"
	}
	h.respondWithJSON(w, code, ErrorResponse{Message: message})
}
