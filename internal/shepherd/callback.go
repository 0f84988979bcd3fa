package shepherd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
)

var callbackClient = &http.Client{Timeout: 10 * time.Second}

type callbackBody struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// postStatusCallback fires the optional per-job status callback (spec.md
// §6). Fire-and-forget: failures are logged, never retried, never affect
// job state (spec.md §9 Open Question (a)).
func postStatusCallback(url string, success bool, status, message string) {
	body, err := json.Marshal(callbackBody{Success: success, Status: status, Message: message})
	if err != nil {
		logging.Log.WithError(err).Warn("status callback: failed to marshal body")
		return
	}

	resp, err := callbackClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		logging.Log.WithError(err).WithField("url", url).Warn("status callback: request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logging.Log.WithField("url", url).WithField("status_code", resp.StatusCode).
			Warn("status callback: non-2xx response")
	}
}
