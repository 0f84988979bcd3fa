package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"

	"github.com/mild-blue/shepherd/internal/audit"
	"github.com/mild-blue/shepherd/internal/handlers"
	"github.com/mild-blue/shepherd/internal/ioexec"
	"github.com/mild-blue/shepherd/internal/jobstore"
	"github.com/mild-blue/shepherd/internal/messenger"
	"github.com/mild-blue/shepherd/internal/metrics"
	"github.com/mild-blue/shepherd/internal/objects"
	"github.com/mild-blue/shepherd/internal/sheep"
	"github.com/mild-blue/shepherd/internal/shepherd"
)

// stubSheep is the minimal sheep.Sheep fake used across the handler tests;
// Configure always succeeds immediately.
type stubSheep struct {
	id       string
	accepted []sheep.Model
	loaded   sheep.Model
}

func (s *stubSheep) ID() string { return s.id }
func (s *stubSheep) Config() sheep.Config {
	return sheep.Config{ID: s.id, Accepted: s.accepted, IORoot: "/tmp"}
}
func (s *stubSheep) Configure(ctx context.Context, model sheep.Model) error {
	s.loaded = model
	return nil
}
func (s *stubSheep) Start(ctx context.Context) error     { return nil }
func (s *stubSheep) Stop(ctx context.Context) error      { return nil }
func (s *stubSheep) Slaughter(ctx context.Context) error { return nil }
func (s *stubSheep) Running() bool                       { return true }
func (s *stubSheep) State() sheep.State                  { return sheep.StateReady }
func (s *stubSheep) Loaded() (sheep.Model, bool)         { return s.loaded, s.loaded != (sheep.Model{}) }
func (s *stubSheep) MarkBusy()                           {}
func (s *stubSheep) MarkReady()                          {}

var _ sheep.Sheep = (*stubSheep)(nil)

func newTestServer(t *testing.T) (*httptest.Server, *shepherd.Shepherd) {
	t.Helper()
	pool := ioexec.New(2)
	t.Cleanup(pool.Stop)

	reg := metrics.New()
	sched := shepherd.New(shepherd.DefaultConfig(), objects.NewMemoryStore(), jobstore.New(0), pool, audit.NewNoop(), reg)
	sched.Register(&stubSheep{id: "s1", accepted: []sheep.Model{{Name: "whisper", Version: "1"}}}, messenger.NewSocket("127.0.0.1:0"))
	t.Cleanup(sched.Stop)

	srv := httptest.NewServer(handlers.NewRouter(sched, reg))
	t.Cleanup(srv.Close)
	return srv, sched
}

func TestStartJobAcceptedReturns200(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"id":       gofakeit.UUID(),
		"sheep_id": "s1",
		"model":    map[string]string{"name": "whisper", "version": "1"},
		"payload":  map[string]string{"bucket": "in", "key": "k"},
		"result":   map[string]string{"bucket": "out", "key": "k"},
	})
	resp, err := http.Post(srv.URL+"/start-job", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartJobUnknownSheepReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"id":       gofakeit.UUID(),
		"sheep_id": "ghost",
		"model":    map[string]string{"name": "whisper", "version": "1"},
		"payload":  map[string]string{"bucket": "in", "key": "k"},
		"result":   map[string]string{"bucket": "out", "key": "k"},
	})
	resp, err := http.Post(srv.URL+"/start-job", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errBody handlers.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	require.NotEmpty(t, errBody.Message)
}

func TestStartJobModelNotAcceptedReturns400(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"id":       gofakeit.UUID(),
		"sheep_id": "s1",
		"model":    map[string]string{"name": "llama", "version": "9"},
		"payload":  map[string]string{"bucket": "in", "key": "k"},
		"result":   map[string]string{"bucket": "out", "key": "k"},
	})
	resp, err := http.Post(srv.URL+"/start-job", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartJobDuplicateIDReturns409(t *testing.T) {
	srv, _ := newTestServer(t)
	id := gofakeit.UUID()
	mkBody := func() []byte {
		b, _ := json.Marshal(map[string]any{
			"id":       id,
			"sheep_id": "s1",
			"model":    map[string]string{"name": "whisper", "version": "1"},
			"payload":  map[string]string{"bucket": "in", "key": "k"},
			"result":   map[string]string{"bucket": "out", "key": "k"},
		})
		return b
	}

	resp1, err := http.Post(srv.URL+"/start-job", "application/json", bytes.NewReader(mkBody()))
	require.NoError(t, err)
	resp1.Body.Close()
	require.Equal(t, http.StatusOK, resp1.StatusCode)

	resp2, err := http.Post(srv.URL+"/start-job", "application/json", bytes.NewReader(mkBody()))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusConflict, resp2.StatusCode)
}

func TestInterruptJobCancelsQueuedJob(t *testing.T) {
	srv, sched := newTestServer(t)
	id := gofakeit.UUID()
	require.NoError(t, sched.Enqueue(context.Background(), jobstore.Record{
		ID: id, SheepID: "s1",
		Model:   sheep.Model{Name: "whisper", Version: "1"},
		Payload: jobstore.Location{Bucket: "in", Key: "k"},
		Result:  jobstore.Location{Bucket: "out", Key: "k"},
	}))

	resp, err := http.Post(srv.URL+"/interrupt-job/"+id, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	record, err := sched.JobRecord(id)
	require.NoError(t, err)
	require.Equal(t, jobstore.StateCancelled, record.State)
}

func TestWaitJobUnknownReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/jobs/does-not-exist/wait")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWaitJobTimesOutWhileQueued(t *testing.T) {
	srv, sched := newTestServer(t)
	id := gofakeit.UUID()
	require.NoError(t, sched.Enqueue(context.Background(), jobstore.Record{
		ID: id, SheepID: "s1",
		Model:   sheep.Model{Name: "whisper", Version: "1"},
		Payload: jobstore.Location{Bucket: "in", Key: "k"},
		Result:  jobstore.Location{Bucket: "out", Key: "k"},
	}))

	resp, err := http.Get(srv.URL + "/jobs/" + id + "/wait?timeout=0.05")
	require.NoError(t, err)
	defer resp.Body.Close()
	// AwaitJob translates the deadline expiring into KindTimeout, a normal
	// await_job outcome (spec.md §8), not an internal error.
	require.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestReconfigureRejectsUnacceptedModel(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"model": map[string]string{"name": "llama", "version": "1"}})
	resp, err := http.Post(srv.URL+"/reconfigure/s1", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReconfigureUnknownSheepReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"model": map[string]string{"name": "whisper", "version": "1"}})
	resp, err := http.Post(srv.URL+"/reconfigure/ghost", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusReportsRegisteredSheep(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body["sheep"], "s1")
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartJobWrongMethodRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/start-job")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
