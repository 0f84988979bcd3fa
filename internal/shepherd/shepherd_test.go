package shepherd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mild-blue/shepherd/internal/apierr"
	"github.com/mild-blue/shepherd/internal/audit"
	"github.com/mild-blue/shepherd/internal/ioexec"
	"github.com/mild-blue/shepherd/internal/jobstore"
	"github.com/mild-blue/shepherd/internal/messenger"
	"github.com/mild-blue/shepherd/internal/objects"
	"github.com/mild-blue/shepherd/internal/sheep"
)

// fakeSheep is a minimal sheep.Sheep for exercising the scheduler without a
// real subprocess or container.
type fakeSheep struct {
	id       string
	accepted []sheep.Model
	ioRoot   string

	mu          sync.Mutex
	state       sheep.State
	loaded      sheep.Model
	hasLoaded   bool
	configureFn func(ctx context.Context, model sheep.Model) error
	slaughtered int
}

func newFakeSheep(id string, accepted ...sheep.Model) *fakeSheep {
	return &fakeSheep{id: id, accepted: accepted, state: sheep.StateReady}
}

func (f *fakeSheep) ID() string { return f.id }
func (f *fakeSheep) Config() sheep.Config {
	return sheep.Config{ID: f.id, Accepted: f.accepted, IORoot: f.ioRoot}
}

func (f *fakeSheep) Configure(ctx context.Context, model sheep.Model) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configureFn != nil {
		if err := f.configureFn(ctx, model); err != nil {
			return err
		}
	}
	f.loaded = model
	f.hasLoaded = true
	f.state = sheep.StateReady
	return nil
}

func (f *fakeSheep) Start(ctx context.Context) error { return nil }
func (f *fakeSheep) Stop(ctx context.Context) error  { return nil }
func (f *fakeSheep) Slaughter(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slaughtered++
	f.state = sheep.StateIdle
	return nil
}

func (f *fakeSheep) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == sheep.StateReady || f.state == sheep.StateBusy
}

func (f *fakeSheep) State() sheep.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSheep) Loaded() (sheep.Model, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded, f.hasLoaded
}

func (f *fakeSheep) MarkBusy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == sheep.StateReady {
		f.state = sheep.StateBusy
	}
}

func (f *fakeSheep) MarkReady() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == sheep.StateBusy {
		f.state = sheep.StateReady
	}
}

var _ sheep.Sheep = (*fakeSheep)(nil)

func newTestShepherd(t *testing.T) *Shepherd {
	t.Helper()
	cfg := DefaultConfig()
	cfg.QueueCapacity = 2
	sched := New(cfg, objects.NewMemoryStore(), jobstore.New(0), ioexec.New(2), audit.NewNoop(), nil)
	t.Cleanup(sched.Stop)
	return sched
}

func newTestRecord(id, sheepID string) jobstore.Record {
	return jobstore.Record{
		ID:      id,
		SheepID: sheepID,
		Model:   sheep.Model{Name: "whisper", Version: "1"},
		Payload: jobstore.Location{Bucket: "in", Key: id},
		Result:  jobstore.Location{Bucket: "out", Key: id},
	}
}

func TestEnqueueUnknownSheep(t *testing.T) {
	sched := newTestShepherd(t)
	err := sched.Enqueue(context.Background(), newTestRecord(gofakeit.UUID(), "ghost"))
	require.Error(t, err)
	assert.Equal(t, apierr.KindUnknownSheep, apierr.KindOf(err))
}

func TestEnqueueModelNotAccepted(t *testing.T) {
	sched := newTestShepherd(t)
	sched.Register(newFakeSheep("s1", sheep.Model{Name: "llama", Version: "1"}), messenger.NewSocket("127.0.0.1:0"))

	err := sched.Enqueue(context.Background(), newTestRecord(gofakeit.UUID(), "s1"))
	require.Error(t, err)
	assert.Equal(t, apierr.KindApiClient, apierr.KindOf(err))
}

func TestEnqueueNameConflictWhileNonTerminal(t *testing.T) {
	sched := newTestShepherd(t)
	sched.Register(newFakeSheep("s1"), messenger.NewSocket("127.0.0.1:0"))

	id := gofakeit.UUID()
	require.NoError(t, sched.Enqueue(context.Background(), newTestRecord(id, "s1")))

	err := sched.Enqueue(context.Background(), newTestRecord(id, "s1"))
	require.Error(t, err)
	assert.Equal(t, apierr.KindNameConflict, apierr.KindOf(err))
}

func TestEnqueueFailsWhenQueueFull(t *testing.T) {
	sched := newTestShepherd(t) // QueueCapacity 2, worker loop not running (Run not called)
	sched.Register(newFakeSheep("s1"), messenger.NewSocket("127.0.0.1:0"))

	require.NoError(t, sched.Enqueue(context.Background(), newTestRecord(gofakeit.UUID(), "s1")))
	require.NoError(t, sched.Enqueue(context.Background(), newTestRecord(gofakeit.UUID(), "s1")))

	err := sched.Enqueue(context.Background(), newTestRecord(gofakeit.UUID(), "s1"))
	require.Error(t, err)
	assert.Equal(t, apierr.KindInternal, apierr.KindOf(err))
}

func TestStatusReportsQueueLengthAndModel(t *testing.T) {
	sched := newTestShepherd(t)
	fs := newFakeSheep("s1")
	fs.loaded = sheep.Model{Name: "whisper", Version: "1"}
	fs.hasLoaded = true
	sched.Register(fs, messenger.NewSocket("127.0.0.1:0"))
	require.NoError(t, sched.Enqueue(context.Background(), newTestRecord(gofakeit.UUID(), "s1")))

	statuses := sched.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, "s1", statuses[0].ID)
	assert.Equal(t, 1, statuses[0].QueueLength)
	assert.Equal(t, sheep.Model{Name: "whisper", Version: "1"}, statuses[0].Model)
}

func TestCancelQueuedJobMarksCancelledWithoutTouchingSheep(t *testing.T) {
	sched := newTestShepherd(t)
	fs := newFakeSheep("s1")
	sched.Register(fs, messenger.NewSocket("127.0.0.1:0"))

	id := gofakeit.UUID()
	require.NoError(t, sched.Enqueue(context.Background(), newTestRecord(id, "s1")))

	require.NoError(t, sched.Cancel(context.Background(), id))

	record, err := sched.JobRecord(id)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StateCancelled, record.State)
	assert.Equal(t, 0, fs.slaughtered)
}

func TestCancelUnknownJobReturnsUnknownJob(t *testing.T) {
	sched := newTestShepherd(t)
	err := sched.Cancel(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.Equal(t, apierr.KindUnknownJob, apierr.KindOf(err))
}

func TestCancelAlreadyTerminalJobIsNoOp(t *testing.T) {
	sched := newTestShepherd(t)
	sched.Register(newFakeSheep("s1"), messenger.NewSocket("127.0.0.1:0"))
	id := gofakeit.UUID()
	require.NoError(t, sched.Enqueue(context.Background(), newTestRecord(id, "s1")))
	require.NoError(t, sched.jobs.Mark(id, jobstore.StateDone, nil))

	require.NoError(t, sched.Cancel(context.Background(), id))
	record, err := sched.JobRecord(id)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StateDone, record.State)
}

func TestReconfigureRejectsUnacceptedModel(t *testing.T) {
	sched := newTestShepherd(t)
	sched.Register(newFakeSheep("s1", sheep.Model{Name: "llama", Version: "1"}), messenger.NewSocket("127.0.0.1:0"))

	err := sched.Reconfigure(context.Background(), "s1", sheep.Model{Name: "whisper", Version: "1"})
	require.Error(t, err)
	assert.Equal(t, apierr.KindApiClient, apierr.KindOf(err))
}

func TestReconfigureDelegatesToSheep(t *testing.T) {
	sched := newTestShepherd(t)
	fs := newFakeSheep("s1")
	sched.Register(fs, messenger.NewSocket("127.0.0.1:0"))

	model := sheep.Model{Name: "whisper", Version: "2"}
	require.NoError(t, sched.Reconfigure(context.Background(), "s1", model))

	loaded, ok := fs.Loaded()
	require.True(t, ok)
	assert.Equal(t, model, loaded)
}

func TestKillSheepCancelsInFlightJob(t *testing.T) {
	sched := newTestShepherd(t)
	fs := newFakeSheep("s1")
	sched.Register(fs, messenger.NewSocket("127.0.0.1:0"))

	id := gofakeit.UUID()
	sched.mu.RLock()
	entry := sched.sheep["s1"]
	sched.mu.RUnlock()
	entry.mu.Lock()
	entry.inFlight = id
	entry.mu.Unlock()
	require.NoError(t, sched.jobs.Create(newTestRecord(id, "s1")))

	require.NoError(t, sched.KillSheep(context.Background(), "s1"))

	record, err := sched.JobRecord(id)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StateCancelled, record.State)
	assert.Equal(t, 1, fs.slaughtered)
}

func TestAwaitJobTimesOutForStillQueuedJob(t *testing.T) {
	sched := newTestShepherd(t)
	sched.Register(newFakeSheep("s1"), messenger.NewSocket("127.0.0.1:0"))
	id := gofakeit.UUID()
	require.NoError(t, sched.Enqueue(context.Background(), newTestRecord(id, "s1")))

	_, err := sched.AwaitJob(context.Background(), id, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, apierr.KindTimeout, apierr.KindOf(err))
}
