// Package shepherd implements the scheduler component (spec.md §4.5): it
// owns the sheep registry and the Job Store, runs one cooperative worker
// loop per sheep, and exposes the public operations the API Facade routes
// to.
package shepherd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"

	"github.com/mild-blue/shepherd/internal/apierr"
	"github.com/mild-blue/shepherd/internal/audit"
	"github.com/mild-blue/shepherd/internal/ioexec"
	"github.com/mild-blue/shepherd/internal/jobstore"
	"github.com/mild-blue/shepherd/internal/messenger"
	"github.com/mild-blue/shepherd/internal/metrics"
	"github.com/mild-blue/shepherd/internal/objects"
	"github.com/mild-blue/shepherd/internal/sheep"
)

// sheepEntry bundles everything the scheduler needs for one registered sheep.
type sheepEntry struct {
	worker sheep.Sheep
	socket *messenger.Socket
	queue  chan string // job ids, FIFO

	mu       sync.Mutex
	inFlight string // job id currently Processing, "" if none
}

// Shepherd is the scheduler. Construct with New, then call Run to start the
// per-sheep worker loops.
type Shepherd struct {
	cfg     Config
	store   objects.Store
	jobs    *jobstore.Store
	pool    *ioexec.Pool
	auditer audit.Sink
	metrics *metrics.Registry

	mu    sync.RWMutex
	sheep map[string]*sheepEntry

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Shepherd with no sheep registered yet; call Register for
// each configured sheep before Run.
func New(cfg Config, store objects.Store, jobs *jobstore.Store, pool *ioexec.Pool, auditer audit.Sink, reg *metrics.Registry) *Shepherd {
	if auditer == nil {
		auditer = audit.NewNoop()
	}
	return &Shepherd{
		cfg:     cfg,
		store:   store,
		jobs:    jobs,
		pool:    pool,
		auditer: auditer,
		metrics: reg,
		sheep:   make(map[string]*sheepEntry),
	}
}

// Register adds a sheep to the fleet. Must be called before Run.
func (s *Shepherd) Register(w sheep.Sheep, socket *messenger.Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheep[w.ID()] = &sheepEntry{
		worker: w,
		socket: socket,
		queue:  make(chan string, s.cfg.QueueCapacity),
	}
}

// Run starts the per-sheep worker loops. It returns immediately; call Stop
// to shut down.
func (s *Shepherd) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, entry := range s.sheep {
		s.wg.Add(1)
		go s.runWorkerLoop(ctx, id, entry)
	}
}

// Stop cancels all worker loops and waits for them to exit.
func (s *Shepherd) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Enqueue implements spec.md §4.5 enqueue(job_spec).
func (s *Shepherd) Enqueue(ctx context.Context, record jobstore.Record) error {
	s.mu.RLock()
	entry, ok := s.sheep[record.SheepID]
	s.mu.RUnlock()
	if !ok {
		return apierr.New(apierr.KindUnknownSheep, fmt.Sprintf("unknown sheep %q", record.SheepID))
	}

	if !sheep.Accepts(entry.worker.Config().Accepted, record.Model) {
		return apierr.New(apierr.KindApiClient,
			fmt.Sprintf("sheep %q does not accept model %s:%s", record.SheepID, record.Model.Name, record.Model.Version))
	}

	if err := s.jobs.Create(record); err != nil {
		return err
	}

	select {
	case entry.queue <- record.ID:
	default:
		_ = s.jobs.Mark(record.ID, jobstore.StateFailed, apierr.New(apierr.KindInternal, "sheep queue full"))
		return apierr.New(apierr.KindInternal, fmt.Sprintf("sheep %q queue full", record.SheepID))
	}

	if s.metrics != nil {
		s.metrics.JobsEnqueued.WithLabelValues(record.SheepID).Inc()
	}
	return nil
}

// AwaitJob implements spec.md §4.5 await_job(id, timeout). A wall-clock
// timeout elapsing is an anticipated outcome (§8), not an internal error, so
// it is reported as KindTimeout rather than falling through to the default
// KindInternal mapping.
func (s *Shepherd) AwaitJob(ctx context.Context, id string, timeout time.Duration) (jobstore.State, error) {
	state, err := s.jobs.AwaitTimeout(ctx, id, timeout)
	if errors.Is(err, context.DeadlineExceeded) {
		return state, apierr.New(apierr.KindTimeout, fmt.Sprintf("job %q did not complete within %s", id, timeout))
	}
	return state, err
}

// JobRecord exposes a job's current record, e.g. for error detail on the
// wait-for-completion route.
func (s *Shepherd) JobRecord(id string) (jobstore.Record, error) {
	return s.jobs.Lookup(id)
}

// SheepStatus is one sheep's entry in a Status() snapshot.
type SheepStatus struct {
	ID          string
	Running     bool
	Model       sheep.Model
	HasModel    bool
	QueueLength int
	InFlight    string
	Usage       sheep.Usage
	HasUsage    bool
}

// sampler is the optional resource-sampling capability BareSheep/DockerSheep
// expose beyond the core Sheep interface (SPEC_FULL domain stack: gopsutil
// subprocess sampling surfaced in status()).
type sampler interface {
	Usage() (sheep.Usage, bool)
}

// Status implements spec.md §4.5 status().
func (s *Shepherd) Status() []SheepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SheepStatus, 0, len(s.sheep))
	for id, entry := range s.sheep {
		model, hasModel := entry.worker.Loaded()
		entry.mu.Lock()
		inFlight := entry.inFlight
		entry.mu.Unlock()

		status := SheepStatus{
			ID:          id,
			Running:     entry.worker.Running(),
			Model:       model,
			HasModel:    hasModel,
			QueueLength: len(entry.queue),
			InFlight:    inFlight,
		}
		if sm, ok := entry.worker.(sampler); ok {
			status.Usage, status.HasUsage = sm.Usage()
		}
		out = append(out, status)
	}
	return out
}

// Cancel implements spec.md §4.5 cancel(id).
func (s *Shepherd) Cancel(ctx context.Context, id string) error {
	record, err := s.jobs.Lookup(id)
	if err != nil {
		return err
	}
	if record.State.Terminal() {
		return nil
	}

	s.mu.RLock()
	entry, ok := s.sheep[record.SheepID]
	s.mu.RUnlock()
	if !ok {
		return apierr.New(apierr.KindUnknownSheep, fmt.Sprintf("unknown sheep %q", record.SheepID))
	}

	entry.mu.Lock()
	processing := entry.inFlight == id
	entry.mu.Unlock()

	if processing {
		if err := entry.worker.Slaughter(ctx); err != nil {
			return err
		}
		return s.jobs.Mark(id, jobstore.StateCancelled, nil)
	}

	return s.jobs.Mark(id, jobstore.StateCancelled, nil)
}

// KillSheep implements spec.md §4.5 kill_sheep(sheep-id).
func (s *Shepherd) KillSheep(ctx context.Context, sheepID string) error {
	s.mu.RLock()
	entry, ok := s.sheep[sheepID]
	s.mu.RUnlock()
	if !ok {
		return apierr.New(apierr.KindUnknownSheep, fmt.Sprintf("unknown sheep %q", sheepID))
	}

	entry.mu.Lock()
	inFlight := entry.inFlight
	entry.mu.Unlock()

	if err := entry.worker.Slaughter(ctx); err != nil {
		return err
	}
	if inFlight != "" {
		return s.jobs.Mark(inFlight, jobstore.StateCancelled, nil)
	}
	return nil
}

// Reconfigure implements spec.md §4.5 reconfigure(sheep-id, model, version),
// delegating the state machine to sheep.Sheep.Configure (see spec.md §4.2).
func (s *Shepherd) Reconfigure(ctx context.Context, sheepID string, model sheep.Model) error {
	s.mu.RLock()
	entry, ok := s.sheep[sheepID]
	s.mu.RUnlock()
	if !ok {
		return apierr.New(apierr.KindUnknownSheep, fmt.Sprintf("unknown sheep %q", sheepID))
	}
	if !sheep.Accepts(entry.worker.Config().Accepted, model) {
		return apierr.New(apierr.KindApiClient,
			fmt.Sprintf("sheep %q does not accept model %s:%s", sheepID, model.Name, model.Version))
	}

	logging.Log.WithField("sheep_id", sheepID).
		WithField("model", model.Name).WithField("version", model.Version).
		Info("reconfiguring sheep")
	return entry.worker.Configure(ctx, model)
}
