package jobstore

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mild-blue/shepherd/internal/apierr"
)

// DefaultRecentHistoryBound is the default size of the pruned recent-history
// window (spec.md §4.4).
const DefaultRecentHistoryBound = 1024

// signal is a one-shot, multi-waiter completion primitive: Wait returns once
// Fire has been called, any number of times, from any number of goroutines.
type signal struct {
	ch chan struct{}
}

func newSignal() *signal { return &signal{ch: make(chan struct{})} }

func (s *signal) fire() {
	select {
	case <-s.ch:
	default:
		close(s.ch)
	}
}

func (s *signal) wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// entry bundles a record with its completion signal and its position in the
// recent-history LRU list, when present.
type entry struct {
	record  Record
	done    *signal
	lruElem *list.Element
}

// Store is the threadsafe Job Store (spec.md §4.4).
type Store struct {
	mu    sync.Mutex
	jobs  map[string]*entry
	lru   *list.List // of job ids, most-recently-completed at the back
	bound int
}

// New constructs a Store with the given recent-history bound. A bound <= 0
// uses DefaultRecentHistoryBound.
func New(bound int) *Store {
	if bound <= 0 {
		bound = DefaultRecentHistoryBound
	}
	return &Store{
		jobs:  make(map[string]*entry),
		lru:   list.New(),
		bound: bound,
	}
}

// Create inserts a new record in StateQueued. Fails with KindNameConflict if
// a non-terminal record for id already exists (spec.md §4.4).
func (s *Store) Create(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[record.ID]; ok && !existing.record.State.Terminal() {
		return apierr.New(apierr.KindNameConflict, fmt.Sprintf("job %q already in progress", record.ID))
	}

	record.State = StateQueued
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	s.jobs[record.ID] = &entry{record: record, done: newSignal()}
	return nil
}

// Lookup returns the current record for id.
func (s *Store) Lookup(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return Record{}, apierr.New(apierr.KindUnknownJob, fmt.Sprintf("unknown job %q", id))
	}
	return e.record, nil
}

// Mark transitions id to a new state, atomically firing its completion
// signal when the new state is terminal. If jobErr is non-nil it is
// attached to the record.
func (s *Store) Mark(id string, state State, jobErr *apierr.Error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return apierr.New(apierr.KindUnknownJob, fmt.Sprintf("unknown job %q", id))
	}
	if e.record.State.Terminal() {
		// Already terminal: e.g. a direct cancel won the race against the
		// worker loop's own crash/failure marking for the same job.
		return nil
	}

	e.record.State = state
	e.record.Err = jobErr
	e.record.UpdatedAt = time.Now()

	if state.Terminal() {
		e.done.fire()
		s.touchRecent(id, e)
		s.pruneLocked()
	}
	return nil
}

// Await blocks until id's completion signal fires or ctx is cancelled,
// returning the job's state at that point. A job already terminal returns
// immediately (spec.md §4.4).
func (s *Store) Await(ctx context.Context, id string) (State, error) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return "", apierr.New(apierr.KindUnknownJob, fmt.Sprintf("unknown job %q", id))
	}

	if err := e.done.wait(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return e.record.State, nil
}

// AwaitTimeout is a convenience wrapper applying a wall-clock timeout.
func (s *Store) AwaitTimeout(ctx context.Context, id string, timeout time.Duration) (State, error) {
	if timeout <= 0 {
		return s.Await(ctx, id)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Await(ctx, id)
}

// Recent returns a snapshot of the most recently completed jobs, most
// recent first.
func (s *Store) Recent() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, s.lru.Len())
	for el := s.lru.Back(); el != nil; el = el.Prev() {
		id := el.Value.(string)
		if e, ok := s.jobs[id]; ok {
			out = append(out, e.record)
		}
	}
	return out
}

// touchRecent must be called with s.mu held.
func (s *Store) touchRecent(id string, e *entry) {
	if e.lruElem != nil {
		s.lru.MoveToBack(e.lruElem)
		return
	}
	e.lruElem = s.lru.PushBack(id)
}

// pruneLocked evicts the least recently completed entries once the
// recent-history window exceeds its bound (spec.md §4.4). Only terminal,
// tracked entries are evicted; the underlying job record is dropped
// entirely, since the scheduler has no further use for terminal jobs beyond
// their place in recent-history.
func (s *Store) pruneLocked() {
	for s.lru.Len() > s.bound {
		front := s.lru.Front()
		if front == nil {
			return
		}
		id := front.Value.(string)
		s.lru.Remove(front)
		delete(s.jobs, id)
	}
}
