// Package jobstore implements the Job Store component (spec.md §4.4): an
// in-memory mapping from job-id to job record plus one-shot completion
// signalling, with a bounded, LRU-pruned record of recently completed jobs.
package jobstore

import (
	"time"

	"github.com/mild-blue/shepherd/internal/apierr"
	"github.com/mild-blue/shepherd/internal/sheep"
)

// State is a job's position in its lifecycle.
type State string

const (
	StateQueued     State = "Queued"
	StateAccepted   State = "Accepted"
	StateProcessing State = "Processing"
	StateDone       State = "Done"
	StateFailed     State = "Failed"
	StateCancelled  State = "Cancelled"
)

// Terminal reports whether s is a state from which a job never transitions.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Location names a bucket/key pair in the object store.
type Location struct {
	Bucket string
	Key    string
}

// Record is a job's full state as tracked by the store.
type Record struct {
	ID        string
	SheepID   string
	Model     sheep.Model
	Payload   Location
	Result    Location
	StatusURL string

	State     State
	Err       *apierr.Error
	CreatedAt time.Time
	UpdatedAt time.Time
}
