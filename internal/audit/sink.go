// Package audit implements a best-effort, non-authoritative record of job
// state transitions (a SPEC_FULL addition; see DESIGN.md). It is never
// consulted for scheduling decisions — spec.md's Job Store (internal/jobstore)
// remains the sole authority over job state. When no database is configured,
// Sink is a silent no-op so the scheduler never depends on Postgres being up.
package audit

import (
	"context"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"gorm.io/gorm"
)

// Event records one job state transition for the audit trail.
type Event struct {
	ID        uint   `gorm:"primaryKey"`
	JobID     string `gorm:"index;not null"`
	SheepID   string `gorm:"index"`
	State     string `gorm:"not null"`
	Message   string
	CreatedAt time.Time
}

func (Event) TableName() string { return "audit_events" }

// Sink records Events. Record never returns an error to its caller: failures
// are logged and swallowed, matching the status-callback's fire-and-forget
// contract elsewhere in the scheduler.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// noopSink is used when no database is configured.
type noopSink struct{}

func (noopSink) Record(context.Context, Event) {}

// NewNoop returns a Sink that discards every event.
func NewNoop() Sink { return noopSink{} }

// gormSink persists events to Postgres via gorm.
type gormSink struct {
	db *gorm.DB
}

// NewGormSink wraps an already-migrated *gorm.DB as a Sink.
func NewGormSink(db *gorm.DB) Sink {
	return &gormSink{db: db}
}

func (s *gormSink) Record(ctx context.Context, e Event) {
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		logging.Log.WithError(err).WithField("job_id", e.JobID).Warn("audit: failed to record event")
	}
}
