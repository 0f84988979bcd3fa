package shepherd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/sirupsen/logrus"

	"github.com/mild-blue/shepherd/internal/apierr"
	"github.com/mild-blue/shepherd/internal/audit"
	"github.com/mild-blue/shepherd/internal/ioexec"
	"github.com/mild-blue/shepherd/internal/jobstore"
	"github.com/mild-blue/shepherd/internal/messenger"
	"github.com/mild-blue/shepherd/internal/objects"
	"github.com/mild-blue/shepherd/internal/retry"
	"github.com/mild-blue/shepherd/internal/sheep"
)

var sheepStateLabels = []string{
	string(sheep.StateIdle), string(sheep.StateConfigured), string(sheep.StateStarting),
	string(sheep.StateReady), string(sheep.StateBusy), string(sheep.StateStopping), string(sheep.StateFailed),
}

// runWorkerLoop implements the per-sheep cooperative loop (spec.md §4.5).
func (s *Shepherd) runWorkerLoop(ctx context.Context, sheepID string, entry *sheepEntry) {
	defer s.wg.Done()
	logger := logging.Log.WithField("sheep_id", sheepID)

	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-entry.queue:
			s.reportState(sheepID, entry)
			s.processOne(ctx, sheepID, entry, jobID, logger)
			s.reportState(sheepID, entry)
		}
	}
}

func (s *Shepherd) reportState(sheepID string, entry *sheepEntry) {
	if s.metrics == nil {
		return
	}
	s.metrics.SetSheepState(sheepID, sheepStateLabels, string(entry.worker.State()))
	s.metrics.QueueDepth.WithLabelValues(sheepID).Set(float64(len(entry.queue)))
}

// processOne runs steps 2-8 of spec.md §4.5's per-sheep loop for a single job.
func (s *Shepherd) processOne(ctx context.Context, sheepID string, entry *sheepEntry, jobID string, logger *logrus.Entry) {
	record, err := s.jobs.Lookup(jobID)
	if err != nil {
		logger.WithError(err).Warn("worker loop: job disappeared before processing")
		return
	}
	if record.State == jobstore.StateCancelled {
		return // cancelled while still queued; nothing left to do
	}

	if err := s.jobs.Mark(jobID, jobstore.StateAccepted, nil); err != nil {
		logger.WithError(err).Error("worker loop: failed to mark job accepted")
		return
	}

	entry.mu.Lock()
	entry.inFlight = jobID
	entry.mu.Unlock()
	defer func() {
		entry.mu.Lock()
		entry.inFlight = ""
		entry.mu.Unlock()
	}()

	// Step 3: ensure the sheep is configured for this job's model.
	if loaded, ok := entry.worker.Loaded(); !ok || loaded != record.Model {
		if err := entry.worker.Configure(ctx, record.Model); err != nil {
			s.failJob(ctx, sheepID, jobID, apierr.New(apierr.KindSheepConfiguration, err.Error()))
			return
		}
	}

	ioRoot := entry.worker.Config().IORoot
	jobRoot := filepath.Join(ioRoot, jobID)
	inputsDir := filepath.Join(jobRoot, "inputs")
	outputsDir := filepath.Join(jobRoot, "outputs")
	defer func() {
		_ = os.RemoveAll(jobRoot) // step 7: best-effort cleanup
	}()

	// Step 4: fetch payload, materialize inputs/outputs directories.
	err = ioexec.Do(ctx, s.pool, func() error {
		if err := os.MkdirAll(inputsDir, 0o755); err != nil {
			return err
		}
		if err := os.MkdirAll(outputsDir, 0o755); err != nil {
			return err
		}
		data, err := objects.GetWithRetry(ctx, s.metrics, s.store, record.Payload.Bucket, record.Payload.Key)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(inputsDir, "payload"), data, 0o644)
	})
	if err != nil {
		// GetWithRetry already exhausted retries on transient failures; any
		// error reaching here (transient-exhausted or permanent) fails the
		// job immediately (spec.md §4.3).
		s.failJob(ctx, sheepID, jobID, apierr.New(apierr.KindStorageInaccessible, fmt.Sprintf("fetching payload: %v", err)))
		return
	}

	// Step 5: transition Processing, send InputMessage.
	if err := s.jobs.Mark(jobID, jobstore.StateProcessing, nil); err != nil {
		logger.WithError(err).Error("worker loop: failed to mark job processing")
		return
	}
	entry.worker.MarkBusy()
	defer entry.worker.MarkReady()

	if err := entry.socket.Send(ctx, messenger.InputMessage(jobID, jobRoot)); err != nil {
		s.handleSheepCrash(ctx, sheepID, entry, jobID, logger)
		return
	}

	// Step 6: wait for reply or crash.
	env, err := entry.socket.Recv(ctx)
	if err != nil {
		s.handleSheepCrash(ctx, sheepID, entry, jobID, logger)
		return
	}

	switch env.Kind {
	case messenger.KindDone:
		s.completeJob(ctx, sheepID, jobID, outputsDir, record, logger)
	case messenger.KindError:
		jobErr := apierr.New(apierr.KindJobFailed, env.ShortMessage)
		jobErr.LongTrace = env.LongTrace
		s.failJob(ctx, sheepID, jobID, jobErr)
		s.postCallback(record.StatusURL, false, "Failed", env.ShortMessage)
	default:
		logger.WithField("kind", env.Kind).Warn("worker loop: unexpected message kind, dropping")
	}
}

func (s *Shepherd) completeJob(ctx context.Context, sheepID, jobID, outputsDir string, record jobstore.Record, logger *logrus.Entry) {
	err := ioexec.Do(ctx, s.pool, func() error {
		entries, err := os.ReadDir(outputsDir)
		if err != nil {
			return err
		}
		name := filepath.Base(record.Result.Key)
		found := false
		extra := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Name() == name {
				found = true
				continue
			}
			extra = append(extra, e.Name())
		}
		if len(extra) > 0 {
			logger.WithField("extra_files", extra).Debug("worker loop: ignoring extra files in outputs directory")
		}
		if !found {
			return fmt.Errorf("output %q not written", name)
		}
		data, err := os.ReadFile(filepath.Join(outputsDir, name))
		if err != nil {
			return err
		}
		return objects.PutWithRetry(ctx, s.metrics, s.store, record.Result.Bucket, record.Result.Key, data)
	})
	if err != nil {
		s.failJob(ctx, sheepID, jobID, apierr.New(apierr.KindStorageInaccessible, fmt.Sprintf("uploading result: %v", err)))
		return
	}

	if err := s.jobs.Mark(jobID, jobstore.StateDone, nil); err != nil {
		logger.WithError(err).Error("worker loop: failed to mark job done")
		return
	}
	s.auditer.Record(ctx, audit.Event{JobID: jobID, SheepID: sheepID, State: string(jobstore.StateDone)})
	if s.metrics != nil {
		s.metrics.JobsCompleted.WithLabelValues(sheepID, string(jobstore.StateDone)).Inc()
		s.metrics.JobDuration.WithLabelValues(sheepID, string(jobstore.StateDone)).Observe(time.Since(record.CreatedAt).Seconds())
	}
	s.postCallback(record.StatusURL, true, "Done", "")
}

func (s *Shepherd) failJob(ctx context.Context, sheepID, jobID string, jobErr *apierr.Error) {
	record, lookupErr := s.jobs.Lookup(jobID)
	_ = s.jobs.Mark(jobID, jobstore.StateFailed, jobErr)
	s.auditer.Record(ctx, audit.Event{JobID: jobID, SheepID: sheepID, State: string(jobstore.StateFailed), Message: jobErr.Message})
	if s.metrics != nil {
		s.metrics.JobsCompleted.WithLabelValues(sheepID, string(jobstore.StateFailed)).Inc()
		if lookupErr == nil {
			s.metrics.JobDuration.WithLabelValues(sheepID, string(jobstore.StateFailed)).Observe(time.Since(record.CreatedAt).Seconds())
		}
	}
}

// handleSheepCrash implements spec.md §4.5 step 6's crash branch: fail the
// in-flight job, cycle the sheep Failed -> Idle, and restart it with its
// previous model, making up to 5 attempts on a doubling backoff.
func (s *Shepherd) handleSheepCrash(ctx context.Context, sheepID string, entry *sheepEntry, jobID string, logger *logrus.Entry) {
	logger.WithField("job_id", jobID).Warn("sheep crashed or socket errored mid-job")
	s.failJob(ctx, sheepID, jobID, apierr.New(apierr.KindSheepCrashed, "sheep process exited or socket errored"))

	// Read the loaded model before Slaughter, which clears it.
	loaded, hasModel := entry.worker.Loaded()
	_ = entry.worker.Slaughter(ctx)

	backoff := retry.NewBackoff(retry.Config{
		InitialDelay:  s.cfg.RestartInitialDelay,
		MaxDelay:      s.cfg.RestartMaxDelay,
		BackoffFactor: 2.0,
	})

	if !hasModel {
		return
	}

	for attempt := 0; attempt < 5; attempt++ {
		select {
		case <-time.After(backoff.Next()):
		case <-ctx.Done():
			return
		}
		if err := entry.worker.Configure(ctx, loaded); err == nil {
			if s.metrics != nil {
				s.metrics.SheepRestarts.WithLabelValues(sheepID).Inc()
			}
			return
		}
		logger.WithField("attempt", attempt+1).Warn("sheep restart attempt failed")
	}
}

func (s *Shepherd) postCallback(url string, success bool, status, message string) {
	if url == "" {
		return
	}
	go postStatusCallback(url, success, status, message)
}
