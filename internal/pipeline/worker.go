package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/murmurhq/murmur/internal/storage"
)

// JobTypeNoteProcess is the queue type for note pipeline runs.
const JobTypeNoteProcess = "note_process"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Worker polls the job queue and runs note pipelines on a bounded pool.
// Claimed jobs run concurrently up to the pool size; the extraction call
// inside each run is the long blocking operation the bound protects against.
type Worker struct {
	store  JobStore
	proc   *Processor
	poll   time.Duration
	sem    *semaphore.Weighted
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms;
// if workers is <= 0, it defaults to 2.
func NewWorker(store JobStore, proc *Processor, workers int, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if workers <= 0 {
		workers = 2
	}
	return &Worker{
		store:  store,
		proc:   proc,
		poll:   pollInterval,
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: slog.Default(),
	}
}

// Wait blocks until all in-flight job runs finish.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Run polls for jobs until ctx is cancelled, then waits for in-flight runs.
func (w *Worker) Run(ctx context.Context) {
	defer w.wg.Wait()

	for {
		if ctx.Err() != nil {
			return
		}

		claimed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if claimed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims a single job and hands it to the pool. Returns true if a
// job was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return false, nil
	}

	job, err := w.store.ClaimNextJob([]string{JobTypeNoteProcess})
	if err != nil {
		w.sem.Release(1)
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		w.sem.Release(1)
		return false, nil
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.sem.Release(1)
		w.runJob(ctx, job)
	}()
	return true, nil
}

func (w *Worker) runJob(ctx context.Context, job *storage.Job) {
	var payload NotePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		w.logger.Warn("job has malformed payload", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, fmt.Sprintf("parsing payload: %v", err)); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return
	}

	if err := w.proc.Process(ctx, payload); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "note_id", payload.NoteID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		w.logger.Error("completing job", "job_id", job.ID, "error", err)
	}
}
