package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"dobkap/internal/log"
)

// DefaultRetention is how long completed jobs stay queryable.
const DefaultRetention = time.Hour

// Store holds jobs in process memory.
type Store struct {
	retention time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

func NewStore(retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		retention: retention,
		now:       time.Now,
		jobs:      make(map[string]*Job),
	}
}

// Spawn runs fn on its own goroutine under a context derived from parent
// and returns the job immediately. The job is marked completed when fn
// returns, whatever the outcome. A panic in fn is recorded as an error
// message.
func (s *Store) Spawn(parent context.Context, fn func(ctx context.Context, job *Job)) *Job {
	s.prune()

	ctx, cancel := context.WithCancel(parent)
	job := &Job{
		id:        uuid.NewString(),
		startedAt: s.now(),
		cancel:    cancel,
	}

	s.mu.Lock()
	s.jobs[job.id] = job
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "Job panicked", log.FieldJobID, job.id, "panic", r)
				job.Error(fmt.Sprintf("internal error: %v", r))
			}
			job.markCompleted(s.now())
		}()
		fn(ctx, job)
	}()
	return job
}

// Cancel sets the job's canceled flag and cancels its context. It reports
// whether the job exists.
func (s *Store) Cancel(id string) bool {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	job.markCanceled()
	return true
}

func (s *Store) Get(id string) (Snapshot, bool) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return job.Snapshot(), true
}

// Running reports whether any job has not completed yet.
func (s *Store) Running() bool {
	return len(s.Active()) > 0
}

// Active returns the ids of jobs that have not completed.
func (s *Store) Active() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, j := range s.jobs {
		if !j.Completed() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Wait blocks until every spawned job has returned.
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) prune() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		if j.expired(now, s.retention) {
			delete(s.jobs, id)
		}
	}
}
