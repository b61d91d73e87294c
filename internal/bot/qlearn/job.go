package qlearn

import (
	"context"
	"errors"
	"sync"
	"time"
)

// JobState is the lifecycle state of a training job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobCancelled JobState = "cancelled"
	JobFailed    JobState = "failed"
)

// JobStatus is a point-in-time view of a job.
type JobStatus struct {
	State     JobState  `json:"state"`
	Progress  Progress  `json:"progress"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

// Job is a training run in the background. Progress updates are delivered
// on a buffered channel; a slow reader misses intermediate updates but the
// latest one is always available from Status.
type Job struct {
	agent    *Agent
	cancel   context.CancelFunc
	done     chan struct{}
	progress chan Progress

	mu     sync.Mutex
	status JobStatus
	result *Snapshot
	err    error
}

// StartJob trains agent in a new goroutine. Cancel the job, or the
// parent context, to stop it.
func StartJob(ctx context.Context, agent *Agent, cfg TrainConfig) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{
		agent:    agent,
		cancel:   cancel,
		done:     make(chan struct{}),
		progress: make(chan Progress, 16),
		status: JobStatus{
			State:     JobRunning,
			Progress:  Progress{Side: agent.Side(), Opponent: cfg.Opponent.Name, Episodes: cfg.Episodes},
			StartedAt: time.Now().UTC(),
		},
	}
	go j.run(ctx, cfg)
	return j
}

func (j *Job) run(ctx context.Context, cfg TrainConfig) {
	defer close(j.done)
	defer close(j.progress)
	defer j.cancel()

	snap, err := j.agent.Train(ctx, cfg, j.report)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.result, j.err = snap, err
	switch {
	case err == nil:
		j.status.State = JobCompleted
	case errors.Is(err, ErrTrainingInterrupted):
		j.status.State = JobCancelled
		j.status.Error = err.Error()
	default:
		j.status.State = JobFailed
		j.status.Error = err.Error()
	}
}

func (j *Job) report(p Progress) {
	j.mu.Lock()
	j.status.Progress = p
	j.mu.Unlock()
	select {
	case j.progress <- p:
	default:
	}
}

// Progress returns the channel of progress updates. It is closed when the
// job ends.
func (j *Job) Progress() <-chan Progress { return j.progress }

// Done is closed when the job ends.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel asks the job to stop. The agent keeps its last published snapshot.
func (j *Job) Cancel() { j.cancel() }

// Wait blocks until the job ends and returns its final snapshot.
func (j *Job) Wait() (*Snapshot, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Status returns the job's current status.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}
