package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/baghchal/api/internal/bot"
	"github.com/freeeve/baghchal/api/internal/bot/qlearn"
	"github.com/freeeve/baghchal/api/internal/model"
	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// jobRegistry tracks the most recent training job per side.
type jobRegistry struct {
	mu   sync.Mutex
	jobs map[baghchal.Side]*qlearn.Job
	wg   sync.WaitGroup
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[baghchal.Side]*qlearn.Job)}
}

// StartTraining starts a background training job for req.Player. At most
// one job runs per side. The job is detached from ctx; stop it with
// CancelTraining or Shutdown.
func (s *AnalysisService) StartTraining(_ context.Context, req model.TrainingRequest) (model.TrainingStatus, error) {
	side, err := baghchal.ParseSide(req.Player)
	if err != nil {
		return model.TrainingStatus{}, err
	}
	opponent := s.cfg.Training.Opponent
	if req.Opponent != "" {
		if opponent, err = bot.ParseDifficulty(req.Opponent); err != nil {
			return model.TrainingStatus{}, err
		}
	}
	episodes := s.cfg.Training.Episodes
	if req.Episodes != 0 {
		episodes = req.Episodes
	}
	if episodes < 0 || episodes > s.cfg.Training.MaxEpisodes {
		return model.TrainingStatus{}, fmt.Errorf("%w: %d (max %d)", ErrInvalidEpisodes, episodes, s.cfg.Training.MaxEpisodes)
	}

	s.jobs.mu.Lock()
	defer s.jobs.mu.Unlock()
	if prev := s.jobs.jobs[side]; prev != nil && prev.Status().State == qlearn.JobRunning {
		return model.TrainingStatus{}, ErrTrainingInProgress
	}

	job := qlearn.StartJob(context.Background(), s.agents[side], qlearn.TrainConfig{
		Opponent: bot.ContestantForDifficulty(opponent),
		Episodes: episodes,
		Params:   s.cfg.Training.Params,
	})
	s.jobs.jobs[side] = job
	s.jobs.wg.Add(1)
	go s.watch(side, job)

	log.Info().
		Str("side", side.String()).
		Str("opponent", string(opponent)).
		Int("episodes", episodes).
		Msg("Training started")
	return toTrainingStatus(side, job.Status()), nil
}

// watch relays a job's progress to subscribers and persists each
// published snapshot.
func (s *AnalysisService) watch(side baghchal.Side, job *qlearn.Job) {
	defer s.jobs.wg.Done()
	ctx := context.Background()

	for p := range job.Progress() {
		s.broadcaster.BroadcastTrainingEvent(side.String(), EventTrainingProgress, p)
		s.persist(ctx, side)
	}

	_, err := job.Wait()
	status := toTrainingStatus(side, job.Status())
	switch status.State {
	case string(qlearn.JobCompleted):
		s.broadcaster.BroadcastTrainingEvent(side.String(), EventTrainingCompleted, status)
	case string(qlearn.JobCancelled):
		s.broadcaster.BroadcastTrainingEvent(side.String(), EventTrainingCancelled, status)
	default:
		log.Error().Err(err).Str("side", side.String()).Msg("Training failed")
		s.broadcaster.BroadcastTrainingEvent(side.String(), EventTrainingFailed, status)
		return
	}
	s.persist(ctx, side)
	log.Info().
		Str("side", side.String()).
		Str("state", status.State).
		Int("episodes", status.Episode).
		Int("states", status.States).
		Msg("Training finished")
}

func (s *AnalysisService) persist(ctx context.Context, side baghchal.Side) {
	if s.store == nil {
		return
	}
	if err := s.SavePolicy(ctx, side); err != nil {
		log.Error().Err(err).Str("side", side.String()).Msg("Failed to save policy")
	}
}

// CancelTraining stops the running job for the side named by player. The
// agent keeps its last published snapshot.
func (s *AnalysisService) CancelTraining(_ context.Context, player string) (model.TrainingStatus, error) {
	side, err := baghchal.ParseSide(player)
	if err != nil {
		return model.TrainingStatus{}, err
	}
	s.jobs.mu.Lock()
	job := s.jobs.jobs[side]
	s.jobs.mu.Unlock()
	if job == nil || job.Status().State != qlearn.JobRunning {
		return model.TrainingStatus{}, ErrNoTrainingJob
	}
	job.Cancel()
	<-job.Done()
	return toTrainingStatus(side, job.Status()), nil
}

// TrainingStatus returns the status of the most recent job for the side
// named by player.
func (s *AnalysisService) TrainingStatus(_ context.Context, player string) (model.TrainingStatus, error) {
	side, err := baghchal.ParseSide(player)
	if err != nil {
		return model.TrainingStatus{}, err
	}
	s.jobs.mu.Lock()
	job := s.jobs.jobs[side]
	s.jobs.mu.Unlock()
	if job == nil {
		return model.TrainingStatus{}, ErrNoTrainingJob
	}
	return toTrainingStatus(side, job.Status()), nil
}

// Shutdown cancels running jobs and waits until their final snapshots are
// saved, or until ctx is done.
func (s *AnalysisService) Shutdown(ctx context.Context) error {
	s.jobs.mu.Lock()
	for _, job := range s.jobs.jobs {
		job.Cancel()
	}
	s.jobs.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.jobs.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toTrainingStatus(side baghchal.Side, st qlearn.JobStatus) model.TrainingStatus {
	return model.TrainingStatus{
		Player:    side.String(),
		State:     string(st.State),
		Opponent:  st.Progress.Opponent,
		Episode:   st.Progress.Episode,
		Episodes:  st.Progress.Episodes,
		Epsilon:   st.Progress.Epsilon,
		States:    st.Progress.States,
		Wins:      st.Progress.Wins,
		Losses:    st.Progress.Losses,
		Draws:     st.Progress.Draws,
		StartedAt: st.StartedAt.Truncate(time.Millisecond),
		Error:     st.Error,
	}
}
