// Package store is the Job Record Store: the single durable home of job
// state. All lifecycle transitions funnel through it; it is the only
// consistency boundary between the concurrently running event loops.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	postgrest "github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/p-dutta/transcoder/internal/apperrors"
	"github.com/p-dutta/transcoder/models"
)

const jobsTable = "jobs"

// ErrNotFound is returned when no job matches the lookup. Event-driven
// callers treat it as a logged no-op, synchronous callers map it to 404.
var ErrNotFound = errors.New("job not found")

// JobStore persists jobs through the PostgREST interface.
type JobStore struct {
	client *supa.Client
	log    *logrus.Logger
}

func NewJobStore(client *supa.Client, log *logrus.Logger) *JobStore {
	return &JobStore{client: client, log: log}
}

// Create inserts a new job record and returns it as persisted.
func (s *JobStore) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	var results []models.Job
	_, err := s.client.From(jobsTable).
		Insert(job, false, "", "representation", "").
		ExecuteTo(&results)
	if err != nil {
		return nil, apperrors.Store("failed to insert job record", err)
	}
	if len(results) == 0 {
		return nil, apperrors.Store("no record returned after insert", nil)
	}
	s.log.WithFields(logrus.Fields{
		"custom_name": job.CustomName,
		"content_id":  job.ContentID,
	}).Info("job record created")
	return &results[0], nil
}

// GetByCustomName looks a job up by its internally assigned name.
func (s *JobStore) GetByCustomName(ctx context.Context, name string) (*models.Job, error) {
	return s.getOne("custom_name", name)
}

// GetByFullName looks a job up by the engine-assigned fully-qualified name.
func (s *JobStore) GetByFullName(ctx context.Context, name string) (*models.Job, error) {
	return s.getOne("fully_qualified_name", name)
}

// GetByJobID looks a job up by the engine-assigned job id.
func (s *JobStore) GetByJobID(ctx context.Context, jobID string) (*models.Job, error) {
	return s.getOne("job_id", jobID)
}

func (s *JobStore) getOne(column, value string) (*models.Job, error) {
	var results []models.Job
	_, err := s.client.From(jobsTable).
		Select("*", "", false).
		Eq(column, value).
		Limit(1, "").
		ExecuteTo(&results)
	if err != nil {
		return nil, apperrors.Store("job lookup failed", err)
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return &results[0], nil
}

// List returns every job, most recently updated first.
func (s *JobStore) List(ctx context.Context) ([]models.Job, error) {
	var results []models.Job
	_, err := s.client.From(jobsTable).
		Select("*", "", false).
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&results)
	if err != nil {
		return nil, apperrors.Store("job list failed", err)
	}
	return results, nil
}

// MarkDispatched records the engine's acceptance of a job: fully-qualified
// name, job id and the move to PROCESSING.
func (s *JobStore) MarkDispatched(ctx context.Context, customName, fullName, jobID string) (*models.Job, error) {
	update := map[string]interface{}{
		"fully_qualified_name": fullName,
		"job_id":               jobID,
		"status":               models.StatusProcessing,
		"updated_at":           time.Now().UTC(),
	}
	var results []models.Job
	_, err := s.client.From(jobsTable).
		Update(update, "representation", "").
		Eq("custom_name", customName).
		ExecuteTo(&results)
	if err != nil {
		return nil, apperrors.Store("failed to mark job dispatched", err)
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return &results[0], nil
}

// MarkComplete applies the terminal transition. The update is guarded on
// status so a replayed completion event cannot re-mutate an already
// COMPLETE job; ErrNotFound then means either no such job or nothing left
// to transition.
func (s *JobStore) MarkComplete(ctx context.Context, fullName string, state models.JobState, duration string) (*models.Job, error) {
	update := map[string]interface{}{
		"status":          models.StatusComplete,
		"state":           state,
		"duration_in_sec": duration,
		"updated_at":      time.Now().UTC(),
	}
	var results []models.Job
	_, err := s.client.From(jobsTable).
		Update(update, "representation", "").
		Eq("fully_qualified_name", fullName).
		Neq("status", string(models.StatusComplete)).
		ExecuteTo(&results)
	if err != nil {
		return nil, apperrors.Store("failed to mark job complete", err)
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return &results[0], nil
}
