// Package orchestrator owns the job lifecycle state machine: creation,
// dispatch acknowledgement and terminal completion. It is stateless and
// re-entrant; the job record store is the only consistency boundary, so
// concurrent invocations for different jobs proceed independently.
package orchestrator

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/p-dutta/transcoder/internal/apperrors"
	"github.com/p-dutta/transcoder/internal/keyserver"
	"github.com/p-dutta/transcoder/internal/packaging"
	"github.com/p-dutta/transcoder/internal/store"
	"github.com/p-dutta/transcoder/internal/transcoder"
	"github.com/p-dutta/transcoder/models"
)

// JobStore is the read/write contract of the job record store.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) (*models.Job, error)
	GetByCustomName(ctx context.Context, name string) (*models.Job, error)
	GetByFullName(ctx context.Context, name string) (*models.Job, error)
	GetByJobID(ctx context.Context, jobID string) (*models.Job, error)
	List(ctx context.Context) ([]models.Job, error)
	MarkDispatched(ctx context.Context, customName, fullName, jobID string) (*models.Job, error)
	MarkComplete(ctx context.Context, fullName string, state models.JobState, duration string) (*models.Job, error)
}

// Engine is the external transcoding engine, reduced to what the lifecycle
// needs.
type Engine interface {
	CreateJob(ctx context.Context, inputURI, outputURI string, cfg packaging.JobConfig) (*transcoder.Job, error)
	JobDuration(ctx context.Context, jobID string) (string, error)
}

// KeyProvider obtains encryption keys for a job's selection.
type KeyProvider interface {
	Provision(ctx context.Context, contentID, packageID, providerID string, sel packaging.Selection) ([]keyserver.ProcessedKey, error)
}

// BlobStore answers storage existence questions and prepares output
// locations.
type BlobStore interface {
	Exists(ctx context.Context, uri string) (bool, error)
	EnsureOutputLocation(ctx context.Context, uri string) (string, error)
}

// Config is the static identity the orchestrator stamps onto every job.
type Config struct {
	ProjectID     string
	Location      string
	SecretVersion int
}

// Orchestrator advances jobs through their lifecycle.
type Orchestrator struct {
	store   JobStore
	engine  Engine
	keys    KeyProvider
	blobs   BlobStore
	builder *packaging.Builder
	cfg     Config
	log     *logrus.Logger
}

func New(jobStore JobStore, engine Engine, keys KeyProvider, blobs BlobStore, builder *packaging.Builder, cfg Config, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		store:   jobStore,
		engine:  engine,
		keys:    keys,
		blobs:   blobs,
		builder: builder,
		cfg:     cfg,
		log:     log,
	}
}

// CreateOptions tunes the Create transition per entry path.
type CreateOptions struct {
	// VerifyStorage makes Create confirm the input object and output
	// location exist before anything is persisted. The synchronous HTTP
	// path sets it; the event-driven path trusts the trigger.
	VerifyStorage bool
}

// Create accepts a validated packaging request: allocates the job record
// (WAITING/INIT), provisions keys, builds the packaging configuration,
// submits it to the engine and records the dispatch acknowledgement. Any
// failure surfaces as a typed error; nothing is left silently stuck.
func (o *Orchestrator) Create(ctx context.Context, req *models.PackagingRequest, opts CreateOptions) (*models.Job, error) {
	sel, err := packaging.NewSelection(req.VideoQuality, req.AudioQuality, req.DRMType, req.ManifestType)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	if opts.VerifyStorage {
		if err := o.verifyStorage(ctx, req); err != nil {
			return nil, err
		}
	}

	outputURI, err := o.blobs.EnsureOutputLocation(ctx, req.OutputURI)
	if err != nil {
		return nil, err
	}

	keys, err := o.keys.Provision(ctx, req.ContentID, req.PackageID, req.ProviderID, sel)
	if err != nil {
		return nil, err
	}
	if len(keys) > 0 {
		o.log.WithFields(logrus.Fields{
			"custom_name": req.CustomName,
			"keys":        len(keys),
			"version":     o.cfg.SecretVersion,
		}).Info("encryption keys provisioned")
	}

	job := &models.Job{
		ProjectID:     o.cfg.ProjectID,
		Location:      o.cfg.Location,
		ContentID:     req.ContentID,
		ProviderID:    req.ProviderID,
		PackageID:     req.PackageID,
		InputURI:      req.InputURI,
		OutputURI:     outputURI,
		CreatedBy:     req.CreatedBy,
		Description:   req.Description,
		CustomName:    req.CustomName,
		SecretVersion: o.cfg.SecretVersion,
		Status:        models.StatusWaiting,
		State:         models.StateInit,
	}
	if _, err := o.store.Create(ctx, job); err != nil {
		return nil, err
	}

	cfg := o.builder.Build(sel, req.ImageURI, o.cfg.SecretVersion)
	engineJob, err := o.engine.CreateJob(ctx, req.InputURI, outputURI, cfg)
	if err != nil {
		return nil, err
	}

	dispatched, err := o.DispatchAcknowledged(ctx, req.CustomName, engineJob.Name)
	if err != nil {
		return nil, err
	}
	if dispatched == nil {
		// The record was inserted above, so a miss here means it vanished
		// underneath us.
		return nil, apperrors.Store("job record disappeared during dispatch", store.ErrNotFound)
	}
	return dispatched, nil
}

func (o *Orchestrator) verifyStorage(ctx context.Context, req *models.PackagingRequest) error {
	inputExists, err := o.blobs.Exists(ctx, req.InputURI)
	if err != nil {
		return err
	}
	if !inputExists {
		return apperrors.New(400, apperrors.CodeValidation, "Input file does not exist.")
	}
	outputExists, err := o.blobs.Exists(ctx, req.OutputURI)
	if err != nil {
		return err
	}
	if !outputExists {
		return apperrors.New(400, apperrors.CodeValidation, "Output directory does not exist.")
	}
	return nil
}

// DispatchAcknowledged records the engine's acceptance: fully-qualified
// name, parsed job id, status PROCESSING. An unknown custom name is a
// logged no-op, never an error, so the inbound event still counts as
// consumed.
func (o *Orchestrator) DispatchAcknowledged(ctx context.Context, customName, fullName string) (*models.Job, error) {
	jobID := transcoder.JobIDFromName(fullName)
	job, err := o.store.MarkDispatched(ctx, customName, fullName, jobID)
	if errors.Is(err, store.ErrNotFound) {
		o.log.WithField("custom_name", customName).Warn("dispatch ack for unknown job, skipping")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.log.WithFields(logrus.Fields{
		"custom_name": customName,
		"job_id":      jobID,
	}).Info("job dispatched to engine")
	return job, nil
}

// Complete applies the terminal transition for a completion event. Replays
// against an already COMPLETE job are skipped outright, so the engine
// duration lookup runs at most once per job. The updated job is returned
// for downstream notification; a nil job means nothing transitioned.
func (o *Orchestrator) Complete(ctx context.Context, fullName, terminalCode string) (*models.Job, error) {
	job, err := o.store.GetByFullName(ctx, fullName)
	if errors.Is(err, store.ErrNotFound) {
		o.log.WithField("fully_qualified_name", fullName).Warn("completion event for unknown job, skipping")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if job.Status == models.StatusComplete {
		o.log.WithField("fully_qualified_name", fullName).Info("duplicate completion event, job already complete")
		return nil, nil
	}

	duration, err := o.engine.JobDuration(ctx, job.JobID)
	if err != nil {
		return nil, err
	}

	state := models.StateFailed
	if terminalCode == "SUCCEEDED" {
		state = models.StateSuccess
	}

	updated, err := o.store.MarkComplete(ctx, fullName, state, duration)
	if errors.Is(err, store.ErrNotFound) {
		// Lost a race with a concurrent completion; the guard held.
		o.log.WithField("fully_qualified_name", fullName).Info("completion already applied concurrently")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	o.log.WithFields(logrus.Fields{
		"fully_qualified_name": fullName,
		"state":                updated.State,
		"duration_in_sec":      updated.DurationInSec,
	}).Info("job completed")
	return updated, nil
}

// Lookup finds a job by custom name, falling back to the engine job id.
func (o *Orchestrator) Lookup(ctx context.Context, customName, jobID string) (*models.Job, error) {
	if customName != "" {
		job, err := o.store.GetByCustomName(ctx, customName)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if jobID != "" {
		job, err := o.store.GetByJobID(ctx, jobID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("Job not found by custom name or job ID")
		}
		return job, err
	}
	if customName != "" {
		return nil, apperrors.NotFound("Job not found by custom name or job ID")
	}
	return nil, apperrors.Validation("Please provide either a job ID or a custom name")
}

// List returns all jobs, most recently updated first.
func (o *Orchestrator) List(ctx context.Context) ([]models.Job, error) {
	return o.store.List(ctx)
}
