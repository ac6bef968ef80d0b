package consumers

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/p-dutta/transcoder/internal/bus"
	"github.com/p-dutta/transcoder/internal/orchestrator"
	"github.com/p-dutta/transcoder/models"
)

// JobCreator is the slice of the orchestrator the ingestion loops need to
// start jobs.
type JobCreator interface {
	Create(ctx context.Context, req *models.PackagingRequest, opts orchestrator.CreateOptions) (*models.Job, error)
}

// JobRequestHandler turns stream-delivered packaging requests into jobs.
// The payload contract matches the HTTP create endpoint exactly, but the
// decode is strict: a message with unknown fields is malformed upstream
// output and gets rejected rather than partially applied.
type JobRequestHandler struct {
	jobs     JobCreator
	validate *validator.Validate
	log      *logrus.Logger
}

func NewJobRequestHandler(jobs JobCreator, validate *validator.Validate, log *logrus.Logger) *JobRequestHandler {
	return &JobRequestHandler{jobs: jobs, validate: validate, log: log}
}

func (h *JobRequestHandler) Name() string { return "job-request" }

func (h *JobRequestHandler) Handle(ctx context.Context, msg bus.Message) error {
	var req models.PackagingRequest
	decoder := json.NewDecoder(bytes.NewReader(msg.Data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.log.WithField("id", msg.ID).WithError(err).Error("malformed job request message")
		return nil
	}
	if err := h.validate.Struct(&req); err != nil {
		h.log.WithFields(logrus.Fields{
			"id":          msg.ID,
			"custom_name": req.CustomName,
		}).WithError(err).Error("invalid job request message")
		return nil
	}

	job, err := h.jobs.Create(ctx, &req, orchestrator.CreateOptions{})
	if err != nil {
		return err
	}
	h.log.WithFields(logrus.Fields{
		"custom_name": job.CustomName,
		"job_id":      job.JobID,
	}).Info("job created from stream request")
	return nil
}
