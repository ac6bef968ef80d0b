package consumers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/p-dutta/transcoder/internal/blobstore"
	"github.com/p-dutta/transcoder/internal/bus"
	"github.com/p-dutta/transcoder/models"
)

// JobCompleter is the slice of the orchestrator the completion loop needs.
type JobCompleter interface {
	Complete(ctx context.Context, fullName, terminalCode string) (*models.Job, error)
}

// Publisher publishes outbound notifications.
type Publisher interface {
	Publish(ctx context.Context, stream string, payload any, attributes map[string]string) error
}

// JobCompletionHandler applies terminal completion events and announces the
// final status downstream, including CDN-facing manifest URLs derived from
// the job's output location.
type JobCompletionHandler struct {
	jobs         JobCompleter
	publisher    Publisher
	stream       string
	mediaCDNBase string
	log          *logrus.Logger
}

func NewJobCompletionHandler(jobs JobCompleter, publisher Publisher, stream, mediaCDNBase string, log *logrus.Logger) *JobCompletionHandler {
	return &JobCompletionHandler{
		jobs:         jobs,
		publisher:    publisher,
		stream:       stream,
		mediaCDNBase: mediaCDNBase,
		log:          log,
	}
}

func (h *JobCompletionHandler) Name() string { return "job-completion" }

func (h *JobCompletionHandler) Handle(ctx context.Context, msg bus.Message) error {
	var event models.CompletionEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		h.log.WithField("id", msg.ID).WithError(err).Error("malformed completion message")
		return nil
	}
	if event.Job.Name == "" {
		h.log.WithField("id", msg.ID).Warn("completion message without job name")
		return nil
	}

	job, err := h.jobs.Complete(ctx, event.Job.Name, event.Job.State)
	if err != nil {
		return err
	}
	if job == nil {
		// Unknown job or duplicate delivery; nothing to announce.
		return nil
	}
	return h.publishFinalStatus(ctx, job)
}

func (h *JobCompletionHandler) publishFinalStatus(ctx context.Context, job *models.Job) error {
	outputPath := blobstore.ObjectPath(job.OutputURI)
	notification := models.JobResponse{
		Success: true,
		Message: "Job Final Status",
		Data: []map[string]interface{}{{
			"fully_qualified_name": job.FullyQualifiedName,
			"job_id":               job.JobID,
			"url":                  job.InputURI,
			"description":          job.Description,
			"state":                job.State,
			"status":               job.Status,
			"custom_name":          job.CustomName,
			"output_location":      job.OutputURI,
			"job_start_time":       job.CreatedAt.Format(time.RFC3339),
			"job_end_time":         job.UpdatedAt.Format(time.RFC3339),
			"duration":             job.DurationInSec,
			"dash_media_cdn":       h.mediaCDNBase + outputPath + "manifest_dash.mpd",
			"hls_media_cdn":        h.mediaCDNBase + outputPath + "manifest_hls.m3u8",
		}},
	}
	if err := h.publisher.Publish(ctx, h.stream, notification, nil); err != nil {
		return err
	}
	h.log.WithFields(logrus.Fields{
		"custom_name": job.CustomName,
		"state":       job.State,
	}).Info("final status published")
	return nil
}
