// Package transcoder is the REST client for the external transcoding
// engine. It submits packaging jobs and reads job state back; it never
// interprets the packaging configuration it carries.
package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/p-dutta/transcoder/internal/apperrors"
	"github.com/p-dutta/transcoder/internal/packaging"
)

// Job is the engine's job resource, reduced to the fields this service
// reads.
type Job struct {
	Name   string     `json:"name"`
	State  string     `json:"state,omitempty"`
	Config *JobConfig `json:"config,omitempty"`
}

type JobConfig struct {
	EditList []EditAtom `json:"editList,omitempty"`
}

type EditAtom struct {
	EndTimeOffset string `json:"endTimeOffset"`
}

type createJobRequest struct {
	InputURI  string              `json:"inputUri"`
	OutputURI string              `json:"outputUri"`
	Config    packaging.JobConfig `json:"config"`
}

// Client submits jobs to one project/location of the engine.
type Client struct {
	baseURL         string
	projectID       string
	location        string
	completionTopic string
	http            *http.Client
	log             *logrus.Logger
}

func NewClient(baseURL, projectID, location, completionTopic string, log *logrus.Logger) *Client {
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		projectID:       projectID,
		location:        location,
		completionTopic: completionTopic,
		http:            &http.Client{Timeout: 60 * time.Second},
		log:             log,
	}
}

func (c *Client) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.projectID, c.location)
}

// CreateJob submits a packaging job and returns the accepted job resource.
// The completion callback destination is attached here so the builder stays
// free of transport concerns.
func (c *Client) CreateJob(ctx context.Context, inputURI, outputURI string, cfg packaging.JobConfig) (*Job, error) {
	cfg.PubsubDestination = &packaging.PubsubDestination{Topic: c.completionTopic}

	body, err := json.Marshal(createJobRequest{
		InputURI:  inputURI,
		OutputURI: outputURI,
		Config:    cfg,
	})
	if err != nil {
		return nil, apperrors.EngineSubmission("failed to encode job submission", err)
	}

	url := fmt.Sprintf("%s/v1/%s/jobs", c.baseURL, c.parent())
	job, err := c.do(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	c.log.WithField("job_name", job.Name).Info("transcoding job accepted by engine")
	return job, nil
}

// GetJob fetches a job by its engine-assigned id.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	url := fmt.Sprintf("%s/v1/%s/jobs/%s", c.baseURL, c.parent(), jobID)
	return c.do(ctx, http.MethodGet, url, nil)
}

// JobDuration returns the total seconds of processed media for a job, as a
// decimal string, read from the first edit-list atom's end offset.
func (c *Client) JobDuration(ctx context.Context, jobID string) (string, error) {
	job, err := c.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Config == nil || len(job.Config.EditList) == 0 {
		return "", apperrors.EngineSubmission(fmt.Sprintf("job %s has no edit list", jobID), nil)
	}
	d, err := time.ParseDuration(job.Config.EditList[0].EndTimeOffset)
	if err != nil {
		return "", apperrors.EngineSubmission(fmt.Sprintf("job %s has malformed end offset", jobID), err)
	}
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64), nil
}

type jobTemplate struct {
	Name string `json:"name"`
}

type listTemplatesResponse struct {
	JobTemplates []jobTemplate `json:"jobTemplates"`
}

// ListTemplates returns the fully-qualified names of every job template
// under the client's project and location.
func (c *Client) ListTemplates(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/v1/%s/jobTemplates", c.baseURL, c.parent())
	respBody, err := c.raw(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var parsed listTemplatesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apperrors.EngineSubmission("failed to decode template list", err)
	}
	names := make([]string, 0, len(parsed.JobTemplates))
	for _, tpl := range parsed.JobTemplates {
		names = append(names, tpl.Name)
	}
	return names, nil
}

// DeleteTemplate removes one job template by its short id. The engine
// answers 404 for an unknown id; that maps to a client-facing bad request
// because the id came from the caller.
func (c *Client) DeleteTemplate(ctx context.Context, templateID string) error {
	url := fmt.Sprintf("%s/v1/%s/jobTemplates/%s", c.baseURL, c.parent(), templateID)
	if _, err := c.raw(ctx, http.MethodDelete, url, nil); err != nil {
		return apperrors.New(400, apperrors.CodeBadRequest, "This template does not exist")
	}
	c.log.WithField("template_id", templateID).Info("job template deleted")
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*Job, error) {
	respBody, err := c.raw(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(respBody, &job); err != nil {
		return nil, apperrors.EngineSubmission("failed to decode engine response", err)
	}
	return &job, nil
}

func (c *Client) raw(ctx context.Context, method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, apperrors.EngineSubmission("failed to build engine request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.EngineSubmission("transcoding engine unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.EngineSubmission("failed to read engine response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.EngineSubmission(
			fmt.Sprintf("engine returned %d: %s", resp.StatusCode, string(respBody)), nil)
	}
	return respBody, nil
}

// JobIDFromName extracts the engine-assigned job id from a fully-qualified
// name like "projects/p/locations/l/jobs/<id>".
func JobIDFromName(name string) string {
	if idx := strings.Index(name, "jobs/"); idx >= 0 {
		return name[idx+len("jobs/"):]
	}
	return ""
}
