package models

import "time"

// JobStatus tracks delivery progress through the pipeline. It only ever
// moves forward: WAITING -> PROCESSING -> COMPLETE.
type JobStatus string

const (
	StatusWaiting    JobStatus = "WAITING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusComplete   JobStatus = "COMPLETE"
)

// JobState is INIT for the whole of a job's life until the terminal
// completion event lands, after which it is SUCCESS or FAILED forever.
type JobState string

const (
	StateInit    JobState = "INIT"
	StateSuccess JobState = "SUCCESS"
	StateFailed  JobState = "FAILED"
)

// Job is the persisted record for one packaging job. CustomName is assigned
// at creation and never changes; FullyQualifiedName is empty until the
// engine accepts the job and is immutable afterwards.
type Job struct {
	ID                 int       `json:"id,omitempty"`
	JobID              string    `json:"job_id,omitempty"`
	ProjectID          string    `json:"project_id"`
	PackageID          string    `json:"package_id"`
	ContentID          string    `json:"content_id"`
	ProviderID         string    `json:"provider_id"`
	Description        string    `json:"description"`
	CustomName         string    `json:"custom_name"`
	FullyQualifiedName string    `json:"fully_qualified_name,omitempty"`
	Location           string    `json:"location"`
	InputURI           string    `json:"input_uri"`
	OutputURI          string    `json:"output_uri"`
	CreatedBy          string    `json:"created_by"`
	SecretVersion      int       `json:"version"`
	DurationInSec      string    `json:"duration_in_sec,omitempty"`
	Status             JobStatus `json:"status"`
	State              JobState  `json:"state"`
	CreatedAt          time.Time `json:"created_at,omitempty"`
	UpdatedAt          time.Time `json:"updated_at,omitempty"`
}
