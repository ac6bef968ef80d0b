package models

// PackagingRequest is the declarative job request accepted both over HTTP
// and from the job-request stream. Field names follow the upstream message
// contract, including the historical "manifast_type" spelling.
type PackagingRequest struct {
	ContentID    string   `json:"content_id" validate:"required"`
	ProviderID   string   `json:"provider_id" validate:"required"`
	PackageID    string   `json:"package_id" validate:"required"`
	InputURI     string   `json:"input_uri" validate:"required"`
	OutputURI    string   `json:"output_uri" validate:"required"`
	CustomName   string   `json:"custom_name" validate:"required"`
	CreatedBy    string   `json:"created_by"`
	Description  string   `json:"description"`
	ImageURI     string   `json:"image_uri"`
	VideoQuality []int    `json:"video_quality" validate:"required,min=1"`
	AudioQuality []int    `json:"audio_quality"`
	DRMType      []string `json:"drm_type" validate:"required,min=1"`
	ManifestType []string `json:"manifast_type" validate:"required,min=1"`
}

// JobTemplateRequest names one engine job template by its short id.
type JobTemplateRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
}

// JobLookupRequest asks for a single job by custom name or engine job id.
type JobLookupRequest struct {
	JobID      string `json:"job_id"`
	CustomName string `json:"custom_name"`
}

// JobResponse is the uniform success envelope for the job endpoints.
type JobResponse struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message"`
	Data    []map[string]interface{} `json:"data"`
}

// StorageObjectEvent is the payload of a storage-trigger message. The event
// type ("OBJECT_FINALIZE" and friends) travels as a message attribute, not
// in the payload.
type StorageObjectEvent struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Bucket      string `json:"bucket"`
}

// CompletionEvent is the payload the engine publishes when a job reaches a
// terminal state.
type CompletionEvent struct {
	Job CompletionJob `json:"job"`
}

type CompletionJob struct {
	Name  string `json:"name"`
	State string `json:"state"`
}
