package utils

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/p-dutta/transcoder/internal/apperrors"
	"github.com/p-dutta/transcoder/internal/blobstore"
	"github.com/p-dutta/transcoder/models"
)

// RespondWithJobs sends the uniform success envelope the job endpoints use.
func RespondWithJobs(c *fiber.Ctx, statusCode int, message string, jobs []models.Job) error {
	data := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		data = append(data, JobToMap(job))
	}
	return c.Status(statusCode).JSON(models.JobResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// RespondWithJobList sends the list envelope, whose rows carry the derived
// CDN manifest URLs alongside the job fields.
func RespondWithJobList(c *fiber.Ctx, message string, jobs []models.Job, cdnBase string) error {
	data := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		data = append(data, JobToListRow(job, cdnBase))
	}
	return c.Status(fiber.StatusOK).JSON(models.JobResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// RespondWithError sends the uniform failure envelope carrying the domain
// error code alongside the HTTP status.
func RespondWithError(c *fiber.Ctx, statusCode, code int, message string) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"success": false,
		"code":    code,
		"message": message,
	})
}

// ErrorHandler is the fiber app-level error handler: typed application
// errors keep their HTTP status and domain code, anything else collapses to
// an internal error.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if fiberErr, ok := err.(*fiber.Error); ok {
		return RespondWithError(c, fiberErr.Code, apperrors.CodeInternal, fiberErr.Message)
	}
	appErr := apperrors.AsError(err)
	return RespondWithError(c, appErr.HTTPStatus, appErr.Code, appErr.Detail)
}

// FormatValidationErrors flattens validator/v10 errors into messages usable
// in a response body.
func FormatValidationErrors(err error) []string {
	var messages []string
	if err == nil {
		return messages
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	for _, fieldErr := range validationErrors {
		message := fmt.Sprintf("Field '%s' failed on the '%s' tag", fieldErr.Field(), fieldErr.Tag())
		if fieldErr.Param() != "" {
			message = fmt.Sprintf("%s (value: %s)", message, fieldErr.Param())
		}
		messages = append(messages, message)
	}
	return messages
}

// JobToListRow renders a job for the list endpoint, including the two
// CDN-facing manifest URLs derived from its output location.
func JobToListRow(job models.Job, cdnBase string) map[string]interface{} {
	outputPath := blobstore.ObjectPath(job.OutputURI)
	return map[string]interface{}{
		"job_start_time":      job.CreatedAt,
		"job_end_time":        job.UpdatedAt,
		"job_id":              job.JobID,
		"input_url":           job.InputURI,
		"output_url":          job.OutputURI,
		"project_id":          job.ProjectID,
		"content_id":          job.ContentID,
		"package_id":          job.PackageID,
		"description":         job.Description,
		"name":                job.CustomName,
		"location":            job.Location,
		"created_by":          job.CreatedBy,
		"status":              job.Status,
		"state":               job.State,
		"duration_in_seconds": job.DurationInSec,
		"dash_media_cdn":      cdnBase + outputPath + "manifest_dash.mpd",
		"hls_media_cdn":       cdnBase + outputPath + "manifest_hls.m3u8",
	}
}

// JobToMap renders a job record the way the response envelope and the
// outbound notification expect it.
func JobToMap(job models.Job) map[string]interface{} {
	return map[string]interface{}{
		"job_id":               job.JobID,
		"custom_name":          job.CustomName,
		"fully_qualified_name": job.FullyQualifiedName,
		"content_id":           job.ContentID,
		"package_id":           job.PackageID,
		"provider_id":          job.ProviderID,
		"description":          job.Description,
		"input_uri":            job.InputURI,
		"output_uri":           job.OutputURI,
		"created_by":           job.CreatedBy,
		"status":               job.Status,
		"state":                job.State,
		"duration_in_sec":      job.DurationInSec,
		"created_at":           job.CreatedAt,
		"updated_at":           job.UpdatedAt,
	}
}
