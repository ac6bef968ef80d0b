package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/p-dutta/transcoder/internal/apperrors"
	"github.com/p-dutta/transcoder/internal/orchestrator"
	"github.com/p-dutta/transcoder/models"
	"github.com/p-dutta/transcoder/utils"
)

// CreateJob accepts a packaging request and runs the synchronous creation
// path, storage checks included.
// POST /api/v1/job/create
func (h *ApplicationHandler) CreateJob(c *fiber.Ctx) error {
	var req models.PackagingRequest
	if err := c.BodyParser(&req); err != nil {
		h.Logger.WithError(err).Warn("unparseable job create request")
		return apperrors.Validation("Invalid request body")
	}
	if err := h.Validate.Struct(&req); err != nil {
		detail := strings.Join(utils.FormatValidationErrors(err), "; ")
		return apperrors.Validation(detail)
	}

	job, err := h.Jobs.Create(c.Context(), &req, orchestrator.CreateOptions{VerifyStorage: true})
	if err != nil {
		return err
	}
	return utils.RespondWithJobs(c, fiber.StatusCreated, "Job is under processing", []models.Job{*job})
}

// ListJobs returns every job record, most recently updated first, each row
// carrying the derived CDN manifest URLs.
// GET /api/v1/job/list
func (h *ApplicationHandler) ListJobs(c *fiber.Ctx) error {
	jobs, err := h.Jobs.List(c.Context())
	if err != nil {
		return err
	}
	return utils.RespondWithJobList(c, "List of all jobs", jobs, h.MediaCDNBase)
}

// JobDetails looks up a single job by custom name or engine job id.
// POST /api/v1/job/list/details
func (h *ApplicationHandler) JobDetails(c *fiber.Ctx) error {
	var req models.JobLookupRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.Validation("Invalid request body")
	}

	job, err := h.Jobs.Lookup(c.Context(), req.CustomName, req.JobID)
	if err != nil {
		return err
	}
	return utils.RespondWithJobs(c, fiber.StatusOK, "Job details", []models.Job{*job})
}

// Health reports service liveness.
// GET /health
func (h *ApplicationHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"message": "Service is healthy",
	})
}
