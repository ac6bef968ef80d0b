package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/p-dutta/transcoder/internal/apperrors"
	"github.com/p-dutta/transcoder/models"
)

// ListTemplates returns the engine's job templates for this project and
// location.
// GET /api/v1/template/list
func (h *ApplicationHandler) ListTemplates(c *fiber.Ctx) error {
	names, err := h.Templates.ListTemplates(c.Context())
	if err != nil {
		return err
	}

	data := make([]map[string]interface{}, 0, len(names))
	for i, name := range names {
		data = append(data, map[string]interface{}{
			fmt.Sprintf("Template %d", i+1): name,
		})
	}
	return c.JSON(models.JobResponse{
		Success: true,
		Message: "List of all job templates",
		Data:    data,
	})
}

// DeleteTemplate removes one job template by its short id.
// POST /api/v1/template/delete
func (h *ApplicationHandler) DeleteTemplate(c *fiber.Ctx) error {
	var req models.JobTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.Validation("Invalid request body")
	}
	if err := h.Validate.Struct(&req); err != nil {
		return apperrors.Validation("Field 'template_id' is required")
	}

	if err := h.Templates.DeleteTemplate(c.Context(), req.TemplateID); err != nil {
		return err
	}
	return c.JSON(models.JobResponse{
		Success: true,
		Message: "Deleted job template",
		Data: []map[string]interface{}{
			{"response": fmt.Sprintf("Deleted job template : %s", req.TemplateID)},
		},
	})
}
