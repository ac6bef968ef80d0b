package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/p-dutta/transcoder/internal/orchestrator"
	"github.com/p-dutta/transcoder/models"
)

// JobOrchestrator defines the lifecycle operations the HTTP handlers need.
// The concrete implementation is the orchestrator; tests substitute fakes.
type JobOrchestrator interface {
	Create(ctx context.Context, req *models.PackagingRequest, opts orchestrator.CreateOptions) (*models.Job, error)
	Lookup(ctx context.Context, customName, jobID string) (*models.Job, error)
	List(ctx context.Context) ([]models.Job, error)
}

// TemplateManager exposes the engine's job template administration.
type TemplateManager interface {
	ListTemplates(ctx context.Context) ([]string, error)
	DeleteTemplate(ctx context.Context, templateID string) error
}

// ApplicationHandler holds shared dependencies for handlers.
type ApplicationHandler struct {
	Jobs         JobOrchestrator
	Templates    TemplateManager
	Validate     *validator.Validate
	Logger       *logrus.Logger
	MediaCDNBase string
}

// NewApplicationHandler creates a new ApplicationHandler with the given
// dependencies.
func NewApplicationHandler(jobs JobOrchestrator, templates TemplateManager, validate *validator.Validate, logger *logrus.Logger, mediaCDNBase string) *ApplicationHandler {
	return &ApplicationHandler{
		Jobs:         jobs,
		Templates:    templates,
		Validate:     validate,
		Logger:       logger,
		MediaCDNBase: mediaCDNBase,
	}
}
