package handler

import (
	"encoding/json"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// AssessmentHandler exposes the assessment catalog.
type AssessmentHandler struct {
	service service.AssessmentService
	logger  zerolog.Logger
}

// NewAssessmentHandler constructs an assessment handler.
func NewAssessmentHandler(service service.AssessmentService, logger zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		service: service,
		logger:  logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register binds the assessment routes.
func (h *AssessmentHandler) Register(router fiber.Router) {
	staff := middleware.RequireRole(staffRoles...)

	router.Post("/assessments", staff, h.create)
	router.Get("/assessments/:id", h.get)
	router.Get("/instructors/:id/assessments", staff, h.listByInstructor)
}

// create accepts either a JSON body or a multipart form carrying the JSON document in a
// "payload" field and the files under "attachments".
func (h *AssessmentHandler) create(c *fiber.Ctx) error {
	var (
		payload     dto.AssessmentCreateRequest
		attachments []*multipart.FileHeader
	)

	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid multipart form")
		}
		raw := ""
		if values := form.Value["payload"]; len(values) > 0 {
			raw = values[0]
		}
		if strings.TrimSpace(raw) == "" {
			return utils.SendError(c, fiber.StatusBadRequest, "payload field required")
		}
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
		attachments = form.File["attachments"]
	} else if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Create(withRequestContext(c), actorFromContext(c), payload, attachments)
	if err != nil {
		return respondError(c, h.logger, err, "failed to create assessment")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assessment created", response)
}

func (h *AssessmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assessment id")
	}

	response, err := h.service.Get(withRequestContext(c), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load assessment")
	}

	return utils.SendSuccess(c, "assessment retrieved", response)
}

func (h *AssessmentHandler) listByInstructor(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid instructor id")
	}

	items, err := h.service.ListByInstructor(withRequestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list assessments")
	}

	return utils.SendSuccess(c, "assessments retrieved", items)
}
