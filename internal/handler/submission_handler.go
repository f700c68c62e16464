package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// SubmissionHandler exposes the student submission lifecycle.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler constructs a submission handler.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register binds the submission routes. guards run before the submit and resubmit
// endpoints, typically a rate limiter.
func (h *SubmissionHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	studentOnly := middleware.RequireRole(service.RoleStudent)
	chain := func(final fiber.Handler) []fiber.Handler {
		handlers := make([]fiber.Handler, 0, len(guards)+2)
		handlers = append(handlers, studentOnly)
		handlers = append(handlers, guards...)
		return append(handlers, final)
	}

	router.Post("/assessments/:id/submissions", chain(h.submit)...)
	router.Post("/submissions/:id/resubmit", chain(h.resubmit)...)
	router.Get("/submissions", h.list)
	router.Get("/submissions/:id", h.get)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assessment id")
	}

	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	actor := actorFromContext(c)
	response, err := h.service.Submit(withRequestContext(c), assessmentID, actor.ID, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to submit assessment")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission recorded", response)
}

func (h *SubmissionHandler) resubmit(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	actor := actorFromContext(c)
	response, err := h.service.Resubmit(withRequestContext(c), submissionID, actor.ID, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to resubmit")
	}

	return utils.SendSuccess(c, "submission resubmitted", response)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	var filter dto.SubmissionFilter

	assessmentID, err := parseQueryUint(c, "assessment_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	studentID, err := parseQueryUint(c, "student_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	filter.AssessmentID = assessmentID
	filter.StudentID = studentID
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		filter.Status = &status
	}

	items, err := h.service.List(withRequestContext(c), filter, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list submissions")
	}

	return utils.SendSuccess(c, "submissions retrieved", items)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	response, err := h.service.Get(withRequestContext(c), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load submission")
	}

	return utils.SendSuccess(c, "submission retrieved", response)
}
