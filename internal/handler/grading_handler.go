package handler

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/gradebook"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// GradingHandler exposes single and bulk grading plus the CSV gradebook round trip.
type GradingHandler struct {
	service service.GradingService
	logger  zerolog.Logger
}

// NewGradingHandler constructs a grading handler.
func NewGradingHandler(service service.GradingService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service: service,
		logger:  logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register binds the grading routes. All of them are restricted to staff.
func (h *GradingHandler) Register(router fiber.Router) {
	staff := middleware.RequireRole(staffRoles...)

	router.Patch("/submissions/:id/grade", staff, h.grade)
	router.Post("/assessments/:id/grades/bulk", staff, h.bulkGrade)
	router.Get("/assessments/:id/grades/export", staff, h.export)
	router.Post("/assessments/:id/grades/import", staff, h.importGrades)
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	var payload dto.GradeSubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Grade(withRequestContext(c), submissionID, actorFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to grade submission")
	}

	return utils.SendSuccess(c, "submission graded", response)
}

func (h *GradingHandler) bulkGrade(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assessment id")
	}

	var payload dto.BulkGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.BulkGrade(withRequestContext(c), assessmentID, actorFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to grade submissions")
	}

	return utils.SendSuccess(c, "submissions graded", response)
}

func (h *GradingHandler) export(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assessment id")
	}

	rows, err := h.service.Export(withRequestContext(c), assessmentID, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to export grades")
	}

	var buf bytes.Buffer
	if err := gradebook.Write(&buf, rows); err != nil {
		return respondError(c, h.logger, err, "failed to export grades")
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="assessment-%d-grades.csv"`, assessmentID))
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}

// importGrades accepts the template as a multipart "file" field or as the raw request body.
func (h *GradingHandler) importGrades(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assessment id")
	}

	returnToStudents := parseBoolValue(c.Query("return_to_students"))

	var template io.Reader
	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm) {
		file, err := c.FormFile("file")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "file field required")
		}
		if value := c.FormValue("return_to_students"); value != "" {
			returnToStudents = parseBoolValue(value)
		}
		src, err := file.Open()
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "unable to read uploaded file")
		}
		defer src.Close()
		template = src
	} else {
		body := c.Body()
		if len(bytes.TrimSpace(body)) == 0 {
			return utils.SendError(c, fiber.StatusBadRequest, "gradebook body required")
		}
		template = bytes.NewReader(body)
	}

	response, err := h.service.Import(withRequestContext(c), assessmentID, actorFromContext(c), template, returnToStudents)
	if err != nil {
		return respondError(c, h.logger, err, "failed to import grades")
	}

	return utils.SendSuccess(c, "grades imported", response)
}
