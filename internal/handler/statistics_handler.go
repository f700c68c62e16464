package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// StatisticsHandler exposes assessment and instructor summaries.
type StatisticsHandler struct {
	service service.StatisticsService
	logger  zerolog.Logger
}

// NewStatisticsHandler constructs a statistics handler.
func NewStatisticsHandler(service service.StatisticsService, logger zerolog.Logger) *StatisticsHandler {
	return &StatisticsHandler{
		service: service,
		logger:  logger.With().Str("component", "statistics_handler").Logger(),
	}
}

// Register binds the statistics routes.
func (h *StatisticsHandler) Register(router fiber.Router) {
	staff := middleware.RequireRole(staffRoles...)

	router.Get("/assessments/:id/statistics", staff, h.assessment)
	router.Get("/instructors/:id/statistics", staff, h.instructor)
}

func (h *StatisticsHandler) assessment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assessment id")
	}

	stats, err := h.service.AssessmentStatistics(withRequestContext(c), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to compute statistics")
	}

	return utils.SendSuccess(c, "assessment statistics", stats)
}

func (h *StatisticsHandler) instructor(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid instructor id")
	}

	stats, err := h.service.InstructorStatistics(withRequestContext(c), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to compute statistics")
	}

	return utils.SendSuccess(c, "instructor statistics", stats)
}
