package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

const maskedValue = "***"

// metadata keys containing any of these fragments are masked before storage.
var sensitiveMetadataKeys = []string{"email", "token", "password"}

// ActivityEntry is one audit event produced by the grading workflow.
type ActivityEntry struct {
	ActorID    uint
	ActorRole  string
	Action     string
	EntityType string
	EntityID   *uint
	Metadata   map[string]interface{}
}

// ActivityRecorder stores audit events.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error)
}

// ActivityService records and lists the grading audit trail.
type ActivityService interface {
	ActivityRecorder
	List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error)
}

type activityService struct {
	repo   repository.ActivityLogRepository
	logger zerolog.Logger
}

// NewActivityService builds the audit trail service.
func NewActivityService(repo repository.ActivityLogRepository, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:   repo,
		logger: logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	action := strings.ToLower(strings.TrimSpace(entry.Action))
	entityType := strings.ToLower(strings.TrimSpace(entry.EntityType))
	switch {
	case action == "":
		return dto.ActivityResponse{}, fmt.Errorf("%w: action is required", ErrValidation)
	case entityType == "":
		return dto.ActivityResponse{}, fmt.Errorf("%w: entity type is required", ErrValidation)
	}

	log := models.ActivityLog{
		ActorID:    entry.ActorID,
		ActorRole:  normalizeRole(entry.ActorRole),
		Action:     action,
		EntityType: entityType,
		EntityID:   entry.EntityID,
		Metadata:   maskMetadata(entry.Metadata),
	}
	if err := s.repo.Create(ctx, &log); err != nil {
		return dto.ActivityResponse{}, fmt.Errorf("store activity %s: %w", action, err)
	}

	return dto.NewActivityResponse(log), nil
}

func (s *activityService) List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error) {
	filter := repository.ActivityLogFilter{
		Page:       req.Page,
		PageSize:   req.PageSize,
		Action:     strings.TrimSpace(req.Action),
		EntityType: strings.TrimSpace(req.EntityType),
	}
	if req.ActorID != 0 {
		filter.ActorID = &req.ActorID
	}
	if req.EntityID != 0 {
		filter.EntityID = &req.EntityID
	}

	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.ActivityListResponse{}, err
	}

	items := make([]dto.ActivityResponse, len(logs))
	for i, log := range logs {
		items[i] = dto.NewActivityResponse(log)
	}

	return dto.ActivityListResponse{
		Items:      items,
		Pagination: paginate(req.Page, req.PageSize, total),
	}, nil
}

// paginate describes the requested page. An unbounded page counts as a single page.
func paginate(page, size int, total int64) dto.PaginationMeta {
	meta := dto.PaginationMeta{Page: max(page, 1), PageSize: size, TotalItems: total, TotalPages: 1}
	if size > 0 {
		meta.TotalPages = int((total + int64(size) - 1) / int64(size))
	}
	return meta
}

// recordActivity writes an audit entry and only logs a failure.
func recordActivity(ctx context.Context, recorder ActivityRecorder, logger zerolog.Logger, entry ActivityEntry) {
	if recorder == nil {
		return
	}
	if _, err := recorder.Record(ctx, entry); err != nil {
		logger.Warn().Err(err).Str("action", entry.Action).Msg("failed to record activity")
	}
}

func maskMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	masked := make(datatypes.JSONMap, len(metadata))
	for key, value := range metadata {
		if sensitiveKey(key) {
			value = maskedValue
		}
		masked[key] = value
	}
	return masked
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveMetadataKeys {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
