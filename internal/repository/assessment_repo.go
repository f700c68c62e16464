package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// AssessmentRepository defines persistence operations for assessments and their questions.
type AssessmentRepository interface {
	Create(ctx context.Context, assessment *models.Assessment) error
	GetByID(ctx context.Context, id uint) (models.Assessment, error)
	GetForUpdate(ctx context.Context, id uint) (models.Assessment, error)
	ListByInstructor(ctx context.Context, instructorID uint) ([]models.Assessment, error)
	IncrementGradedCount(ctx context.Context, id uint, delta int) error
	WithTx(tx *gorm.DB) AssessmentRepository
}

type assessmentRepository struct {
	db *gorm.DB
}

// NewAssessmentRepository instantiates a GORM-backed repository.
func NewAssessmentRepository(db *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: db}
}

func (r *assessmentRepository) WithTx(tx *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: tx}
}

func (r *assessmentRepository) withQuestions(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Questions", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC").Order("id ASC")
	})
}

func (r *assessmentRepository) Create(ctx context.Context, assessment *models.Assessment) error {
	return r.db.WithContext(ctx).Create(assessment).Error
}

func (r *assessmentRepository) GetByID(ctx context.Context, id uint) (models.Assessment, error) {
	var assessment models.Assessment
	if err := r.withQuestions(ctx).First(&assessment, id).Error; err != nil {
		return models.Assessment{}, err
	}

	return assessment, nil
}

func (r *assessmentRepository) GetForUpdate(ctx context.Context, id uint) (models.Assessment, error) {
	var assessment models.Assessment
	if err := forUpdate(r.withQuestions(ctx)).First(&assessment, id).Error; err != nil {
		return models.Assessment{}, err
	}

	return assessment, nil
}

func (r *assessmentRepository) ListByInstructor(ctx context.Context, instructorID uint) ([]models.Assessment, error) {
	var assessments []models.Assessment
	if err := r.db.WithContext(ctx).
		Where("instructor_id = ?", instructorID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&assessments).Error; err != nil {
		return nil, err
	}

	return assessments, nil
}

func (r *assessmentRepository) IncrementGradedCount(ctx context.Context, id uint, delta int) error {
	if delta == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&models.Assessment{}).
		Where("id = ?", id).
		UpdateColumn("graded_count", gorm.Expr("graded_count + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
