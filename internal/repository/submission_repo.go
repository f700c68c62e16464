package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	AssessmentID *uint
	StudentID    *uint
	Status       *models.SubmissionStatus
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetForUpdate(ctx context.Context, id uint) (models.Submission, error)
	ListForGrading(ctx context.Context, assessmentID uint, ids []uint) ([]models.Submission, error)
	ListByAssessments(ctx context.Context, assessmentIDs []uint) ([]models.Submission, error)
	CountAttempts(ctx context.Context, assessmentID, studentID uint) (int64, error)
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	ReplaceAnswers(ctx context.Context, submissionID uint, answers []models.Answer) error
	CreateHistory(ctx context.Context, history *models.SubmissionGradeHistory) error
	WithTx(tx *gorm.DB) SubmissionRepository
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) WithTx(tx *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: tx}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assessment").
		Preload("Student")
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.AssessmentID != nil {
		query = query.Where("assessment_id = ?", *filter.AssessmentID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var submissions []models.Submission
	if err := query.Order("submitted_at DESC").Order("id DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Preload("Answers").
		Preload("History", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("graded_at DESC")
		}).
		First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetForUpdate(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := forUpdate(r.baseQuery(ctx)).Preload("Answers").First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListForGrading(ctx context.Context, assessmentID uint, ids []uint) ([]models.Submission, error) {
	if len(ids) == 0 {
		return []models.Submission{}, nil
	}

	var submissions []models.Submission
	if err := forUpdate(r.db.WithContext(ctx).Preload("Student")).
		Where("assessment_id = ?", assessmentID).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) ListByAssessments(ctx context.Context, assessmentIDs []uint) ([]models.Submission, error) {
	if len(assessmentIDs) == 0 {
		return []models.Submission{}, nil
	}

	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Student").
		Where("assessment_id IN ?", assessmentIDs).
		Order("assessment_id ASC").
		Order("submitted_at ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) CountAttempts(ctx context.Context, assessmentID, studentID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("assessment_id = ?", assessmentID).
		Where("student_id = ?", studentID).
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Omit("Assessment", "Student", "History").Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(submission).Error
}

func (r *submissionRepository) ReplaceAnswers(ctx context.Context, submissionID uint, answers []models.Answer) error {
	if err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).Delete(&models.Answer{}).Error; err != nil {
		return err
	}
	if len(answers) == 0 {
		return nil
	}

	for i := range answers {
		answers[i].ID = 0
		answers[i].SubmissionID = submissionID
	}
	return r.db.WithContext(ctx).Create(&answers).Error
}

func (r *submissionRepository) CreateHistory(ctx context.Context, history *models.SubmissionGradeHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}
