package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// CourseRepository answers ownership questions about courses.
type CourseRepository interface {
	IsInstructor(ctx context.Context, courseID, userID uint) (bool, error)
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository constructs the course lookup repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) IsInstructor(ctx context.Context, courseID, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Course{}).
		Where("id = ?", courseID).
		Where("instructor_id = ?", userID).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}
