package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// Migrate creates or updates the tables used by the grading engine.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Student{},
		&models.Course{},
		&models.Assessment{},
		&models.Question{},
		&models.Submission{},
		&models.Answer{},
		&models.SubmissionGradeHistory{},
		&models.Notification{},
		&models.NotificationOutbox{},
		&models.ActivityLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
