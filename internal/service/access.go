package service

import (
	"context"
	"strings"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

// Roles recognised in access tokens.
const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
	RoleTeacher    = "teacher"
	RoleStudent    = "student"
)

// Actor identifies the authenticated caller of a use case.
type Actor struct {
	ID   uint
	Role string
}

// IsAdmin reports whether the actor has the administrator role.
func (a Actor) IsAdmin() bool {
	return normalizeRole(a.Role) == RoleAdmin
}

// IsStaff reports whether the actor may author or grade assessments.
func (a Actor) IsStaff() bool {
	switch normalizeRole(a.Role) {
	case RoleAdmin, RoleInstructor, RoleTeacher:
		return true
	}
	return false
}

// assessmentAccess decides who may manage an assessment: its instructor, the instructor
// of its course, or an administrator.
type assessmentAccess struct {
	courses repository.CourseRepository
}

func (a assessmentAccess) canManage(ctx context.Context, assessment models.Assessment, actor Actor) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	if actor.ID == 0 || !actor.IsStaff() {
		return false, nil
	}
	if assessment.InstructorID == actor.ID {
		return true, nil
	}
	if a.courses == nil {
		return false, nil
	}
	return a.courses.IsInstructor(ctx, assessment.CourseID, actor.ID)
}

func (a assessmentAccess) authorize(ctx context.Context, assessment models.Assessment, actor Actor) error {
	allowed, err := a.canManage(ctx, assessment, actor)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return "system"
	}
	return r
}
