package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
)

type AssignmentPostgreSQL struct {
	db *gorm.DB
}

func NewAssignmentPostgreSQL(db *gorm.DB) repositories.AssignmentRepository {
	return &AssignmentPostgreSQL{db: db}
}

func (a *AssignmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AssignmentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, assignment *models.Assignment) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(assignment).Error
}

func (a *AssignmentPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assignment, error) {
	db := a.getDB(tx)
	var assignment models.Assignment
	if err := db.WithContext(ctx).First(&assignment, id).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (a *AssignmentPostgreSQL) Update(ctx context.Context, tx *gorm.DB, assignment *models.Assignment) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Save(assignment).Error
}

func (a *AssignmentPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Delete(&models.Assignment{}, id).Error
}

func (a *AssignmentPostgreSQL) GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Assignment, error) {
	db := a.getDB(tx)
	var assignments []*models.Assignment
	if err := db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at ASC").
		Find(&assignments).Error; err != nil {
		return nil, fmt.Errorf("failed to get assignments by course: %w", err)
	}
	return assignments, nil
}

func (a *AssignmentPostgreSQL) Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := a.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ===== SUBMISSION =====

type SubmissionPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewSubmissionPostgreSQL(db *gorm.DB) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (s *SubmissionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *SubmissionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Create(submission).Error
}

func (s *SubmissionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssignmentSubmission, error) {
	db := s.getDB(tx)
	var submission models.AssignmentSubmission
	if err := db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.AssignmentSubmission, error) {
	db := s.getDB(tx)
	var submission models.AssignmentSubmission
	if err := db.WithContext(ctx).
		Preload("Assignment").
		Preload("Student").
		First(&submission, id).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Save(submission).Error
}

func (s *SubmissionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Delete(&models.AssignmentSubmission{}, id).Error
}

func (s *SubmissionPostgreSQL) list(ctx context.Context, db *gorm.DB, filters repositories.SubmissionFilters) ([]*models.AssignmentSubmission, int64, error) {
	var submissions []*models.AssignmentSubmission
	var total int64

	query := db.WithContext(ctx).Model(&models.AssignmentSubmission{})
	query = s.helpers.ApplySubmissionFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = s.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Assignment").Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (s *SubmissionPostgreSQL) GetByAssignment(ctx context.Context, tx *gorm.DB, assignmentID uint, filters repositories.SubmissionFilters) ([]*models.AssignmentSubmission, int64, error) {
	filters.AssignmentID = &assignmentID
	return s.list(ctx, s.getDB(tx), filters)
}

func (s *SubmissionPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.SubmissionFilters) ([]*models.AssignmentSubmission, int64, error) {
	filters.StudentID = &studentID
	return s.list(ctx, s.getDB(tx), filters)
}

func (s *SubmissionPostgreSQL) GetByAssignmentAndStudent(ctx context.Context, tx *gorm.DB, assignmentID uint, studentID string) ([]*models.AssignmentSubmission, error) {
	db := s.getDB(tx)
	var submissions []*models.AssignmentSubmission
	if err := db.WithContext(ctx).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		Order("attempt_number ASC").
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to get submissions by assignment and student: %w", err)
	}
	return submissions, nil
}

func (s *SubmissionPostgreSQL) CountByAssignmentAndStudent(ctx context.Context, tx *gorm.DB, assignmentID uint, studentID string) (int, error) {
	db := s.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.AssignmentSubmission{}).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *SubmissionPostgreSQL) GetNeedingGrading(ctx context.Context, tx *gorm.DB, assignmentID uint) ([]*models.AssignmentSubmission, error) {
	db := s.getDB(tx)
	var submissions []*models.AssignmentSubmission
	if err := db.WithContext(ctx).
		Where("assignment_id = ? AND needs_grading = ?", assignmentID, true).
		Order("submission_date ASC").
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to get submissions needing grading: %w", err)
	}
	return submissions, nil
}

func (s *SubmissionPostgreSQL) GetAssignmentSubmissionStats(ctx context.Context, tx *gorm.DB, assignmentID uint) (*repositories.SubmissionStats, error) {
	db := s.getDB(tx)

	var stats repositories.SubmissionStats
	if err := db.WithContext(ctx).
		Model(&models.AssignmentSubmission{}).
		Where("assignment_id = ?", assignmentID).
		Select(
			"COUNT(*) as total_submissions, " +
				"COUNT(*) FILTER (WHERE grade IS NOT NULL) as graded_submissions, " +
				"COUNT(*) FILTER (WHERE is_late) as late_submissions, " +
				"COALESCE(AVG(grade), 0) as average_grade").
		Scan(&stats).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}
