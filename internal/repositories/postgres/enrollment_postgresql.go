package postgres

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edplatform/grading-service/internal/cache"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
)

type EnrollmentPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewEnrollmentPostgreSQL(db *gorm.DB) repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (e *EnrollmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}

func (e *EnrollmentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	db := e.getDB(tx)
	return db.WithContext(ctx).Create(enrollment).Error
}

func (e *EnrollmentPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Enrollment, error) {
	db := e.getDB(tx)
	var enrollment models.Enrollment
	if err := db.WithContext(ctx).First(&enrollment, id).Error; err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (e *EnrollmentPostgreSQL) GetByIDWithCourse(ctx context.Context, tx *gorm.DB, id uint) (*models.Enrollment, error) {
	db := e.getDB(tx)
	var enrollment models.Enrollment
	if err := db.WithContext(ctx).
		Preload("Course").
		First(&enrollment, id).Error; err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (e *EnrollmentPostgreSQL) Update(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	db := e.getDB(tx)
	return db.WithContext(ctx).Save(enrollment).Error
}

func (e *EnrollmentPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := e.getDB(tx)
	return db.WithContext(ctx).Delete(&models.Enrollment{}, id).Error
}

func (e *EnrollmentPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.EnrollmentFilters) ([]*models.Enrollment, int64, error) {
	db := e.getDB(tx)
	var enrollments []*models.Enrollment
	var total int64

	query := db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("student_id = ?", studentID)
	query = e.helpers.ApplyEnrollmentFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = e.helpers.ApplyPaginationAndSort(query, "", "", filters.Limit, filters.Offset)

	if err := query.Preload("Course").Find(&enrollments).Error; err != nil {
		return nil, 0, err
	}

	return enrollments, total, nil
}

func (e *EnrollmentPostgreSQL) GetByCourseAndStudent(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) (*models.Enrollment, error) {
	db := e.getDB(tx)
	var enrollment models.Enrollment
	if err := db.WithContext(ctx).
		Where("course_id = ? AND student_id = ?", courseID, studentID).
		First(&enrollment).Error; err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ===== COURSE =====

type CoursePostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewCoursePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.CourseRepository {
	return &CoursePostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (c *CoursePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

func (c *CoursePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	db := c.getDB(tx)
	var course models.Course
	if err := db.WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (c *CoursePostgreSQL) Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := c.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Course{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateRating writes the running aggregate in one statement.
func (c *CoursePostgreSQL) UpdateRating(ctx context.Context, tx *gorm.DB, id uint, rating decimal.Decimal, totalRatings int) error {
	db := c.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.Course{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"rating":        rating,
			"total_ratings": totalRatings,
		}).Error; err != nil {
		return err
	}
	cache.InvalidateRatingCache(ctx, c.cacheManager, id)
	return nil
}

// ===== REVIEW =====

type ReviewPostgreSQL struct {
	db *gorm.DB
}

func NewReviewPostgreSQL(db *gorm.DB) repositories.ReviewRepository {
	return &ReviewPostgreSQL{db: db}
}

func (r *ReviewPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *ReviewPostgreSQL) Create(ctx context.Context, tx *gorm.DB, review *models.CourseReview) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Create(review).Error
}

func (r *ReviewPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.CourseReview, error) {
	db := r.getDB(tx)
	var review models.CourseReview
	if err := db.WithContext(ctx).First(&review, id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *ReviewPostgreSQL) GetByCourseAndStudent(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) (*models.CourseReview, error) {
	db := r.getDB(tx)
	var review models.CourseReview
	if err := db.WithContext(ctx).
		Where("course_id = ? AND student_id = ?", courseID, studentID).
		First(&review).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *ReviewPostgreSQL) ExistsByCourseAndStudent(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) (bool, error) {
	db := r.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.CourseReview{}).
		Where("course_id = ? AND student_id = ?", courseID, studentID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ReviewPostgreSQL) CountByCourse(ctx context.Context, tx *gorm.DB, courseID uint) (int64, error) {
	db := r.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.CourseReview{}).
		Where("course_id = ?", courseID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
