package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edplatform/grading-service/internal/cache"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	// Cache reads bypass the cache inside a transaction to avoid stale rows
	if tx != nil {
		var attempt models.QuizAttempt
		if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
			return nil, err
		}
		return &attempt, nil
	}

	cacheKey := fmt.Sprintf("attempt:%d", id)
	var attempt models.QuizAttempt

	err := a.cacheManager.Fast.CacheOrExecute(ctx, cacheKey, &attempt, cache.FastCacheConfig.TTL, func() (interface{}, error) {
		var dbAttempt models.QuizAttempt
		if err := db.WithContext(ctx).First(&dbAttempt, id).Error; err != nil {
			return nil, err
		}
		return &dbAttempt, nil
	})

	return &attempt, err
}

func (a *AttemptPostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).
		Preload("Quiz").
		Preload("Student").
		Preload("Answers").
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(attempt).Error; err != nil {
		return err
	}
	cache.InvalidateAttemptCache(ctx, a.cacheManager, attempt.ID)
	return nil
}

func (a *AttemptPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.QuizAttempt{}, id).Error; err != nil {
		return err
	}
	cache.InvalidateAttemptCache(ctx, a.cacheManager, id)
	return nil
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.QuizAttempt
	var total int64

	query := db.WithContext(ctx).Model(&models.QuizAttempt{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Quiz").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	filters.StudentID = &studentID
	return a.List(ctx, tx, filters)
}

func (a *AttemptPostgreSQL) GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	filters.QuizID = &quizID
	return a.List(ctx, tx, filters)
}

func (a *AttemptPostgreSQL) GetByStudentAndQuiz(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) ([]*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempts []*models.QuizAttempt
	if err := db.WithContext(ctx).
		Where("student_id = ? AND quiz_id = ?", studentID, quizID).
		Order("attempt_number ASC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempts by student and quiz: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).
		Where("student_id = ? AND quiz_id = ? AND status = ?", studentID, quizID, models.AttemptInProgress).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) HasActiveAttempt(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (bool, error) {
	db := a.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("student_id = ? AND quiz_id = ? AND status = ?", studentID, quizID, models.AttemptInProgress).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetExpiredAttempts finds in-progress attempts on time-limited quizzes
// whose deadline passed before the given instant.
func (a *AttemptPostgreSQL) GetExpiredAttempts(ctx context.Context, tx *gorm.DB, now time.Time) ([]*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempts []*models.QuizAttempt
	if err := db.WithContext(ctx).
		Joins("JOIN quizzes ON quizzes.id = quiz_attempts.quiz_id").
		Where("quiz_attempts.status = ?", models.AttemptInProgress).
		Where("quizzes.time_limit_minutes IS NOT NULL").
		Where("quiz_attempts.started_at IS NOT NULL").
		Where("quiz_attempts.started_at + make_interval(mins => quizzes.time_limit_minutes) < ?", now).
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get expired attempts: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) GetAttemptCount(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (int, error) {
	db := a.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("student_id = ? AND quiz_id = ?", studentID, quizID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (a *AttemptPostgreSQL) GetNextAttemptNumber(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (int, error) {
	db := a.getDB(tx)
	var highest int64
	if err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("student_id = ? AND quiz_id = ?", studentID, quizID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&highest).Error; err != nil {
		return 0, err
	}
	return int(highest) + 1, nil
}

func (a *AttemptPostgreSQL) GetQuizAttemptStats(ctx context.Context, tx *gorm.DB, quizID uint) (*repositories.AttemptStats, error) {
	db := a.getDB(tx)

	stats := &repositories.AttemptStats{StatusBreakdown: make(map[models.AttemptStatus]int)}

	var rows []struct {
		Status models.AttemptStatus
		Count  int
	}
	if err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ?", quizID).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	finished := 0
	for _, row := range rows {
		stats.TotalAttempts += row.Count
		stats.StatusBreakdown[row.Status] = row.Count
		if row.Status != models.AttemptInProgress {
			finished += row.Count
		}
	}

	var aggregates struct {
		AverageScore float64
		AverageTime  float64
		PassedCount  int64
	}
	if err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ? AND status <> ?", quizID, models.AttemptInProgress).
		Select("COALESCE(AVG(score), 0) as average_score, COALESCE(AVG(time_taken_minutes), 0) as average_time, COUNT(*) FILTER (WHERE passed) as passed_count").
		Scan(&aggregates).Error; err != nil {
		return nil, err
	}

	stats.AverageScore = aggregates.AverageScore
	stats.AverageTimeTaken = int(aggregates.AverageTime)
	if stats.TotalAttempts > 0 {
		stats.PassRate = float64(aggregates.PassedCount) / float64(stats.TotalAttempts)
		stats.CompletionRate = float64(finished) / float64(stats.TotalAttempts)
	}

	return stats, nil
}

// ===== ANSWER =====

type AnswerPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewAnswerPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AnswerRepository {
	return &AnswerPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AnswerPostgreSQL) Create(ctx context.Context, tx *gorm.DB, answer *models.QuizAnswer) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(answer).Error
}

func (a *AnswerPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAnswer, error) {
	db := a.getDB(tx)
	var answer models.QuizAnswer
	if err := db.WithContext(ctx).First(&answer, id).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAnswer, error) {
	db := a.getDB(tx)
	var answer models.QuizAnswer
	if err := db.WithContext(ctx).
		Preload("Question").
		Preload("Question.Options").
		First(&answer, id).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) Update(ctx context.Context, tx *gorm.DB, answer *models.QuizAnswer) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(answer).Error; err != nil {
		return err
	}
	cache.InvalidateAttemptCache(ctx, a.cacheManager, answer.AttemptID)
	return nil
}

func (a *AnswerPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Delete(&models.QuizAnswer{}, id).Error
}

func (a *AnswerPostgreSQL) UpsertAnswer(ctx context.Context, tx *gorm.DB, answer *models.QuizAnswer) error {
	db := a.getDB(tx)

	var existing models.QuizAnswer
	err := db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", answer.AttemptID, answer.QuestionID).
		First(&existing).Error
	if err == nil {
		answer.ID = existing.ID
		answer.CreatedAt = existing.CreatedAt
		return a.Update(ctx, tx, answer)
	}
	if !repositories.IsNotFoundError(err) {
		return err
	}
	return a.Create(ctx, tx, answer)
}

func (a *AnswerPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.QuizAnswer, error) {
	db := a.getDB(tx)
	var answers []*models.QuizAnswer
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to get answers by attempt: %w", err)
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.QuizAnswer, error) {
	db := a.getDB(tx)
	var answer models.QuizAnswer
	if err := db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) UpdateGrade(ctx context.Context, tx *gorm.DB, id uint, points decimal.Decimal, isCorrect *bool, feedback *string, graderID *string) error {
	db := a.getDB(tx)

	answer, err := a.GetByID(ctx, tx, id)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"points_earned":       points,
		"is_correct":          isCorrect,
		"instructor_feedback": feedback,
		"graded_by":           graderID,
		"graded_at":           time.Now(),
		"auto_graded":         false,
	}
	if err := db.WithContext(ctx).
		Model(&models.QuizAnswer{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return err
	}

	cache.InvalidateAttemptCache(ctx, a.cacheManager, answer.AttemptID)
	return nil
}

func (a *AnswerPostgreSQL) GetPendingManual(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.QuizAnswer, error) {
	db := a.getDB(tx)
	var answers []*models.QuizAnswer
	if err := db.WithContext(ctx).
		Where("attempt_id = ? AND auto_graded = ? AND points_earned IS NULL", attemptID, false).
		Order("id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to get pending answers: %w", err)
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) HasPendingManual(ctx context.Context, tx *gorm.DB, attemptID uint) (bool, error) {
	db := a.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.QuizAnswer{}).
		Where("attempt_id = ? AND auto_graded = ? AND points_earned IS NULL", attemptID, false).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (a *AnswerPostgreSQL) GetGradingStats(ctx context.Context, tx *gorm.DB, quizID uint) (*repositories.GradingStats, error) {
	db := a.getDB(tx)

	var stats repositories.GradingStats
	if err := db.WithContext(ctx).
		Model(&models.QuizAnswer{}).
		Joins("JOIN quiz_attempts ON quiz_attempts.id = quiz_answers.attempt_id").
		Where("quiz_attempts.quiz_id = ?", quizID).
		Select(
			"COUNT(*) as total_answers, " +
				"COUNT(*) FILTER (WHERE quiz_answers.points_earned IS NOT NULL) as graded_answers, " +
				"COUNT(*) FILTER (WHERE quiz_answers.points_earned IS NULL) as pending_answers, " +
				"COUNT(*) FILTER (WHERE quiz_answers.points_earned IS NOT NULL AND quiz_answers.auto_graded) as auto_graded, " +
				"COUNT(*) FILTER (WHERE quiz_answers.points_earned IS NOT NULL AND NOT quiz_answers.auto_graded) as manual_graded").
		Scan(&stats).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}
