package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/edplatform/grading-service/internal/cache"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
)

type QuizPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuizPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuizRepository {
	return &QuizPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuizPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

func (q *QuizPostgreSQL) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Create(quiz).Error
}

func (q *QuizPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var quiz models.Quiz

	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cacheKey, &quiz, cache.QuizCacheConfig.TTL, func() (interface{}, error) {
		var dbQuiz models.Quiz
		if err := db.WithContext(ctx).First(&dbQuiz, id).Error; err != nil {
			return nil, err
		}
		return &dbQuiz, nil
	})

	return &quiz, err
}

// GetByIDWithQuestions loads the quiz together with its questions and
// their options. The result backs scoring, so it is cached briefly.
func (q *QuizPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("questions:%d", id)
	var quiz models.Quiz

	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cacheKey, &quiz, cache.QuizCacheConfig.TTL, func() (interface{}, error) {
		var dbQuiz models.Quiz
		if err := db.WithContext(ctx).
			Preload("Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order("questions.\"order\" ASC")
			}).
			Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
				return db.Order("question_options.\"order\" ASC")
			}).
			First(&dbQuiz, id).Error; err != nil {
			return nil, err
		}
		return &dbQuiz, nil
	})

	return &quiz, err
}

func (q *QuizPostgreSQL) Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Save(quiz).Error; err != nil {
		return err
	}
	cache.InvalidateQuizCache(ctx, q.cacheManager, quiz.ID)
	return nil
}

func (q *QuizPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Quiz{}, id).Error; err != nil {
		return err
	}
	cache.InvalidateQuizCache(ctx, q.cacheManager, id)
	return nil
}

func (q *QuizPostgreSQL) GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Quiz, error) {
	db := q.getDB(tx)
	var quizzes []*models.Quiz
	if err := db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at ASC").
		Find(&quizzes).Error; err != nil {
		return nil, fmt.Errorf("failed to get quizzes by course: %w", err)
	}
	return quizzes, nil
}

func (q *QuizPostgreSQL) Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := q.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Quiz{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ===== QUESTION =====

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Create(question).Error; err != nil {
		return err
	}
	cache.InvalidateQuizCache(ctx, q.cacheManager, question.QuizID)
	return nil
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := q.getDB(tx)
	var question models.Question
	if err := db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_options.\"order\" ASC")
		}).
		First(&question, id).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Save(question).Error; err != nil {
		return err
	}
	cache.InvalidateQuizCache(ctx, q.cacheManager, question.QuizID)
	return nil
}

func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)
	question, err := q.GetByID(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).Delete(&models.Question{}, id).Error; err != nil {
		return err
	}
	cache.InvalidateQuizCache(ctx, q.cacheManager, question.QuizID)
	return nil
}

func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	db := q.getDB(tx)
	var questions []*models.Question
	if len(ids) == 0 {
		return questions, nil
	}
	if err := db.WithContext(ctx).
		Preload("Options").
		Where("id IN ?", ids).
		Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.Question, error) {
	db := q.getDB(tx)
	var questions []*models.Question
	if err := db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_options.\"order\" ASC")
		}).
		Where("quiz_id = ?", quizID).
		Order("\"order\" ASC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by quiz: %w", err)
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) CountByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) (int, error) {
	db := q.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Question{}).
		Where("quiz_id = ?", quizID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (q *QuestionPostgreSQL) SumPointsByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) (int, error) {
	db := q.getDB(tx)
	var total int64
	if err := db.WithContext(ctx).
		Model(&models.Question{}).
		Where("quiz_id = ?", quizID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}
