package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/edplatform/grading-service/internal/cache"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/edplatform/grading-service/internal/repositories/casdoor"
)

// PostgreSQLRepository implements the main Repository interface
type PostgreSQLRepository struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	quiz       repositories.QuizRepository
	question   repositories.QuestionRepository
	attempt    repositories.AttemptRepository
	answer     repositories.AnswerRepository
	assignment repositories.AssignmentRepository
	submission repositories.SubmissionRepository
	enrollment repositories.EnrollmentRepository
	course     repositories.CourseRepository
	review     repositories.ReviewRepository
	user       repositories.UserRepository
}

// RepositoryConfig holds configuration for repository initialization
type RepositoryConfig struct {
	DB            *gorm.DB
	RedisClient   *redis.Client
	CasdoorConfig casdoor.CasdoorConfig
}

// NewPostgreSQLRepository creates a new repository manager with all sub-repositories
func NewPostgreSQLRepository(config RepositoryConfig) repositories.Repository {
	repo := &PostgreSQLRepository{
		db:           config.DB,
		redisClient:  config.RedisClient,
		cacheManager: cache.NewCacheManager(config.RedisClient),
	}
	repo.bind(config.DB)

	// User identity lives in Casdoor, not Postgres
	repo.user = casdoor.NewUserCasdoor(config.CasdoorConfig, config.RedisClient)

	return repo
}

func (r *PostgreSQLRepository) bind(db *gorm.DB) {
	r.quiz = NewQuizPostgreSQL(db, r.redisClient)
	r.question = NewQuestionPostgreSQL(db, r.redisClient)
	r.attempt = NewAttemptPostgreSQL(db, r.redisClient)
	r.answer = NewAnswerPostgreSQL(db, r.redisClient)
	r.assignment = NewAssignmentPostgreSQL(db)
	r.submission = NewSubmissionPostgreSQL(db)
	r.enrollment = NewEnrollmentPostgreSQL(db)
	r.course = NewCoursePostgreSQL(db, r.redisClient)
	r.review = NewReviewPostgreSQL(db)
}

func (r *PostgreSQLRepository) Quiz() repositories.QuizRepository             { return r.quiz }
func (r *PostgreSQLRepository) Question() repositories.QuestionRepository    { return r.question }
func (r *PostgreSQLRepository) Attempt() repositories.AttemptRepository      { return r.attempt }
func (r *PostgreSQLRepository) Answer() repositories.AnswerRepository        { return r.answer }
func (r *PostgreSQLRepository) Assignment() repositories.AssignmentRepository { return r.assignment }
func (r *PostgreSQLRepository) Submission() repositories.SubmissionRepository { return r.submission }
func (r *PostgreSQLRepository) Enrollment() repositories.EnrollmentRepository { return r.enrollment }
func (r *PostgreSQLRepository) Course() repositories.CourseRepository        { return r.course }
func (r *PostgreSQLRepository) Review() repositories.ReviewRepository        { return r.review }
func (r *PostgreSQLRepository) User() repositories.UserRepository            { return r.user }

// WithTransaction executes a function within a database transaction
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &PostgreSQLRepository{
			db:           tx,
			redisClient:  r.redisClient,
			cacheManager: r.cacheManager,
		}
		txRepo.bind(tx)

		// User repository is external and does not participate in transactions
		txRepo.user = r.user

		return fn(txRepo)
	})
}

// Ping checks the health of database and cache connections
func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if r.redisClient != nil {
		if err := r.cacheManager.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache ping failed: %w", err)
		}
	}

	return nil
}

// Close closes all connections
func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			return fmt.Errorf("failed to close Redis: %w", err)
		}
	}

	return nil
}

// RepositoryManager implements the RepositoryManager interface
type RepositoryManager struct {
	config RepositoryConfig
	repo   repositories.Repository
}

// NewRepositoryManager creates a new repository manager
func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	return &RepositoryManager{
		config: config,
	}
}

// Initialize validates connections and constructs the repository
func (rm *RepositoryManager) Initialize() error {
	if rm.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}

	sqlDB, err := rm.config.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if rm.config.RedisClient != nil {
		if _, err := rm.config.RedisClient.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("Redis connection failed: %w", err)
		}
	}

	rm.repo = NewPostgreSQLRepository(rm.config)

	return nil
}

// GetRepository returns the repository instance
func (rm *RepositoryManager) GetRepository() repositories.Repository {
	return rm.repo
}

// HealthCheck checks the health of all repository connections
func (rm *RepositoryManager) HealthCheck(ctx context.Context) error {
	if rm.repo == nil {
		return fmt.Errorf("repository not initialized")
	}
	return rm.repo.Ping(ctx)
}

// Shutdown gracefully shuts down all repository connections
func (rm *RepositoryManager) Shutdown(ctx context.Context) error {
	if rm.repo == nil {
		return nil
	}
	return rm.repo.Close()
}
