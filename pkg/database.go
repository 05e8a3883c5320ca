package pkg

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/edplatform/grading-service/internal/config"
	"github.com/edplatform/grading-service/internal/models"
)

// InitDatabase opens the Postgres connection and migrates the schema.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if cfg.Environment == "production" {
		logLevel = gormlogger.Error
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := migrateSchema(db); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

func migrateSchema(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Course{},
		&models.Enrollment{},
		&models.Quiz{},
		&models.Question{},
		&models.QuestionOption{},
		&models.QuizAttempt{},
		&models.QuizAnswer{},
		&models.Assignment{},
		&models.AssignmentSubmission{},
		&models.CourseReview{},
	)
}
