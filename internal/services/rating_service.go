package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edplatform/grading-service/internal/events"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/edplatform/grading-service/internal/validator"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ratingService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	clock     Clock
	publisher events.EventPublisher
}

func NewRatingService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, clock Clock, publisher events.EventPublisher) RatingService {
	if clock == nil {
		clock = SystemClock()
	}
	return &ratingService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		clock:     clock,
		publisher: publisher,
	}
}

// ===== REVIEWS =====

// SubmitReview stores a course review and folds the rating into the
// course aggregate incrementally, without rescanning existing reviews.
func (s *ratingService) SubmitReview(ctx context.Context, req *SubmitReviewRequest, studentID string) (*CourseRatingResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	s.logger.Info("Submitting course review",
		"course_id", req.CourseID,
		"student_id", studentID,
		"rating", req.Rating)

	// Only enrolled students may review.
	if _, err := s.repo.Enrollment().GetByCourseAndStudent(ctx, s.db, req.CourseID, studentID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	exists, err := s.repo.Review().ExistsByCourseAndStudent(ctx, s.db, req.CourseID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing review: %w", err)
	}
	if exists {
		return nil, ErrReviewAlreadyExists
	}

	course, err := s.getCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}

	var newRating decimal.Decimal
	newTotal := course.TotalRatings + 1

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		review := &models.CourseReview{
			CourseID:   req.CourseID,
			StudentID:  studentID,
			Rating:     req.Rating,
			ReviewText: req.ReviewText,
		}
		if err := txRepo.Review().Create(ctx, nil, review); err != nil {
			return fmt.Errorf("failed to create review: %w", err)
		}

		newRating = foldRating(course.Rating, course.TotalRatings, req.Rating)
		if err := txRepo.Course().UpdateRating(ctx, nil, course.ID, newRating, newTotal); err != nil {
			return fmt.Errorf("failed to update course rating: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit review: %w", err)
	}

	s.logger.Info("Course review submitted",
		"course_id", course.ID,
		"rating", newRating.String(),
		"total_ratings", newTotal)

	return &CourseRatingResponse{
		CourseID:     course.ID,
		Rating:       &newRating,
		TotalRatings: newTotal,
	}, nil
}

func (s *ratingService) GetCourseRating(ctx context.Context, courseID uint) (*CourseRatingResponse, error) {
	course, err := s.getCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	return &CourseRatingResponse{
		CourseID:     course.ID,
		Rating:       course.Rating,
		TotalRatings: course.TotalRatings,
	}, nil
}

// ===== HELPER FUNCTIONS =====

func (s *ratingService) getCourse(ctx context.Context, id uint) (*models.Course, error) {
	course, err := s.repo.Course().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return course, nil
}

// foldRating computes the running average after one more rating,
// rounded half-up to two places.
func foldRating(current *decimal.Decimal, count, rating int) decimal.Decimal {
	next := decimal.NewFromInt(int64(rating))
	if current == nil || count <= 0 {
		return next.Round(2)
	}
	sum := current.Mul(decimal.NewFromInt(int64(count))).Add(next)
	return sum.DivRound(decimal.NewFromInt(int64(count)+1), 2)
}
