package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edplatform/grading-service/internal/config"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/edplatform/grading-service/internal/services"
	"github.com/edplatform/grading-service/internal/validator"
)

type HandlerManager struct {
	attemptHandler    *AttemptHandler
	gradingHandler    *GradingHandler
	submissionHandler *SubmissionHandler
	enrollmentHandler *EnrollmentHandler
	ratingHandler     *RatingHandler
	gradebookHandler  *GradebookHandler
	userHandler       *UserHandler
	authMiddleware    *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger *slog.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler:    NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		gradingHandler:    NewGradingHandler(serviceManager.Grading(), validator, logger),
		submissionHandler: NewSubmissionHandler(serviceManager.Submission(), validator, logger),
		enrollmentHandler: NewEnrollmentHandler(serviceManager.Enrollment(), validator, logger),
		ratingHandler:     NewRatingHandler(serviceManager.Rating(), logger),
		gradebookHandler:  NewGradebookHandler(serviceManager.Gradebook(), logger),
		userHandler:       NewUserHandler(userRepo, logger),
		authMiddleware:    NewCasdoorAuthMiddleware(casdoorConfig, userRepo),
	}
}

// SetupRoutes registers all API routes on the router.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	grader := hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Quiz attempt lifecycle
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.POST("/complete", hm.attemptHandler.CompleteAttempt)
			attempts.GET("", hm.attemptHandler.ListMyAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.GET("/:id/details", hm.attemptHandler.GetAttemptWithDetails)
			attempts.POST("/:id/resume", hm.attemptHandler.ResumeAttempt)
			attempts.POST("/:id/answer", hm.attemptHandler.RecordAnswer)
			attempts.POST("/:id/abandon", hm.attemptHandler.AbandonAttempt)
			attempts.GET("/:id/time-remaining", hm.attemptHandler.GetTimeRemaining)

			// Quiz-scoped routes
			attempts.GET("/current/:quiz_id", hm.attemptHandler.GetCurrentAttempt)
			attempts.GET("/can-start/:quiz_id", hm.attemptHandler.CanStart)
			attempts.GET("/count/:quiz_id", hm.attemptHandler.GetAttemptCount)
			attempts.GET("/quiz/:quiz_id", grader, hm.attemptHandler.GetAttemptsByQuiz)
			attempts.GET("/stats/:quiz_id", grader, hm.attemptHandler.GetQuizStats)
		}

		// Manual grading and regrading
		grading := v1.Group("/grading")
		grading.Use(grader)
		{
			grading.POST("/answers/:answer_id", hm.gradingHandler.GradeAnswer)
			grading.GET("/attempts/:attempt_id/pending", hm.gradingHandler.GetPendingAnswers)
			grading.POST("/attempts/:attempt_id/finalize", hm.gradingHandler.FinalizeAttempt)
			grading.POST("/attempts/:attempt_id/regrade", hm.gradingHandler.RegradeAttempt)
			grading.POST("/quizzes/:quiz_id/regrade", hm.gradingHandler.RegradeQuiz)
		}

		// Assignment submissions
		submissions := v1.Group("/submissions")
		{
			submissions.POST("", hm.submissionHandler.Submit)
			submissions.GET("", hm.submissionHandler.ListMySubmissions)
			submissions.GET("/:id", hm.submissionHandler.GetSubmission)
			submissions.GET("/assignment/:assignment_id", grader, hm.submissionHandler.GetByAssignment)
			submissions.POST("/:id/grade", grader, hm.submissionHandler.Grade)
			submissions.POST("/:id/regrade", grader, hm.submissionHandler.Regrade)
			submissions.POST("/:id/return", grader, hm.submissionHandler.ReturnToStudent)
		}

		// Enrollment progress and certificates
		enrollments := v1.Group("/enrollments")
		{
			enrollments.GET("", hm.enrollmentHandler.ListMyEnrollments)
			enrollments.GET("/:id", hm.enrollmentHandler.GetEnrollment)
			enrollments.PUT("/:id/progress", hm.enrollmentHandler.UpdateProgress)
			enrollments.POST("/:id/access", hm.enrollmentHandler.RecordAccess)
			enrollments.POST("/:id/certificate", grader, hm.enrollmentHandler.IssueCertificate)
		}

		// Course reviews and ratings
		courses := v1.Group("/courses")
		{
			courses.POST("/:course_id/reviews", hm.ratingHandler.SubmitReview)
			courses.GET("/:course_id/rating", hm.ratingHandler.GetCourseRating)
		}

		// Gradebook export
		gradebook := v1.Group("/gradebook")
		gradebook.Use(grader)
		{
			gradebook.GET("/quizzes/:quiz_id/export", hm.gradebookHandler.ExportQuizResults)
		}

		// User lookups
		users := v1.Group("/users")
		{
			users.GET("", hm.userHandler.ListUsers)
			users.GET("/:id", hm.userHandler.GetUser)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "grading-service",
		})
	})
}
