package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateQuizCache invalidates all quiz-related caches
func InvalidateQuizCache(ctx context.Context, cm *CacheManager, quizID uint) {
	SafeDelete(ctx, cm.Quiz,
		fmt.Sprintf("id:%d", quizID),
		fmt.Sprintf("questions:%d", quizID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("quiz:%d:*", quizID))
}

// InvalidateAttemptCache invalidates cached attempt reads after a write
func InvalidateAttemptCache(ctx context.Context, cm *CacheManager, attemptID uint) {
	SafeDelete(ctx, cm.Fast, fmt.Sprintf("attempt:%d", attemptID))
}

// InvalidateRatingCache invalidates a course rating aggregate
func InvalidateRatingCache(ctx context.Context, cm *CacheManager, courseID uint) {
	SafeDelete(ctx, cm.Rating, fmt.Sprintf("course:%d", courseID))
}
