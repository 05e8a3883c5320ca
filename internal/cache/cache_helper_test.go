package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type cachedQuiz struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

func newTestHelper(t *testing.T) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCacheHelper(client, "quiz:"), mr
}

func TestCacheHelper_SetAndGet(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	original := cachedQuiz{ID: 7, Title: "Midterm"}
	if err := helper.Set(ctx, "id:7", original, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got cachedQuiz
	if err := helper.Get(ctx, "id:7", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != original {
		t.Errorf("got %+v, want %+v", got, original)
	}
}

func TestCacheHelper_GetMissingKey(t *testing.T) {
	helper, _ := newTestHelper(t)

	var got cachedQuiz
	err := helper.Get(context.Background(), "id:404", &got)
	if !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("expected ErrCacheNotFound, got %v", err)
	}
}

func TestCacheHelper_KeysArePrefixed(t *testing.T) {
	helper, mr := newTestHelper(t)

	if err := helper.Set(context.Background(), "id:7", cachedQuiz{ID: 7}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !mr.Exists("quiz:id:7") {
		t.Error("expected key quiz:id:7 in redis")
	}
}

func TestCacheHelper_Delete(t *testing.T) {
	helper, mr := newTestHelper(t)
	ctx := context.Background()

	for _, key := range []string{"id:1", "id:2", "id:3"} {
		if err := helper.Set(ctx, key, cachedQuiz{}, time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	if err := helper.Delete(ctx, "id:1", "id:2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if mr.Exists("quiz:id:1") || mr.Exists("quiz:id:2") {
		t.Error("deleted keys still present")
	}
	if !mr.Exists("quiz:id:3") {
		t.Error("untouched key was removed")
	}
}

func TestCacheHelper_InvalidatePattern(t *testing.T) {
	helper, mr := newTestHelper(t)
	ctx := context.Background()

	if err := helper.Set(ctx, "10:stats", cachedQuiz{}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := helper.Set(ctx, "10:questions", cachedQuiz{}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := helper.Set(ctx, "11:stats", cachedQuiz{}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := helper.InvalidatePattern(ctx, "10:*"); err != nil {
		t.Fatalf("InvalidatePattern failed: %v", err)
	}

	if mr.Exists("quiz:10:stats") || mr.Exists("quiz:10:questions") {
		t.Error("pattern-matched keys still present")
	}
	if !mr.Exists("quiz:11:stats") {
		t.Error("non-matching key was removed")
	}
}

func TestCacheHelper_CacheOrExecute(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return &cachedQuiz{ID: 9, Title: "Final"}, nil
	}

	var first cachedQuiz
	if err := helper.CacheOrExecute(ctx, "id:9", &first, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if first.Title != "Final" {
		t.Errorf("got %+v, want fetched quiz", first)
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls)
	}

	// The write-back happens on a background goroutine.
	deadline := time.Now().Add(time.Second)
	for {
		var cached cachedQuiz
		if err := helper.Get(ctx, "id:9", &cached); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("value never written back to cache")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var second cachedQuiz
	if err := helper.CacheOrExecute(ctx, "id:9", &second, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1 after cache hit", calls)
	}
	if second.ID != 9 {
		t.Errorf("cached read returned %+v", second)
	}
}

func TestCacheHelper_NilClientDegradesGracefully(t *testing.T) {
	helper := NewCacheHelper(nil, "quiz:")
	ctx := context.Background()

	if err := helper.Set(ctx, "id:1", cachedQuiz{}, time.Minute); err != nil {
		t.Errorf("Set with nil client should be a no-op, got %v", err)
	}

	var got cachedQuiz
	if err := helper.Get(ctx, "id:1", &got); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("expected ErrCacheNotAvailable, got %v", err)
	}

	calls := 0
	err := helper.CacheOrExecute(ctx, "id:1", &got, time.Minute, func() (interface{}, error) {
		calls++
		return &cachedQuiz{ID: 1}, nil
	})
	if err != nil {
		t.Fatalf("CacheOrExecute without redis failed: %v", err)
	}
	if calls != 1 || got.ID != 1 {
		t.Errorf("fetch not executed on cache miss: calls=%d got=%+v", calls, got)
	}
}

func TestInvalidateQuizCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cm := NewCacheManager(client)
	ctx := context.Background()

	if err := cm.Quiz.Set(ctx, "id:10", cachedQuiz{ID: 10}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cm.Quiz.Set(ctx, "questions:10", cachedQuiz{ID: 10}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cm.Stats.Set(ctx, "quiz:10:attempts", cachedQuiz{}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	InvalidateQuizCache(ctx, cm, 10)

	if mr.Exists("quiz:id:10") || mr.Exists("quiz:questions:10") {
		t.Error("quiz keys still present after invalidation")
	}
	if mr.Exists("stats:quiz:10:attempts") {
		t.Error("stats key still present after invalidation")
	}
}
