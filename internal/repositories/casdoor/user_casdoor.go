package casdoor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
)

// CasdoorConfig holds the configuration for Casdoor connection
type CasdoorConfig struct {
	Endpoint         string
	ClientID         string
	ClientSecret     string
	Certificate      string
	OrganizationName string
	ApplicationName  string
}

// UserCasdoor reads user identity and roles from Casdoor. The grading
// service never writes user data.
type UserCasdoor struct {
	client *casdoorsdk.Client
	redis  *redis.Client
	config CasdoorConfig

	cachePrefix string
	cacheTTL    time.Duration
}

func NewUserCasdoor(config CasdoorConfig, redisClient *redis.Client) repositories.UserRepository {
	client := casdoorsdk.NewClient(
		config.Endpoint,
		config.ClientID,
		config.ClientSecret,
		config.Certificate,
		config.OrganizationName,
		config.ApplicationName,
	)

	return &UserCasdoor{
		client:      client,
		redis:       redisClient,
		config:      config,
		cachePrefix: "user:",
		cacheTTL:    15 * time.Minute,
	}
}

// ===== CACHE METHODS =====

func (u *UserCasdoor) getCacheKey(key string) string {
	return fmt.Sprintf("%s%s", u.cachePrefix, key)
}

func (u *UserCasdoor) getUserFromCache(ctx context.Context, key string) (*models.User, error) {
	if u.redis == nil {
		return nil, nil
	}

	cacheKey := u.getCacheKey(key)
	data, err := u.redis.Get(ctx, cacheKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var user models.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached user: %w", err)
	}

	return &user, nil
}

func (u *UserCasdoor) setUserCache(ctx context.Context, key string, user *models.User) error {
	if u.redis == nil {
		return nil
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user for cache: %w", err)
	}

	cacheKey := u.getCacheKey(key)
	return u.redis.Set(ctx, cacheKey, data, u.cacheTTL).Err()
}

// ===== CONVERSION METHODS =====

func (u *UserCasdoor) convertCasdoorUserToModel(casdoorUser *casdoorsdk.User) *models.User {
	if casdoorUser == nil {
		return nil
	}

	var createdAt, updatedAt time.Time
	if casdoorUser.CreatedTime != "" {
		createdAt, _ = time.Parse(time.RFC3339, casdoorUser.CreatedTime)
	}
	if casdoorUser.UpdatedTime != "" {
		updatedAt, _ = time.Parse(time.RFC3339, casdoorUser.UpdatedTime)
	}

	return &models.User{
		ID:            casdoorUser.Id,
		FullName:      casdoorUser.DisplayName,
		Email:         casdoorUser.Email,
		Role:          u.resolveRole(casdoorUser),
		AvatarURL:     &casdoorUser.Avatar,
		EmailVerified: casdoorUser.EmailVerified,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

func (u *UserCasdoor) resolveRole(casdoorUser *casdoorsdk.User) models.UserRole {
	var roles []models.UserRole
	seen := make(map[models.UserRole]bool)
	for _, casdoorRole := range casdoorUser.Roles {
		mapped := mapCasdoorRole(casdoorRole.Name)
		if !seen[mapped] {
			roles = append(roles, mapped)
			seen[mapped] = true
		}
	}

	// Admin always wins
	if slices.Contains(roles, models.RoleAdmin) || casdoorUser.IsAdmin {
		return models.RoleAdmin
	}

	if len(roles) == 0 {
		return models.RoleStudent
	}
	return roles[0]
}

func mapCasdoorRole(name string) models.UserRole {
	switch strings.ToLower(name) {
	case "instructor", "teacher":
		return models.RoleInstructor
	case "admin", "administrator":
		return models.RoleAdmin
	default:
		return models.RoleStudent
	}
}

// ===== BASIC READ OPERATIONS =====

func (u *UserCasdoor) GetByID(ctx context.Context, id string) (*models.User, error) {
	cacheKey := fmt.Sprintf("id:%s", id)
	if cachedUser, err := u.getUserFromCache(ctx, cacheKey); err == nil && cachedUser != nil {
		return cachedUser, nil
	}

	casdoorUser, err := u.client.GetUserByUserId(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user from Casdoor: %w", err)
	}

	if casdoorUser == nil {
		return nil, gorm.ErrRecordNotFound
	}

	user := u.convertCasdoorUserToModel(casdoorUser)

	u.setUserCache(ctx, cacheKey, user)
	u.setUserCache(ctx, fmt.Sprintf("email:%s", user.Email), user)

	return user, nil
}

func (u *UserCasdoor) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	cacheKey := fmt.Sprintf("email:%s", email)
	if cachedUser, err := u.getUserFromCache(ctx, cacheKey); err == nil && cachedUser != nil {
		return cachedUser, nil
	}

	casdoorUser, err := u.client.GetUserByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email from Casdoor: %w", err)
	}

	if casdoorUser == nil {
		return nil, gorm.ErrRecordNotFound
	}

	user := u.convertCasdoorUserToModel(casdoorUser)

	u.setUserCache(ctx, cacheKey, user)
	u.setUserCache(ctx, fmt.Sprintf("id:%s", user.ID), user)

	return user, nil
}

func (u *UserCasdoor) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return []*models.User{}, nil
	}

	users := make([]*models.User, 0, len(ids))
	uncachedIDs := make([]string, 0)

	for _, id := range ids {
		cacheKey := fmt.Sprintf("id:%s", id)
		if cachedUser, err := u.getUserFromCache(ctx, cacheKey); err == nil && cachedUser != nil {
			users = append(users, cachedUser)
		} else {
			uncachedIDs = append(uncachedIDs, id)
		}
	}

	// Fetch the rest individually; skip users that fail to resolve
	for _, id := range uncachedIDs {
		user, err := u.GetByID(ctx, id)
		if err == nil && user != nil {
			users = append(users, user)
		}
	}

	return users, nil
}

// ===== VALIDATION AND CHECKS =====

func (u *UserCasdoor) ExistsByID(ctx context.Context, id string) (bool, error) {
	cacheKey := fmt.Sprintf("exists:id:%s", id)
	if u.redis != nil {
		exists, err := u.redis.Get(ctx, cacheKey).Result()
		if err == nil {
			return exists == "true", nil
		}
	}

	user, err := u.client.GetUserByUserId(id)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}

	exists := user != nil

	if u.redis != nil {
		u.redis.Set(ctx, cacheKey, fmt.Sprintf("%t", exists), 1*time.Minute)
	}

	return exists, nil
}

func (u *UserCasdoor) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	user, err := u.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return role == user.Role, nil
}

// ===== LIST AND SEARCH OPERATIONS =====

func (u *UserCasdoor) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, int64, error) {
	if filters.Limit <= 0 {
		filters.Limit = 10
	}
	if filters.Limit > 100 {
		filters.Limit = 100
	}

	// Casdoor pages are 1-indexed
	page := (filters.Offset / filters.Limit) + 1
	if page < 1 {
		page = 1
	}

	queryMap := make(map[string]string)
	if filters.Query != "" {
		queryMap["field"] = "email"
		queryMap["value"] = filters.Query
	}

	casdoorUsers, count, err := u.client.GetPaginationUsers(page, filters.Limit, queryMap)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get users from Casdoor: %w", err)
	}

	users := make([]*models.User, 0, len(casdoorUsers))
	for _, casdoorUser := range casdoorUsers {
		user := u.convertCasdoorUserToModel(casdoorUser)
		if user != nil {
			users = append(users, user)

			u.setUserCache(ctx, fmt.Sprintf("id:%s", user.ID), user)
			u.setUserCache(ctx, fmt.Sprintf("email:%s", user.Email), user)
		}
	}

	return users, int64(count), nil
}
