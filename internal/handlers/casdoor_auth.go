package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/edplatform/grading-service/internal/config"
	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
)

// CasdoorAuthMiddleware authenticates requests against Casdoor tokens and
// resolves the caller into a user model with a role.
type CasdoorAuthMiddleware struct {
	client   *casdoorsdk.Client
	userRepo repositories.UserRepository
	config   config.CasdoorConfig
}

func NewCasdoorAuthMiddleware(cfg config.CasdoorConfig, userRepo repositories.UserRepository) *CasdoorAuthMiddleware {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Application,
		cfg.Organization,
	)

	return &CasdoorAuthMiddleware{
		client:   client,
		userRepo: userRepo,
		config:   cfg,
	}
}

// AuthMiddleware validates the bearer token and stores the resolved user in
// the request context under user_id, user, user_role and user_email.
func (cam *CasdoorAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "authorization header missing",
			})
			c.Abort()
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid authorization header format",
			})
			c.Abort()
			return
		}

		claims, err := cam.client.ParseJwtToken(tokenParts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": fmt.Sprintf("invalid token: %v", err),
			})
			c.Abort()
			return
		}

		user, err := cam.resolveUserFromClaims(c.Request.Context(), claims)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": fmt.Sprintf("failed to resolve user: %v", err),
			})
			c.Abort()
			return
		}

		c.Set("user_id", user.ID)
		c.Set("user", user)
		c.Set("user_role", user.Role)
		c.Set("user_email", user.Email)

		c.Next()
	}
}

// RequireRoleMiddleware rejects requests whose caller holds none of the
// required roles. Admins always pass.
func (cam *CasdoorAuthMiddleware) RequireRoleMiddleware(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("user_role")
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "user role not found in context",
			})
			c.Abort()
			return
		}

		role, ok := userRole.(models.UserRole)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "invalid user role format",
			})
			c.Abort()
			return
		}

		hasRequiredRole := false
		for _, requiredRole := range requiredRoles {
			if role == requiredRole || role == models.RoleAdmin {
				hasRequiredRole = true
				break
			}
		}

		if !hasRequiredRole {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": fmt.Sprintf("insufficient permissions, required role: %v", requiredRoles),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// resolveUserFromClaims prefers the repository (cached Casdoor lookup) and
// falls back to the claims themselves when the lookup fails, so a fresh user
// can still pass authentication before the identity cache warms up.
func (cam *CasdoorAuthMiddleware) resolveUserFromClaims(ctx context.Context, claims *casdoorsdk.Claims) (*models.User, error) {
	userID := claims.Id
	if userID == "" {
		return nil, fmt.Errorf("invalid user ID in token")
	}

	user, err := cam.userRepo.GetByID(ctx, userID)
	if err == nil {
		return user, nil
	}

	user = cam.userFromClaims(claims)
	if user == nil {
		return nil, fmt.Errorf("failed to build user from claims")
	}
	return user, nil
}

func (cam *CasdoorAuthMiddleware) userFromClaims(claims *casdoorsdk.Claims) *models.User {
	userID := claims.Id
	if userID == "" {
		return nil
	}

	avatarURL := claims.User.Avatar

	return &models.User{
		ID:            userID,
		FullName:      claims.User.DisplayName,
		Email:         claims.User.Email,
		Role:          cam.mapCasdoorRoleToUserRole(claims.User.Type),
		AvatarURL:     &avatarURL,
		EmailVerified: true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func (cam *CasdoorAuthMiddleware) mapCasdoorRoleToUserRole(casdoorType string) models.UserRole {
	switch strings.ToLower(casdoorType) {
	case "admin", "administrator":
		return models.RoleAdmin
	case "instructor", "teacher", "educator":
		return models.RoleInstructor
	default:
		return models.RoleStudent
	}
}

// GetUserFromContext extracts the authenticated user from the Gin context.
func GetUserFromContext(c *gin.Context) (*models.User, error) {
	user, exists := c.Get("user")
	if !exists {
		return nil, fmt.Errorf("user not found in context")
	}

	userModel, ok := user.(*models.User)
	if !ok {
		return nil, fmt.Errorf("invalid user type in context")
	}

	return userModel, nil
}

// GetUserIDFromContext extracts the authenticated user ID from the Gin context.
func GetUserIDFromContext(c *gin.Context) (string, error) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", fmt.Errorf("user ID not found in context")
	}

	id, ok := userID.(string)
	if !ok {
		return "", fmt.Errorf("invalid user ID type in context")
	}

	return id, nil
}
