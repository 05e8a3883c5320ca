package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edplatform/grading-service/internal/repositories"
)

type UserHandler struct {
	BaseHandler
	userRepo repositories.UserRepository
}

func NewUserHandler(userRepo repositories.UserRepository, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		BaseHandler: NewBaseHandler(logger),
		userRepo:    userRepo,
	}
}

// ListUsers lists users from the identity provider, optionally filtered by
// a name or email query.
func (h *UserHandler) ListUsers(c *gin.Context) {
	if h.currentUserID(c) == "" {
		return
	}

	h.LogRequest(c, "Listing users")

	filters := h.parseUserFilters(c)
	users, total, err := h.userRepo.List(c.Request.Context(), filters)
	if err != nil {
		h.LogError(c, err, "Failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Failed to list users",
			Details: err.Error(),
		})
		return
	}

	page := (filters.Offset / max(filters.Limit, 1)) + 1

	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"total": total,
		"page":  page,
		"size":  filters.Limit,
	})
}

// GetUser looks up a single user by ID.
func (h *UserHandler) GetUser(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "User ID is required",
		})
		return
	}

	if h.currentUserID(c) == "" {
		return
	}

	user, err := h.userRepo.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "User not found",
		})
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) parseUserFilters(c *gin.Context) repositories.UserFilters {
	limit, offset, _, _ := h.paginationAndSort(c)

	return repositories.UserFilters{
		Limit:  limit,
		Offset: offset,
		Query:  c.Query("q"),
	}
}
