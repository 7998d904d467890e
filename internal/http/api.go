package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"auth-service/internal/authz"
	"auth-service/internal/domain"
	"auth-service/internal/service"
)

const contextKey = "authz.context"

// CredentialValidator verifies credentials on behalf of this instance, e.g.
// by delegating to a remote authentication service.
type CredentialValidator interface {
	Validate(ctx context.Context, username, password string) (*domain.User, error)
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	auth      service.AuthService
	remote    CredentialValidator
	jwtSecret []byte
	logger    *logrus.Logger
}

// NewHandler builds the HTTP surface. remote may be nil; when set, the
// validate endpoint delegates verification to it instead of the local
// engine (gateway deployment mode).
func NewHandler(auth service.AuthService, remote CredentialValidator, jwtSecret string, logger *logrus.Logger) *Handler {
	return &Handler{
		auth:      auth,
		remote:    remote,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
}

func (h *Handler) logRejection(c *gin.Context, username string) {
	h.logger.WithFields(logrus.Fields{
		"username":   username,
		"request_id": c.Writer.Header().Get("X-Request-ID"),
	}).Info("credential validation rejected")
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestIDMiddleware())
	router.Use(corsMiddleware())

	api := router.Group("/api/v1/auth")
	{
		api.POST("/register", h.register)
		api.POST("/validate", h.validateCredentials)
		api.GET("/users/:username", h.getUser)

		admin := api.Group("")
		admin.Use(h.authContextMiddleware(), requireCapability("ADMIN"))
		{
			admin.GET("/users", h.listUsers)
			admin.POST("/users/:id/roles/:role", h.assignRole)
			admin.DELETE("/users/:id/roles/:role", h.removeRole)
		}
	}
	router.GET("/api/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// authContextMiddleware derives an authorization context from a bearer
// token when one is present. It never aborts: describing what the requester
// may do is the context's job, denying access is requireCapability's.
func (h *Handler) authContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if raw, ok := strings.CutPrefix(header, "Bearer "); ok {
			if authCtx, err := authz.ParseToken(strings.TrimSpace(raw), h.jwtSecret); err == nil {
				c.Set(contextKey, authCtx)
			}
		}
		c.Next()
	}
}

func requireCapability(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get(contextKey)
		if !ok {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			c.Abort()
			return
		}
		authCtx := value.(*authz.Context)
		if !authCtx.HasCapability(role) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "insufficient privileges")
			c.Abort()
			return
		}
		c.Next()
	}
}

type registerRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type validateRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type apiResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
}

// UserResponse is the outward representation of a user; the password digest
// never appears here.
type UserResponse struct {
	ID        int64    `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Enabled   bool     `json:"enabled"`
	Roles     []string `json:"roles"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Username, req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	respond(c, http.StatusCreated, "CREATED", "user registered", userToResponse(user))
}

// validateCredentials implements the cross-service wire contract: a
// positive verdict returns {valid:true, username, roles}; every failure
// returns 401 with an explicit {valid:false, username, roles:[]} body so
// peers can treat both rejection shapes identically.
func (h *Handler) validateCredentials(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var user *domain.User
	var err error
	if h.remote != nil {
		user, err = h.remote.Validate(c.Request.Context(), req.Username, req.Password)
	} else {
		user, err = h.auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	}
	if err != nil {
		if errors.Is(err, service.ErrAuthUnavailable) {
			respondError(c, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "authentication service unavailable")
			return
		}
		h.logRejection(c, req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{
			"valid":    false,
			"username": req.Username,
			"roles":    []string{},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":    true,
		"username": user.Username,
		"roles":    user.Roles,
	})
}

func (h *Handler) getUser(c *gin.Context) {
	user, err := h.auth.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "SUCCESS", "user found", userToResponse(user))
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.auth.ListAll(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	resp := make([]UserResponse, len(users))
	for i := range users {
		resp[i] = userToResponse(&users[i])
	}
	respond(c, http.StatusOK, "SUCCESS", "users retrieved", resp)
}

func (h *Handler) assignRole(c *gin.Context) {
	h.mutateRole(c, h.auth.AssignRole, "role assigned")
}

func (h *Handler) removeRole(c *gin.Context) {
	h.mutateRole(c, h.auth.RemoveRole, "role removed")
}

func (h *Handler) mutateRole(c *gin.Context, mutate func(ctx context.Context, id int64, role string) (*domain.User, error), message string) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid user id")
		return
	}
	role := strings.TrimSpace(c.Param("role"))
	if role == "" {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "role is required")
		return
	}

	user, err := mutate(c.Request.Context(), id, role)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, "SUCCESS", message, userToResponse(user))
}

// respondServiceError maps the closed error taxonomy onto HTTP codes.
// Anything unrecognized is reported as an internal failure without echoing
// the underlying cause.
func (h *Handler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDuplicateUsername):
		respondError(c, http.StatusConflict, "DUPLICATE_USERNAME", "username already exists")
	case errors.Is(err, service.ErrDuplicateEmail):
		respondError(c, http.StatusConflict, "DUPLICATE_EMAIL", "email already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
	case errors.Is(err, service.ErrAccountDisabled):
		respondError(c, http.StatusForbidden, "ACCOUNT_DISABLED", "account is disabled")
	case errors.Is(err, service.ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
	case errors.Is(err, service.ErrAuthUnavailable):
		respondError(c, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "authentication service unavailable")
	case errors.Is(err, service.ErrInternal):
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	default:
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	}
}

func respond(c *gin.Context, status int, code, message string, data any) {
	c.JSON(status, apiResponse{
		Code:      code,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, apiResponse{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
	})
}

func userToResponse(user *domain.User) UserResponse {
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Enabled:   user.Enabled,
		Roles:     roles,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}
