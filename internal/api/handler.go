package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shortloop/gateway/internal/middleware"
	"github.com/shortloop/gateway/internal/model"
	"github.com/shortloop/gateway/internal/service"
)

// Handler holds HTTP handlers and dependencies. It receives interfaces
// rather than concrete implementations for testability.
type Handler struct {
	links    service.LinkServiceInterface
	resolver ResolverInterface
	db       DBInterface
	cache    CacheInterface
	logger   *slog.Logger
}

// ResolverInterface is the redirect resolution contract consumed by the
// transport layer.
type ResolverInterface interface {
	Resolve(ctx context.Context, req service.ResolveRequest) (service.Resolution, error)
}

// DBInterface defines the database operations needed for health checks.
type DBInterface interface {
	Ping(ctx context.Context) error
	Close()
}

// CacheInterface defines the cache operations needed for health checks.
type CacheInterface interface {
	Ping(ctx context.Context) error
}

// NewHandler creates a new handler instance with the provided dependencies.
func NewHandler(links service.LinkServiceInterface, resolver ResolverInterface, db DBInterface, cache CacheInterface, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		links:    links,
		resolver: resolver,
		db:       db,
		cache:    cache,
		logger:   logger,
	}
}

// RegisterRoutes registers all route definitions on the given Gin engine.
// The caller creates the engine and attaches global middleware first.
// authMW guards the management group; limitMW rate-limits it.
func (h *Handler) RegisterRoutes(r *gin.Engine, metricsHandler http.Handler, authMW, limitMW gin.HandlerFunc) {
	r.GET("/health", h.healthCheck)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	v1 := r.Group("/api/v1")
	if limitMW != nil {
		v1.Use(limitMW)
	}
	if authMW != nil {
		v1.Use(authMW)
	}
	{
		v1.POST("/links", h.createLink)
		v1.GET("/links", h.listLinks)
		v1.GET("/links/:code", h.getLink)
		v1.PATCH("/links/:code", h.updateLink)
		v1.DELETE("/links/:code", h.deleteLink)
		v1.POST("/links/:code/deactivate", h.deactivateLink)
		v1.GET("/links/:code/analytics", h.analytics)
	}

	// Redirect route (public) - must be last to avoid conflicts
	r.GET("/:code", h.redirect)
}

// healthCheck handles GET /health
// Response codes:
//   - 200 OK: all dependencies are healthy
//   - 503 Service Unavailable: one or more dependencies are down
func (h *Handler) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	cacheErr := h.cache.Ping(ctx)
	dbErr := h.db.Ping(ctx)

	status := "ok"
	code := http.StatusOK
	deps := gin.H{"cache": "up", "database": "up"}

	if cacheErr != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		deps["cache"] = "down"
	}
	if dbErr != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		deps["database"] = "down"
	}

	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

// redirect handles GET /:code, the latency-critical path. Policy
// denials come back as typed results and map to response codes here;
// only infrastructure faults produce a 500.
func (h *Handler) redirect(c *gin.Context) {
	ctx := c.Request.Context()

	req := service.ResolveRequest{
		Code:      c.Param("code"),
		Password:  c.Query("password"),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referrer:  c.Request.Referer(),
	}
	if req.Password == "" {
		req.Password = c.GetHeader("X-Link-Password")
	}

	res, err := h.resolver.Resolve(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "redirect resolution failed",
			slog.String("error", err.Error()),
			slog.String("code", req.Code))
		h.errorResponse(c, http.StatusInternalServerError, "", "Internal server error")
		return
	}

	if !res.Allowed {
		status, message := denyStatus(res.Reason)
		h.errorResponse(c, status, string(res.Reason), message)
		return
	}

	c.Redirect(res.Status, res.TargetURL)
}

func denyStatus(reason service.DenyReason) (int, string) {
	switch reason {
	case service.DenyNotFound:
		return http.StatusNotFound, "Link not found"
	case service.DenyDeactivated:
		return http.StatusForbidden, "Link has been deactivated"
	case service.DenyExpired:
		return http.StatusGone, "Link has expired"
	case service.DenyPasswordRequired:
		return http.StatusUnauthorized, "Link requires a password"
	case service.DenyPasswordMismatch:
		return http.StatusUnauthorized, "Incorrect password"
	case service.DenyGeoRestricted:
		return http.StatusForbidden, "Link is not available in your region"
	case service.DenyDeviceRestricted:
		return http.StatusForbidden, "Link is not available on your device"
	case service.DenyClickLimitReached:
		return http.StatusTooManyRequests, "Link has reached its click limit"
	default:
		return http.StatusNotFound, "Link not found"
	}
}

// createLink handles POST /api/v1/links
// Response codes:
//   - 201 Created
//   - 400 Bad Request: invalid body, URL, alias or restriction config
//   - 409 Conflict: alias or code already exists
func (h *Handler) createLink(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		h.errorResponse(c, http.StatusUnauthorized, "", "Missing owner identity")
		return
	}

	var req model.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			slog.String("error", err.Error()),
			slog.String("path", c.Request.URL.Path))
		h.errorResponse(c, http.StatusBadRequest, "", "Invalid request body")
		return
	}

	resp, err := h.links.CreateLink(ctx, ownerID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			h.errorResponse(c, http.StatusBadRequest, "", err.Error())
		case errors.Is(err, service.ErrInvalidAlias):
			h.errorResponse(c, http.StatusBadRequest, "", "Invalid custom alias")
		case errors.Is(err, service.ErrInvalidRequest):
			h.errorResponse(c, http.StatusBadRequest, "", err.Error())
		case errors.Is(err, service.ErrCodeExists):
			h.errorResponse(c, http.StatusConflict, "", "Short code or alias already exists")
		case errors.Is(err, service.ErrCodeGeneration):
			h.logger.ErrorContext(ctx, "short code generation exhausted")
			h.errorResponse(c, http.StatusInternalServerError, "", "Could not allocate a short code")
		default:
			h.logger.ErrorContext(ctx, "unexpected error creating link",
				slog.String("error", err.Error()))
			h.errorResponse(c, http.StatusInternalServerError, "", "Internal server error")
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getLink handles GET /api/v1/links/:code
func (h *Handler) getLink(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		h.errorResponse(c, http.StatusUnauthorized, "", "Missing owner identity")
		return
	}
	code := c.Param("code")

	resp, err := h.links.GetLink(ctx, ownerID, code)
	if err != nil {
		h.linkError(c, code, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// listLinks handles GET /api/v1/links
func (h *Handler) listLinks(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		h.errorResponse(c, http.StatusUnauthorized, "", "Missing owner identity")
		return
	}

	resp, err := h.links.ListLinks(ctx, ownerID)
	if err != nil {
		h.logger.ErrorContext(ctx, "unexpected error listing links",
			slog.String("error", err.Error()))
		h.errorResponse(c, http.StatusInternalServerError, "", "Internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": resp})
}

// updateLink handles PATCH /api/v1/links/:code
func (h *Handler) updateLink(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		h.errorResponse(c, http.StatusUnauthorized, "", "Missing owner identity")
		return
	}
	code := c.Param("code")

	var req model.UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "", "Invalid request body")
		return
	}

	resp, err := h.links.UpdateLink(ctx, ownerID, code, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL), errors.Is(err, service.ErrInvalidRequest):
			h.errorResponse(c, http.StatusBadRequest, "", err.Error())
		default:
			h.linkError(c, code, err)
		}
		return
	}
	c.JSON(http.StatusOK, resp)
}

// deactivateLink handles POST /api/v1/links/:code/deactivate
func (h *Handler) deactivateLink(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		h.errorResponse(c, http.StatusUnauthorized, "", "Missing owner identity")
		return
	}
	code := c.Param("code")

	if err := h.links.DeactivateLink(c.Request.Context(), ownerID, code); err != nil {
		h.linkError(c, code, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteLink handles DELETE /api/v1/links/:code
func (h *Handler) deleteLink(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		h.errorResponse(c, http.StatusUnauthorized, "", "Missing owner identity")
		return
	}
	code := c.Param("code")

	if err := h.links.DeleteLink(c.Request.Context(), ownerID, code); err != nil {
		h.linkError(c, code, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// analytics handles GET /api/v1/links/:code/analytics?days=30
func (h *Handler) analytics(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		h.errorResponse(c, http.StatusUnauthorized, "", "Missing owner identity")
		return
	}
	code := c.Param("code")
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

	resp, err := h.links.Analytics(c.Request.Context(), ownerID, code, days)
	if err != nil {
		h.linkError(c, code, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// linkError maps the common service errors of owner operations.
func (h *Handler) linkError(c *gin.Context, code string, err error) {
	switch {
	case errors.Is(err, service.ErrLinkNotFound):
		h.errorResponse(c, http.StatusNotFound, "", "Link not found")
	default:
		h.logger.ErrorContext(c.Request.Context(), "unexpected error on link operation",
			slog.String("error", err.Error()),
			slog.String("code", code))
		h.errorResponse(c, http.StatusInternalServerError, "", "Internal server error")
	}
}

// errorResponse sends a standardized JSON error response.
func (h *Handler) errorResponse(c *gin.Context, status int, reason, message string) {
	c.JSON(status, model.ErrorResponse{
		Error:   http.StatusText(status),
		Reason:  reason,
		Message: message,
	})
}
