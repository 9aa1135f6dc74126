package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"incident-moderation/internal/auth"
	"incident-moderation/internal/moderation"
	"incident-moderation/internal/reporting"
	"incident-moderation/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
//
// The actor id always comes from the access token, never from the request body.
type Handlers struct {
	Auth      *auth.Manager
	Engine    *moderation.Engine
	Reporting *reporting.Service

	// LoginEnabled exposes the development token endpoint.
	LoginEnabled bool
}

var validate = validator.New()

// --- Auth ---

type loginRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Role   string `json:"role" validate:"required,oneof=admin moderator submitter"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a development-only endpoint. Credentials are checked by the identity provider.
func (h Handlers) Login(c *gin.Context) {
	if !h.LoginEnabled {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Refresh exchanges a refresh token for a new pair with the same actor and role.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	pair, err := h.Auth.Refresh(time.Now(), req.RefreshToken)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// --- Admin: incidents and appeals ---

type resolveIncidentRequest struct {
	Decision moderation.Decision `json:"decision" validate:"required,oneof=approve reject retract"`
	// Omitted tags keep the incident's current tags; [] clears them.
	Tags   []string `json:"tags" validate:"omitempty,max=50,dive,max=64"`
	Reason *string  `json:"reason" validate:"omitempty,max=2000"`
}

// ResolveIncident applies an admin decision to an incident report.
// RBAC: admin or moderator.
func (h Handlers) ResolveIncident(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req resolveIncidentRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.Engine.ResolveIncident(c.Request.Context(), moderation.ResolveIncidentInput{
		IncidentID: id,
		Decision:   req.Decision,
		Tags:       req.Tags,
		Reason:     req.Reason,
		ActorID:    actorID,
	})
	respond(c, http.StatusOK, out, err)
}

type resolveAppealRequest struct {
	Decision moderation.AppealDecision `json:"decision" validate:"required,oneof=approve reject"`
	Response string                    `json:"response" validate:"max=4000"`
}

// ResolveAppeal approves or rejects a pending appeal.
// RBAC: admin or moderator.
func (h Handlers) ResolveAppeal(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req resolveAppealRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.Engine.ResolveAppeal(c.Request.Context(), moderation.ResolveAppealInput{
		AppealID: id,
		Decision: req.Decision,
		Response: req.Response,
		ActorID:  actorID,
	})
	respond(c, http.StatusOK, out, err)
}

func (h Handlers) PendingIncidents(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	out, err := h.Engine.PendingIncidents(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h Handlers) PendingAppeals(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	out, err := h.Engine.PendingAppeals(c.Request.Context(), moderation.AppealKind(c.Query("kind")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h Handlers) QueueSummary(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	out, err := h.Reporting.QueueSummary(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("queue summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "queue summary unavailable", "code": "storage"})
		return
	}
	c.JSON(http.StatusOK, out)
}

type resolutionSummaryQuery struct {
	From time.Time             `form:"from" time_format:"2006-01-02T15:04:05Z07:00" validate:"required"`
	To   time.Time             `form:"to" time_format:"2006-01-02T15:04:05Z07:00" validate:"required,gtfield=From"`
	Kind moderation.AppealKind `form:"kind" validate:"omitempty,oneof=ban_appeal incident_rejection_appeal"`
}

// ResolutionSummary reports appeal outcomes decided in [from, to).
func (h Handlers) ResolutionSummary(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	var q resolutionSummaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid query", "code": "validation"})
		return
	}
	if err := validate.Struct(q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return
	}
	out, err := h.Reporting.ResolutionSummary(c.Request.Context(), reporting.ResolutionSummaryRequest{
		Range: reporting.TimeRange{From: q.From, To: q.To},
		Kind:  q.Kind,
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
			return
		}
		logger.FromGin(c).Error("resolution summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "resolution summary unavailable", "code": "storage"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Submitters ---

type submitAppealRequest struct {
	Kind       moderation.AppealKind `json:"kind" validate:"required,oneof=ban_appeal incident_rejection_appeal"`
	IncidentID *int64                `json:"incident_id" validate:"omitempty,gt=0"`
	Message    string                `json:"message" validate:"required,max=4000"`
}

// SubmitAppeal opens an appeal on behalf of the caller.
func (h Handlers) SubmitAppeal(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req submitAppealRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.Engine.SubmitAppeal(c.Request.Context(), moderation.SubmitAppealInput{
		SubjectUserID: userID,
		Kind:          req.Kind,
		IncidentID:    req.IncidentID,
		Message:       req.Message,
	})
	respond(c, http.StatusCreated, out, err)
}

// Inbox lists the caller's rejected incidents that still need attention.
func (h Handlers) Inbox(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	userID, ok := actor(c)
	if !ok {
		return
	}
	out, err := h.Engine.ListInboxItems(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// --- helpers ---

func (h Handlers) ready(c *gin.Context) bool {
	if h.Engine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "moderation not configured"})
		return false
	}
	return true
}

func actor(c *gin.Context) (int64, bool) {
	id, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return 0, false
	}
	return id, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer", "code": "validation"})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "code": "validation"})
		return false
	}
	if err := validate.Struct(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return false
	}
	return true
}
