package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"cati-platform/internal/auth"
	"cati-platform/internal/calls"
	"cati-platform/internal/interview"
	"cati-platform/internal/queue"
	"cati-platform/internal/rbac"
	"cati-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth         *auth.Manager
	Queue        *queue.Service
	Initializer  *queue.Initializer
	Orchestrator *calls.Orchestrator
	Processor    *interview.Processor

	DB  *sql.DB
	RDB *redis.Client
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Queue ---

type importRequest struct {
	Contacts []queue.Contact `json:"contacts"`
}

// ImportContacts seeds a survey's queue from a contact list.
// RBAC: supervisor or admin.
func (h Handlers) ImportContacts(c *gin.Context) {
	surveyID := c.Param("survey_id")
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.Contacts) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "contacts required"})
		return
	}
	res, err := h.Initializer.Seed(c.Request.Context(), surveyID, req.Contacts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ClaimNext assigns the next eligible respondent to the calling interviewer.
// An empty queue is a normal outcome, not an error.
func (h Handlers) ClaimNext(c *gin.Context) {
	interviewerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	e, err := h.Queue.ClaimNext(c.Request.Context(), c.Param("survey_id"), interviewerID)
	if err != nil {
		if errors.Is(err, queue.ErrNoEligibleRespondent) {
			c.JSON(http.StatusOK, gin.H{"available": false})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": true, "entry": e})
}

type placeCallRequest struct {
	InterviewerPhone string `json:"interviewer_phone"`
}

// PlaceCall bridges the interviewer and the claimed respondent. A provider
// failure has already requeued the entry; report it as a failed outcome with
// the provider's message, not a server error.
func (h Handlers) PlaceCall(c *gin.Context) {
	interviewerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req placeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	out, err := h.Orchestrator.PlaceCall(c.Request.Context(), c.Param("entry_id"), interviewerID, req.InterviewerPhone)
	if err != nil {
		switch {
		case errors.Is(err, calls.ErrCallFailed):
			c.JSON(http.StatusBadGateway, gin.H{"placed": false, "requeued": true, "error": err.Error()})
		case errors.Is(err, calls.ErrCallInProgress):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a call is already in progress"})
		default:
			writeError(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"placed": true, "call": out})
}

type abandonRequest struct {
	Reason     string     `json:"reason"`
	Notes      string     `json:"notes,omitempty"`
	CallBackAt *time.Time `json:"call_back_at,omitempty"`
}

// Abandon records a non-success call outcome and applies the reason's transition.
func (h Handlers) Abandon(c *gin.Context) {
	interviewerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req abandonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	e, err := h.Queue.Abandon(c.Request.Context(), c.Param("entry_id"), interviewerID, req.Reason, req.Notes, req.CallBackAt)
	if err != nil {
		writeError(c, err)
		return
	}
	// The attempt is resolved; hand the in-flight slot back immediately.
	if h.Orchestrator != nil {
		h.Orchestrator.ReleaseCall(c.Request.Context(), interviewerID)
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

// Complete finalizes the interview. The interviewer always sees
// Pending_Approval here, whatever auto-rejection decided.
func (h Handlers) Complete(c *gin.Context) {
	interviewerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var payload interview.CompletionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	out, err := h.Processor.Complete(c.Request.Context(), c.Param("entry_id"), interviewerID, payload)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Orchestrator != nil {
		h.Orchestrator.ReleaseCall(c.Request.Context(), interviewerID)
	}
	c.JSON(http.StatusOK, out)
}

// QueueSummary returns per-status entry counts for a survey.
// RBAC: supervisor or admin.
func (h Handlers) QueueSummary(c *gin.Context) {
	counts, err := h.Queue.Summary(c.Request.Context(), c.Param("survey_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"survey_id": c.Param("survey_id"), "counts": counts})
}

// --- Health ---

func (h Handlers) Healthz(c *gin.Context) {
	status := gin.H{"status": "ok"}
	code := http.StatusOK
	if h.DB != nil {
		if err := utils.HealthCheck(c.Request.Context(), h.DB, 2*time.Second); err != nil {
			status["postgres"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if h.RDB != nil {
		if err := h.RDB.Ping(c.Request.Context()).Err(); err != nil {
			status["redis"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if code != http.StatusOK {
		status["status"] = "degraded"
	}
	c.JSON(code, status)
}

// writeError maps sentinel errors to HTTP statuses. Anything unmapped is a 500
// with a generic body; details stay in the logs.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, queue.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, queue.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not the owner of this entry"})
	case errors.Is(err, queue.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, queue.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "entry changed underneath this request"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Convenience middleware bundles.

func RequireSupervisor() []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireAnyRole(rbac.RoleSupervisor, rbac.RoleAdmin)}
}

func RequireInterviewer() []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireAnyRole(rbac.RoleInterviewer, rbac.RoleSupervisor, rbac.RoleAdmin)}
}
