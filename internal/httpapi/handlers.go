package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voiceagent-platform/internal/agents"
	"voiceagent-platform/internal/audit"
	"voiceagent-platform/internal/auth"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/dispatch"
	"voiceagent-platform/internal/minutes"
	"voiceagent-platform/internal/rbac"
	"voiceagent-platform/internal/reporting"
	"voiceagent-platform/internal/storage"
	"voiceagent-platform/pkg/logger"
)

// TranscriptFetcher reads an artifact back by its stored location.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// OwnedCallsReader lists call records scoped through agent ownership.
type OwnedCallsReader interface {
	ListCalls(ctx context.Context, ownerUserID string, from, to time.Time, agentID string) ([]calls.Record, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth       *auth.Manager
	Agents     *agents.Service
	Minutes    *minutes.Service
	Ledger     *calls.Ledger
	Dispatch   *dispatch.Dispatcher
	Reports    *reporting.Service
	Audit      *audit.Service
	OwnedCalls OwnedCallsReader
	Artifacts  TranscriptFetcher
}

// writeError maps service sentinel errors onto the API's error envelope.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrNotFound),
		errors.Is(err, agents.ErrNotFound),
		errors.Is(err, minutes.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, minutes.ErrQuotaExhausted):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "quota_exhausted"})
	case errors.Is(err, agents.ErrNumberInUse):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "number_in_use"})
	case errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, agents.ErrInvalidArgument),
		errors.Is(err, agents.ErrEmptyUpdate),
		errors.Is(err, agents.ErrInvalidField),
		errors.Is(err, minutes.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_argument"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
	}
}

// identity pulls the authenticated caller out of the request context.
func identity(c *gin.Context) (userID, role string, ok bool) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "unauthenticated"})
		return "", "", false
	}
	role, _ = auth.Role(c.Request.Context())
	return userID, role, true
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
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured", "code": "internal"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "code": "invalid_argument"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required", "code": "invalid_argument"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed", "code": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Agents (admin) ---

func (h Handlers) CreateAgent(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	var req agents.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "code": "invalid_argument"})
		return
	}
	agent, err := h.Agents.Create(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func (h Handlers) ListAgents(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	out, err := h.Agents.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": out})
}

func (h Handlers) GetAgent(c *gin.Context) {
	userID, role, ok := identity(c)
	if !ok {
		return
	}
	agent, err := h.ownedAgent(c.Request.Context(), c.Param("id"), userID, role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h Handlers) UpdateAgent(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	var req agents.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "code": "invalid_argument"})
		return
	}
	agent, err := h.Agents.Update(c.Request.Context(), c.Param("id"), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h Handlers) DeactivateAgent(c *gin.Context) {
	userID, role, ok := identity(c)
	if !ok {
		return
	}
	agent, err := h.Agents.Deactivate(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogAgentDeactivated(c.Request.Context(), userID, role, c.ClientIP(), agent.ID); err != nil {
			logger.FromGin(c).Warn("audit append failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, agent)
}

// --- Minutes (admin) ---

func (h Handlers) GetAgentMinutes(c *gin.Context) {
	userID, role, ok := identity(c)
	if !ok {
		return
	}
	agent, err := h.ownedAgent(c.Request.Context(), c.Param("id"), userID, role)
	if err != nil {
		writeError(c, err)
		return
	}
	avail, err := h.Minutes.CheckAvailable(c.Request.Context(), agent.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, avail)
}

func (h Handlers) ResetAgentMinutes(c *gin.Context) {
	userID, role, ok := identity(c)
	if !ok {
		return
	}
	agentID := c.Param("id")
	avail, err := h.Minutes.Reset(c.Request.Context(), agentID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogMinutesReset(c.Request.Context(), userID, role, c.ClientIP(), agentID); err != nil {
			logger.FromGin(c).Warn("audit append failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, avail)
}

// --- Calls (admin, read-only) ---

func (h Handlers) ListCalls(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	from, to, err := parseRange(c, 30*24*time.Hour)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_argument"})
		return
	}
	out, err := h.OwnedCalls.ListCalls(c.Request.Context(), userID, from, to, c.Query("agent_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

func (h Handlers) GetCall(c *gin.Context) {
	rec, ok := h.ownedCall(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) GetCallTranscript(c *gin.Context) {
	rec, ok := h.ownedCall(c)
	if !ok {
		return
	}
	if rec.Transcript == "" {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call has no transcript", "code": "not_found"})
		return
	}
	if h.Artifacts == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "artifact store not configured", "code": "internal"})
		return
	}
	data, err := h.Artifacts.Fetch(c.Request.Context(), rec.Transcript)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// --- Dashboard (admin) ---

func (h Handlers) DashboardSummary(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	from, to, err := parseRange(c, 30*24*time.Hour)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_argument"})
		return
	}
	out, err := h.Reports.Summarize(c.Request.Context(), reporting.SummaryRequest{
		OwnerUserID: userID,
		Range:       reporting.TimeRange{From: from, To: to},
		AgentID:     c.Query("agent_id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Producer endpoints (service token) ---

func (h Handlers) RegisterCall(c *gin.Context) {
	var req dispatch.InboundCall
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "code": "invalid_argument"})
		return
	}
	cfg, err := h.Dispatch.HandleInbound(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (h Handlers) CallAcceptance(c *gin.Context) {
	phone := c.Query("phone_number")
	out, err := h.Dispatch.CheckAcceptance(c.Request.Context(), phone)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ReportCallStatus acknowledges every well-formed status report with 200,
// including reports for calls we do not know. Producers fire and forget.
func (h Handlers) ReportCallStatus(c *gin.Context) {
	var req calls.StatusReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "code": "invalid_argument"})
		return
	}
	if err := h.Ledger.ReportStatus(c.Request.Context(), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h Handlers) SubmitFinalReport(c *gin.Context) {
	var req calls.FinalReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "code": "invalid_argument"})
		return
	}
	rec, err := h.Ledger.RecordFinalReport(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- helpers ---

// ownedAgent enforces ownership for admin reads; super_admin sees all.
func (h Handlers) ownedAgent(ctx context.Context, agentID, userID, role string) (agents.Agent, error) {
	if rbac.IsSuperAdmin(role) {
		return h.Agents.Get(ctx, agentID)
	}
	return h.Agents.GetOwned(ctx, agentID, userID)
}

// ownedCall loads a call and verifies the caller owns its agent.
func (h Handlers) ownedCall(c *gin.Context) (calls.Record, bool) {
	userID, role, ok := identity(c)
	if !ok {
		return calls.Record{}, false
	}
	rec, err := h.Ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return calls.Record{}, false
	}
	if _, err := h.ownedAgent(c.Request.Context(), rec.AgentID, userID, role); err != nil {
		// Ownership failures read as absence, not as a hint the call exists.
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found", "code": "not_found"})
		return calls.Record{}, false
	}
	return rec, true
}

// parseRange reads from/to query params (RFC 3339), defaulting to a trailing
// window ending now.
func parseRange(c *gin.Context, window time.Duration) (from, to time.Time, err error) {
	to = time.Now().UTC()
	from = to.Add(-window)
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from timestamp")
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to timestamp")
		}
	}
	return from, to, nil
}
