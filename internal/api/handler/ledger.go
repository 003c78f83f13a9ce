package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/victoriawisdom39-code/involvement-ledger/internal/actledger"
	"go.uber.org/zap"
)

// LedgerHandler exposes the activity ledger over HTTP. Mutating routes sit
// behind the caller-token middleware; read routes are public.
type LedgerHandler struct {
	ledger actledger.Ledger
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger actledger.Ledger, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: logger}
}

// Register mounts the ledger routes on the given router group. auth is the
// caller-authentication middleware applied to every mutating route.
func (h *LedgerHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	rg.POST("/types", auth, h.RegisterType)
	rg.GET("/types/:name", h.GetType)

	a := rg.Group("/activities")
	{
		a.POST("", auth, h.LogActivity)
		a.GET("/:id", h.GetActivity)
		a.POST("/:id/verify", auth, h.VerifyActivity)
		a.POST("/:id/dispute", auth, h.DisputeActivity)
		a.PUT("/:id/description", auth, h.UpdateDescription)
		a.POST("/:id/evidence", auth, h.AddEvidence)
	}

	rg.GET("/submitters/:submitter/activities", h.BySubmitter)
	rg.GET("/subjects/:id/activities", h.BySubject)

	rg.GET("/ledger/status", h.Status)
	rg.PUT("/ledger/pause", auth, h.SetPaused)
}

// ─── Request types ───────────────────────────────────────────────────────────

type registerTypeRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type logActivityRequest struct {
	SubjectID    uint64           `json:"subject_id" binding:"required"`
	ActivityType string           `json:"activity_type" binding:"required"`
	Description  string           `json:"description" binding:"required"`
	Evidence     []actledger.Hash `json:"evidence"`
	Metadata     string           `json:"metadata"`
}

type disputeRequest struct {
	Notes string `json:"notes" binding:"required"`
}

type updateDescriptionRequest struct {
	Description string `json:"description" binding:"required"`
}

type addEvidenceRequest struct {
	Hash string `json:"hash" binding:"required"`
}

type setPausedRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

// ─── Mutating routes ─────────────────────────────────────────────────────────

// RegisterType handles POST /types.
func (h *LedgerHandler) RegisterType(c *gin.Context) {
	var req registerTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledger.RegisterType(c.Request.Context(), callerFrom(c), req.Name, req.Description); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

// LogActivity handles POST /activities.
func (h *LedgerHandler) LogActivity(c *gin.Context) {
	var req logActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.ledger.LogActivity(c.Request.Context(), callerFrom(c),
		req.SubjectID, req.ActivityType, req.Description, req.Evidence, req.Metadata)
	if err != nil {
		h.respondError(c, err)
		return
	}
	RecordActivityLogged(req.ActivityType)
	c.JSON(http.StatusCreated, gin.H{"log_id": id})
}

// VerifyActivity handles POST /activities/:id/verify.
func (h *LedgerHandler) VerifyActivity(c *gin.Context) {
	id, ok := logIDParam(c)
	if !ok {
		return
	}
	if err := h.ledger.VerifyActivity(c.Request.Context(), callerFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	RecordVerification()
	c.JSON(http.StatusOK, gin.H{"log_id": id, "verified": true})
}

// DisputeActivity handles POST /activities/:id/dispute.
func (h *LedgerHandler) DisputeActivity(c *gin.Context) {
	id, ok := logIDParam(c)
	if !ok {
		return
	}
	var req disputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.DisputeActivity(c.Request.Context(), callerFrom(c), id, req.Notes); err != nil {
		h.respondError(c, err)
		return
	}
	RecordDispute()
	c.JSON(http.StatusOK, gin.H{"log_id": id, "disputed": true})
}

// UpdateDescription handles PUT /activities/:id/description.
func (h *LedgerHandler) UpdateDescription(c *gin.Context) {
	id, ok := logIDParam(c)
	if !ok {
		return
	}
	var req updateDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.UpdateDescription(c.Request.Context(), callerFrom(c), id, req.Description); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log_id": id})
}

// AddEvidence handles POST /activities/:id/evidence.
func (h *LedgerHandler) AddEvidence(c *gin.Context) {
	id, ok := logIDParam(c)
	if !ok {
		return
	}
	var req addEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hash, err := actledger.ParseHash(req.Hash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.AddEvidence(c.Request.Context(), callerFrom(c), id, hash); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log_id": id})
}

// SetPaused handles PUT /ledger/pause.
func (h *LedgerHandler) SetPaused(c *gin.Context) {
	var req setPausedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.SetPaused(c.Request.Context(), callerFrom(c), *req.Paused); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": *req.Paused})
}

// ─── Read routes ─────────────────────────────────────────────────────────────

// GetActivity handles GET /activities/:id.
func (h *LedgerHandler) GetActivity(c *gin.Context) {
	id, ok := logIDParam(c)
	if !ok {
		return
	}
	entry, found, err := h.ledger.GetEntry(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GetType handles GET /types/:name.
func (h *LedgerHandler) GetType(c *gin.Context) {
	info, found, err := h.ledger.GetTypeInfo(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "type not registered"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// BySubmitter handles GET /submitters/:submitter/activities.
func (h *LedgerHandler) BySubmitter(c *gin.Context) {
	ids, err := h.ledger.GetBySubmitter(c.Request.Context(), c.Param("submitter"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log_ids": ids})
}

// BySubject handles GET /subjects/:id/activities.
func (h *LedgerHandler) BySubject(c *gin.Context) {
	subjectID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || subjectID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject id must be a positive integer"})
		return
	}
	ids, err := h.ledger.GetBySubject(c.Request.Context(), subjectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log_ids": ids})
}

// Status handles GET /ledger/status.
func (h *LedgerHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	paused, err := h.ledger.IsPaused(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	count, err := h.ledger.EntryCount(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"paused":              paused,
		"entries":             count,
		"max_entries_per_key": h.ledger.MaxEntriesPerKey(),
	})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// logIDParam parses the :id path parameter, writing the 400 response itself
// when the value is not a positive integer.
func logIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "log id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// respondError maps ledger errors onto HTTP statuses and stable error codes.
func (h *LedgerHandler) respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, actledger.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, actledger.ErrUnauthorized):
		status, code = http.StatusForbidden, "unauthorized"
	case errors.Is(err, actledger.ErrInvalidParam):
		status, code = http.StatusBadRequest, "invalid_param"
	case errors.Is(err, actledger.ErrPaused):
		status, code = http.StatusLocked, "paused"
	case errors.Is(err, actledger.ErrAlreadyVerified):
		status, code = http.StatusConflict, "already_verified"
	case errors.Is(err, actledger.ErrAlreadyDisputed):
		status, code = http.StatusConflict, "already_disputed"
	case errors.Is(err, actledger.ErrAlreadyExists):
		status, code = http.StatusConflict, "already_exists"
	case errors.Is(err, actledger.ErrCapacityExceeded):
		status, code = http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, actledger.ErrEvidenceFull):
		status, code = http.StatusConflict, "evidence_full"
	default:
		h.logger.Error("ledger operation failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error", "code": code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
