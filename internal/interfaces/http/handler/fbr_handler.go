package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appsubmission "github.com/pos/backend/internal/application/submission"
	"github.com/pos/backend/internal/domain/fbr"
	"github.com/pos/backend/internal/domain/submission"
	"github.com/pos/backend/internal/interfaces/http/dto"
)

// SubmissionService is the application surface behind the FBR endpoints
type SubmissionService interface {
	Enqueue(ctx context.Context, tenantID, saleID uuid.UUID) (*appsubmission.EntryDTO, error)
	Validate(ctx context.Context, tenantID, saleID uuid.UUID, remote bool) ([]fbr.Violation, error)
	Requeue(ctx context.Context, tenantID, entryID uuid.UUID) (*appsubmission.EntryDTO, error)
	ListQueue(ctx context.Context, tenantID uuid.UUID, state submission.State, page, pageSize int) (*appsubmission.QueueListResult, error)
	Summary(ctx context.Context, tenantID uuid.UUID) (*appsubmission.QueueSummaryDTO, error)
}

// QueueRunner triggers one worker pass over the due queue
type QueueRunner interface {
	RunOnce(ctx context.Context) (*appsubmission.RunSummary, error)
}

// FBRHandler serves the FBR submission queue endpoints
type FBRHandler struct {
	BaseHandler
	service SubmissionService
	runner  QueueRunner
	audit   submission.AuditLog
	logger  *zap.Logger
}

// NewFBRHandler creates a new FBR handler
func NewFBRHandler(service SubmissionService, runner QueueRunner, audit submission.AuditLog, logger *zap.Logger) *FBRHandler {
	return &FBRHandler{
		service: service,
		runner:  runner,
		audit:   audit,
		logger:  logger,
	}
}

// SubmitSale enqueues a sale for FBR submission
// POST /api/v1/sales/:id/fbr/submit
func (h *FBRHandler) SubmitSale(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant context required")
		return
	}
	saleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid sale ID")
		return
	}

	entry, err := h.service.Enqueue(c.Request.Context(), tenantID, saleID)
	if err != nil {
		var verrs *fbr.ValidationErrors
		if errors.As(err, &verrs) {
			h.invoiceInvalid(c, verrs.Violations)
			return
		}
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, entry)
}

// validateResult is the response body of the validation endpoint
type validateResult struct {
	Valid      bool            `json:"valid"`
	Violations []fbr.Violation `json:"violations"`
}

// ValidateSale dry-runs the invoice transform without touching the queue.
// With ?remote=true the authority's validation endpoint is consulted as well.
// POST /api/v1/sales/:id/fbr/validate
func (h *FBRHandler) ValidateSale(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant context required")
		return
	}
	saleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid sale ID")
		return
	}
	remote := c.Query("remote") == "true"

	violations, err := h.service.Validate(c.Request.Context(), tenantID, saleID, remote)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if violations == nil {
		violations = []fbr.Violation{}
	}
	h.Success(c, validateResult{Valid: len(violations) == 0, Violations: violations})
}

// ListQueue lists the tenant's queue entries in one state, newest first
// GET /api/v1/fbr/queue?status=PENDING&page=1&page_size=20
func (h *FBRHandler) ListQueue(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant context required")
		return
	}

	state := submission.State(c.DefaultQuery("status", string(submission.StatePending)))
	if !state.IsValid() {
		h.BadRequest(c, "Unknown queue status: "+string(state))
		return
	}

	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid pagination parameters")
		return
	}

	result, err := h.service.ListQueue(c.Request.Context(), tenantID, state, req.Page, req.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Entries, result.Total, result.Page, result.PageSize)
}

// QueueSummary returns the tenant's per-state entry counts
// GET /api/v1/fbr/queue/summary
func (h *FBRHandler) QueueSummary(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant context required")
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// RequeueEntry starts a fresh attempt-chain for a dead-lettered entry
// POST /api/v1/fbr/queue/:id/requeue
func (h *FBRHandler) RequeueEntry(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant context required")
		return
	}
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid entry ID")
		return
	}

	entry, err := h.service.Requeue(c.Request.Context(), tenantID, entryID)
	if err != nil {
		var verrs *fbr.ValidationErrors
		if errors.As(err, &verrs) {
			h.invoiceInvalid(c, verrs.Violations)
			return
		}
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, entry)
}

// auditItem is one line of a sale's submission history
type auditItem struct {
	EntryID      uuid.UUID `json:"entry_id"`
	InvoiceRefNo string    `json:"invoice_ref_no"`
	Outcome      string    `json:"outcome"`
	AttemptCount int       `json:"attempt_count"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SaleHistory returns a sale's submission audit trail, oldest first
// GET /api/v1/sales/:id/fbr/history
func (h *FBRHandler) SaleHistory(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant context required")
		return
	}
	saleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid sale ID")
		return
	}

	records, err := h.audit.ListBySale(c.Request.Context(), tenantID, saleID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]auditItem, len(records))
	for i, rec := range records {
		items[i] = auditItem{
			EntryID:      rec.EntryID,
			InvoiceRefNo: rec.InvoiceRefNo,
			Outcome:      string(rec.Outcome),
			AttemptCount: rec.AttemptCount,
			Detail:       rec.Detail,
			CreatedAt:    rec.CreatedAt,
		}
	}
	h.Success(c, items)
}

// RunQueue triggers one worker pass and returns its summary. Safe to call
// while the embedded ticker worker is running: claims never overlap.
// POST /api/v1/fbr/queue/run
func (h *FBRHandler) RunQueue(c *gin.Context) {
	summary, err := h.runner.RunOnce(c.Request.Context())
	if err != nil {
		h.logger.Error("manual queue pass failed", zap.Error(err))
		h.InternalError(c, "Queue pass failed")
		return
	}
	h.Success(c, summary)
}

// invoiceInvalid sends the full violation list as a 422
func (h *FBRHandler) invoiceInvalid(c *gin.Context, violations []fbr.Violation) {
	details := make([]dto.ValidationDetail, len(violations))
	for i, v := range violations {
		details[i] = dto.ValidationDetail{Field: v.Field, Code: v.Code, Message: v.Message}
	}
	c.JSON(http.StatusUnprocessableEntity, dto.NewValidationErrorResponse(
		dto.ErrCodeInvoiceInvalid,
		"Invoice validation failed",
		getRequestID(c),
		details,
	))
}
