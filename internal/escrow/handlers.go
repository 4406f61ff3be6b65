package escrow

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tdhoang/trunggian/internal/auth"
	"github.com/tdhoang/trunggian/internal/balance"
	"github.com/tdhoang/trunggian/internal/validation"
)

// Handler provides HTTP endpoints for transaction operations.
type Handler struct {
	service *Service
	limits  Limits
}

// NewHandler creates a new transaction handler.
func NewHandler(service *Service, limits Limits) *Handler {
	return &Handler{service: service, limits: limits}
}

// RegisterProtectedRoutes sets up transaction routes (API key required).
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/transactions", h.CreateTransaction)
	r.GET("/transactions/:id", h.GetTransaction)
	r.GET("/transactions/code/:code", h.GetByCode)
	r.GET("/customers/:id/transactions", auth.RequireOwnership("id"), h.ListTransactions)
	r.POST("/transactions/:id/confirm", h.ConfirmTransaction)
	r.POST("/transactions/:id/ship", h.MarkShipped)
	r.POST("/transactions/:id/complete", h.CompleteTransaction)
	r.POST("/transactions/:id/cancel", h.CancelTransaction)
}

// RegisterAdminRoutes sets up admin-only resolution routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/transactions/:id/resolve", h.ResolveTransaction)
}

// CreateTransaction handles POST /v1/transactions
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "partnerId, role and amount are required",
		})
		return
	}
	req.CreatorID = auth.GetCustomerID(c)

	validators := []func() *validation.ValidationError{
		validation.ValidCustomerID("partnerId", req.PartnerID),
		validation.PositiveAmount("amount", req.Amount, h.limits.MinAmount, h.limits.MaxAmount),
		validation.MaxLength("description", req.Description, validation.MaxDescriptionLength),
	}
	if req.DurationHours != 0 { // omitted duration falls back to the service default
		validators = append(validators, validation.DurationHours("durationHours", req.DurationHours, h.limits.MaxDurationHours))
	}
	if errs := validation.Validate(validators...); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	req.Description = validation.SanitizeString(req.Description, validation.MaxDescriptionLength)

	txn, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

// GetTransaction handles GET /v1/transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	txn, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.canView(c, txn) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Bạn không tham gia giao dịch này"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// GetByCode handles GET /v1/transactions/code/:code
func (h *Handler) GetByCode(c *gin.Context) {
	txn, err := h.service.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.canView(c, txn) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Bạn không tham gia giao dịch này"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// ListTransactions handles GET /v1/customers/:id/transactions. Ownership
// of the :id account is enforced by auth.RequireOwnership at registration.
func (h *Handler) ListTransactions(c *gin.Context) {
	customerID := c.Param("id")

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	txns, err := h.service.ListByCustomer(c.Request.Context(), customerID, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"count":        len(txns),
	})
}

// ConfirmTransaction handles POST /v1/transactions/:id/confirm
func (h *Handler) ConfirmTransaction(c *gin.Context) {
	txn, err := h.service.Confirm(c.Request.Context(), c.Param("id"), auth.GetCustomerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// MarkShipped handles POST /v1/transactions/:id/ship
func (h *Handler) MarkShipped(c *gin.Context) {
	txn, err := h.service.MarkShipped(c.Request.Context(), c.Param("id"), auth.GetCustomerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// CompleteTransaction handles POST /v1/transactions/:id/complete
func (h *Handler) CompleteTransaction(c *gin.Context) {
	txn, err := h.service.Complete(c.Request.Context(), c.Param("id"), auth.GetCustomerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// CancelTransaction handles POST /v1/transactions/:id/cancel
func (h *Handler) CancelTransaction(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	req.Reason = validation.SanitizeString(req.Reason, 500)

	txn, err := h.service.Cancel(c.Request.Context(), c.Param("id"), auth.GetCustomerID(c), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// ResolveTransaction handles POST /v1/transactions/:id/resolve (admin only)
func (h *Handler) ResolveTransaction(c *gin.Context) {
	var req struct {
		Outcome    string `json:"outcome" binding:"required"` // "complete" or "cancel"
		Resolution string `json:"resolution"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "outcome is required (complete or cancel)",
		})
		return
	}

	var action Action
	switch req.Outcome {
	case "complete":
		action = ActionResolveComplete
	case "cancel":
		action = ActionResolveCancel
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "outcome must be complete or cancel",
		})
		return
	}

	txn, err := h.service.Resolve(c.Request.Context(), c.Param("id"), action,
		validation.SanitizeString(req.Resolution, 500))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// canView reports whether the caller may read this transaction.
func (h *Handler) canView(c *gin.Context, t *Transaction) bool {
	caller := auth.GetCustomerID(c)
	return caller == t.BuyerID || caller == t.SellerID || auth.IsAdmin(c)
}

// respondError maps service errors to HTTP responses.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "Đã xảy ra lỗi, vui lòng thử lại sau"

	switch {
	case errors.Is(err, ErrTransactionNotFound):
		status, code, message = http.StatusNotFound, "not_found", "Không tìm thấy giao dịch"
	case errors.Is(err, ErrSelfTransaction):
		status, code, message = http.StatusBadRequest, "self_transaction", "Không thể tạo giao dịch với chính mình"
	case errors.Is(err, ErrPartnerNotFound):
		status, code, message = http.StatusNotFound, "partner_not_found", "Không tìm thấy đối tác giao dịch"
	case errors.Is(err, ErrPermissionDenied):
		status, code, message = http.StatusForbidden, "forbidden", "Bạn không có quyền thực hiện thao tác này"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrFundsNotLocked):
		status, code, message = http.StatusConflict, "invalid_state", "Trạng thái giao dịch không cho phép thao tác này"
	case errors.Is(err, ErrInvalidAmount):
		status, code, message = http.StatusBadRequest, "invalid_amount", "Số tiền giao dịch không hợp lệ"
	case errors.Is(err, ErrInvalidDuration):
		status, code, message = http.StatusBadRequest, "invalid_duration", "Thời hạn giao dịch không hợp lệ"
	case errors.Is(err, balance.ErrInsufficientBalance):
		status, code, message = http.StatusPaymentRequired, "insufficient_balance", "Số dư không đủ để thực hiện giao dịch"
	}

	c.JSON(status, gin.H{"error": code, "message": message})
}
