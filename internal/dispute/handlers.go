package dispute

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tdhoang/trunggian/internal/auth"
	"github.com/tdhoang/trunggian/internal/escrow"
	"github.com/tdhoang/trunggian/internal/validation"
)

// Handler provides HTTP endpoints for dispute operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new dispute handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up dispute routes (API key required).
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/disputes", h.OpenDispute)
	r.GET("/disputes/:id", h.GetDispute)
	r.GET("/transactions/:id/disputes", h.ListByTransaction)
	r.POST("/disputes/:id/respond", h.Respond)
	r.POST("/disputes/:id/cancel", h.CancelDispute)
	r.POST("/disputes/:id/escalate", h.Escalate)
}

// RegisterAdminRoutes sets up the admin review queue and resolution.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/disputes", h.ListQueue)
	r.POST("/disputes/:id/resolve", h.Resolve)
}

// OpenDispute handles POST /v1/disputes
func (h *Handler) OpenDispute(c *gin.Context) {
	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "transactionId and reason are required",
		})
		return
	}
	req.ComplainantID = auth.GetCustomerID(c)
	req.Description = validation.SanitizeString(req.Description, validation.MaxDescriptionLength)

	d, err := h.service.Open(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dispute": d})
}

// GetDispute handles GET /v1/disputes/:id
func (h *Handler) GetDispute(c *gin.Context) {
	d, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.canView(c, d) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Bạn không tham gia khiếu nại này"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// ListByTransaction handles GET /v1/transactions/:id/disputes
func (h *Handler) ListByTransaction(c *gin.Context) {
	disputes, err := h.service.ListByTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	caller := auth.GetCustomerID(c)
	if !auth.IsAdmin(c) {
		visible := disputes[:0]
		for _, d := range disputes {
			if caller == d.ComplainantID || caller == d.RespondentID {
				visible = append(visible, d)
			}
		}
		disputes = visible
	}

	c.JSON(http.StatusOK, gin.H{"disputes": disputes, "count": len(disputes)})
}

// Respond handles POST /v1/disputes/:id/respond
func (h *Handler) Respond(c *gin.Context) {
	var req struct {
		Response string   `json:"response" binding:"required"`
		Evidence []string `json:"evidence"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "response is required",
		})
		return
	}
	req.Response = validation.SanitizeString(req.Response, validation.MaxDescriptionLength)

	d, err := h.service.Respond(c.Request.Context(), c.Param("id"), auth.GetCustomerID(c), req.Response, req.Evidence)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// CancelDispute handles POST /v1/disputes/:id/cancel
func (h *Handler) CancelDispute(c *gin.Context) {
	d, err := h.service.Cancel(c.Request.Context(), c.Param("id"), auth.GetCustomerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// Escalate handles POST /v1/disputes/:id/escalate
func (h *Handler) Escalate(c *gin.Context) {
	d, err := h.service.Escalate(c.Request.Context(), c.Param("id"), auth.GetCustomerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// ListQueue handles GET /v1/admin/disputes?status=escalated (admin only)
func (h *Handler) ListQueue(c *gin.Context) {
	status := Status(c.DefaultQuery("status", string(StatusEscalated)))

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	disputes, err := h.service.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": disputes, "count": len(disputes)})
}

// Resolve handles POST /v1/admin/disputes/:id/resolve (admin only)
func (h *Handler) Resolve(c *gin.Context) {
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
	if req.Outcome != "complete" && req.Outcome != "cancel" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "outcome must be complete or cancel",
		})
		return
	}

	d, err := h.service.Resolve(c.Request.Context(), c.Param("id"),
		req.Outcome == "complete",
		validation.SanitizeString(req.Resolution, 500))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

func (h *Handler) canView(c *gin.Context, d *Dispute) bool {
	caller := auth.GetCustomerID(c)
	return caller == d.ComplainantID || caller == d.RespondentID || auth.IsAdmin(c)
}

// respondError maps service errors to HTTP responses.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "Đã xảy ra lỗi, vui lòng thử lại sau"

	switch {
	case errors.Is(err, ErrDisputeNotFound):
		status, code, message = http.StatusNotFound, "not_found", "Không tìm thấy khiếu nại"
	case errors.Is(err, escrow.ErrTransactionNotFound):
		status, code, message = http.StatusNotFound, "not_found", "Không tìm thấy giao dịch"
	case errors.Is(err, ErrDuplicateDispute):
		status, code, message = http.StatusConflict, "duplicate_dispute", "Giao dịch này đã có khiếu nại đang xử lý"
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, escrow.ErrPermissionDenied):
		status, code, message = http.StatusForbidden, "forbidden", "Bạn không có quyền thực hiện thao tác này"
	case errors.Is(err, ErrInvalidState), errors.Is(err, escrow.ErrInvalidTransition), errors.Is(err, escrow.ErrFundsNotLocked):
		status, code, message = http.StatusConflict, "invalid_state", "Trạng thái khiếu nại không cho phép thao tác này"
	case errors.Is(err, ErrInvalidReason):
		status, code, message = http.StatusBadRequest, "invalid_reason", "Lý do khiếu nại không hợp lệ"
	case errors.Is(err, ErrTooEarlyToEscalate):
		status, code, message = http.StatusConflict, "too_early", "Chưa đủ 48 giờ để chuyển khiếu nại lên quản trị viên"
	}

	c.JSON(status, gin.H{"error": code, "message": message})
}
