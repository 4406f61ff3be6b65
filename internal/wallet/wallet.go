// Package wallet exposes customer-facing balance operations: checking the
// balance, viewing the journal, withdrawing and transferring funds. Top-ups
// are recorded by an admin (payment-gateway deposits are reconciled out of
// band) and credited through the admin route.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tdhoang/trunggian/internal/auth"
	"github.com/tdhoang/trunggian/internal/balance"
	"github.com/tdhoang/trunggian/internal/idgen"
	"github.com/tdhoang/trunggian/internal/logging"
	"github.com/tdhoang/trunggian/internal/validation"
	"github.com/tdhoang/trunggian/internal/vnd"
)

var ErrSelfTransfer = errors.New("cannot transfer to yourself")

// CustomerDirectory checks that a transfer target exists.
type CustomerDirectory interface {
	Exists(ctx context.Context, customerID string) (bool, error)
}

// Handler provides HTTP endpoints for wallet operations.
type Handler struct {
	book      *balance.Book
	customers CustomerDirectory
}

// NewHandler creates a new wallet handler.
func NewHandler(book *balance.Book, customers CustomerDirectory) *Handler {
	return &Handler{book: book, customers: customers}
}

// RegisterProtectedRoutes sets up wallet routes (API key required).
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/wallet/balance", h.GetBalance)
	r.GET("/wallet/history", h.GetHistory)
	r.POST("/wallet/withdraw", h.Withdraw)
	r.POST("/wallet/transfer", h.Transfer)
}

// RegisterAdminRoutes sets up admin-only top-up recording.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/wallet/topup", h.TopUp)
}

// GetBalance handles GET /v1/wallet/balance
func (h *Handler) GetBalance(c *gin.Context) {
	customerID := auth.GetCustomerID(c)
	b, err := h.book.Get(c.Request.Context(), customerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":            b,
		"availableFormatted": vnd.Format(b.Available),
		"lockedFormatted":    vnd.Format(b.Locked),
	})
}

// GetHistory handles GET /v1/wallet/history
func (h *Handler) GetHistory(c *gin.Context) {
	customerID := auth.GetCustomerID(c)

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	entries, err := h.book.History(c.Request.Context(), customerID, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// Withdraw handles POST /v1/wallet/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req struct {
		Amount int64  `json:"amount" binding:"required"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "amount is required",
		})
		return
	}

	customerID := auth.GetCustomerID(c)
	ref := idgen.WithPrefix("wdr_")
	note := validation.SanitizeString(req.Note, 500)

	if err := h.book.Debit(c.Request.Context(), customerID, req.Amount, ref, note); err != nil {
		h.respondError(c, err)
		return
	}

	logging.L(c.Request.Context()).Info("withdrawal recorded",
		"customerId", customerID, "amount", vnd.Format(req.Amount), "reference", ref)
	c.JSON(http.StatusOK, gin.H{
		"reference": ref,
		"amount":    req.Amount,
		"message":   "Đã ghi nhận yêu cầu rút " + vnd.Format(req.Amount),
	})
}

// Transfer handles POST /v1/wallet/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req struct {
		ToID   string `json:"toId" binding:"required"`
		Amount int64  `json:"amount" binding:"required"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "toId and amount are required",
		})
		return
	}

	customerID := auth.GetCustomerID(c)
	if req.ToID == customerID {
		h.respondError(c, ErrSelfTransfer)
		return
	}

	if h.customers != nil {
		ok, err := h.customers.Exists(c.Request.Context(), req.ToID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Không tìm thấy người nhận",
			})
			return
		}
	}

	ref := idgen.WithPrefix("trf_")
	if err := h.book.Transfer(c.Request.Context(), customerID, req.ToID, req.Amount, ref); err != nil {
		h.respondError(c, err)
		return
	}

	logging.L(c.Request.Context()).Info("transfer recorded",
		"from", customerID, "to", req.ToID, "amount", vnd.Format(req.Amount), "reference", ref)
	c.JSON(http.StatusOK, gin.H{
		"reference": ref,
		"amount":    req.Amount,
		"message":   "Đã chuyển " + vnd.Format(req.Amount),
	})
}

// TopUp handles POST /v1/admin/wallet/topup (admin only). The amount may
// be a JSON number or a grouped string like "1.000.000" so an operator can
// paste it straight from a bank statement.
func (h *Handler) TopUp(c *gin.Context) {
	var req struct {
		CustomerID string          `json:"customerId" binding:"required"`
		Amount     json.RawMessage `json:"amount" binding:"required"`
		Note       string          `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "customerId and amount are required",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidCustomerID("customerId", req.CustomerID),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Số tiền không hợp lệ",
		})
		return
	}

	ref := idgen.WithPrefix("top_")
	note := validation.SanitizeString(req.Note, 500)

	if err := h.book.Credit(c.Request.Context(), req.CustomerID, amount, ref, note); err != nil {
		h.respondError(c, err)
		return
	}

	logging.L(c.Request.Context()).Info("top-up recorded",
		"customerId", req.CustomerID, "amount", vnd.Format(amount), "reference", ref)
	c.JSON(http.StatusOK, gin.H{
		"reference": ref,
		"amount":    amount,
	})
}

// parseAmount accepts a JSON number or a Vietnamese-grouped amount string.
func parseAmount(raw json.RawMessage) (int64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return vnd.Parse(s)
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, vnd.ErrInvalidAmount
	}
	return n, nil
}

// respondError maps balance errors to HTTP responses.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "Đã xảy ra lỗi, vui lòng thử lại sau"

	switch {
	case errors.Is(err, balance.ErrInsufficientBalance):
		status, code, message = http.StatusPaymentRequired, "insufficient_balance", "Số dư khả dụng không đủ"
	case errors.Is(err, balance.ErrInvalidAmount):
		status, code, message = http.StatusBadRequest, "invalid_amount", "Số tiền không hợp lệ"
	case errors.Is(err, ErrSelfTransfer):
		status, code, message = http.StatusBadRequest, "self_transfer", "Không thể chuyển tiền cho chính mình"
	}

	c.JSON(status, gin.H{"error": code, "message": message})
}
