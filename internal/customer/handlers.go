package customer

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tdhoang/trunggian/internal/auth"
	"github.com/tdhoang/trunggian/internal/idgen"
	"github.com/tdhoang/trunggian/internal/validation"
)

// Handler provides HTTP endpoints for customer accounts.
type Handler struct {
	store   Store
	authMgr *auth.Manager
}

// NewHandler creates a new customer handler.
func NewHandler(store Store, authMgr *auth.Manager) *Handler {
	return &Handler{store: store, authMgr: authMgr}
}

// RegisterPublicRoutes sets up registration and lookup routes.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/customers", h.Register)
	r.GET("/customers/:id", h.GetCustomer)
	r.GET("/customers/username/:username", h.GetByUsername)
}

// RegisterProtectedRoutes sets up routes that require API key auth.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.PATCH("/customers/:id", h.UpdateCustomer)
	r.POST("/customers/:id/keys", h.CreateKey)
	r.GET("/customers/:id/keys", h.ListKeys)
	r.DELETE("/customers/:id/keys/:keyId", h.RevokeKey)
}

// Register handles POST /v1/customers — create an account and issue its
// first API key.
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username" binding:"required"`
		DisplayName string `json:"displayName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "username required"})
		return
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if !validation.IsValidUsername(req.Username) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_username",
			"message": "Tên đăng nhập phải từ 3-32 ký tự, chỉ gồm chữ thường, số, dấu chấm và gạch dưới",
		})
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	now := time.Now()
	cust := &Customer{
		ID:          idgen.WithPrefix("cus_"),
		Username:    req.Username,
		DisplayName: validation.SanitizeString(req.DisplayName, 200),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.store.Create(c.Request.Context(), cust); err != nil {
		if err == ErrUsernameTaken {
			c.JSON(http.StatusConflict, gin.H{"error": "username_taken", "message": "Tên đăng nhập đã được sử dụng"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create customer"})
		return
	}

	rawKey, keyInfo, err := h.authMgr.GenerateKey(c.Request.Context(), cust.ID, "Primary key")
	if err != nil {
		c.JSON(http.StatusCreated, gin.H{
			"customer": cust,
			"warning":  "Customer created but key generation failed. Create a key separately.",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"customer": cust,
		"apiKey":   rawKey,
		"keyId":    keyInfo.ID,
		"warning":  "Store this API key securely. It will not be shown again.",
	})
}

// GetCustomer handles GET /v1/customers/:id
func (h *Handler) GetCustomer(c *gin.Context) {
	cust, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == ErrCustomerNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Không tìm thấy khách hàng"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": cust})
}

// GetByUsername handles GET /v1/customers/username/:username — used to
// look up a trading partner before opening a transaction.
func (h *Handler) GetByUsername(c *gin.Context) {
	username := strings.ToLower(c.Param("username"))
	cust, err := h.store.GetByUsername(c.Request.Context(), username)
	if err != nil {
		if err == ErrCustomerNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Không tìm thấy khách hàng"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": cust})
}

// UpdateCustomer handles PATCH /v1/customers/:id
func (h *Handler) UpdateCustomer(c *gin.Context) {
	id := c.Param("id")
	if auth.GetCustomerID(c) != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Bạn không có quyền truy cập tài khoản này"})
		return
	}

	cust, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if err == ErrCustomerNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Không tìm thấy khách hàng"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	var req struct {
		DisplayName *string `json:"displayName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	if req.DisplayName != nil {
		cust.DisplayName = validation.SanitizeString(*req.DisplayName, 200)
	}
	cust.UpdatedAt = time.Now()

	if err := h.store.Update(c.Request.Context(), cust); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to update customer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": cust})
}

// CreateKey handles POST /v1/customers/:id/keys
func (h *Handler) CreateKey(c *gin.Context) {
	id := c.Param("id")
	if auth.GetCustomerID(c) != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Bạn không có quyền truy cập tài khoản này"})
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Name == "" {
		req.Name = "API key"
	}

	rawKey, keyInfo, err := h.authMgr.GenerateKey(c.Request.Context(), id, validation.SanitizeString(req.Name, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"apiKey":  rawKey,
		"keyId":   keyInfo.ID,
		"name":    keyInfo.Name,
		"warning": "Store this key securely. It will not be shown again.",
	})
}

// ListKeys handles GET /v1/customers/:id/keys
func (h *Handler) ListKeys(c *gin.Context) {
	id := c.Param("id")
	if auth.GetCustomerID(c) != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Bạn không có quyền truy cập tài khoản này"})
		return
	}

	keys, err := h.authMgr.ListKeys(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(keys))
	for _, k := range keys {
		out = append(out, gin.H{
			"id":        k.ID,
			"name":      k.Name,
			"createdAt": k.CreatedAt,
			"lastUsed":  k.LastUsed,
			"revoked":   k.Revoked,
		})
	}
	c.JSON(http.StatusOK, gin.H{"keys": out, "count": len(out)})
}

// RevokeKey handles DELETE /v1/customers/:id/keys/:keyId
func (h *Handler) RevokeKey(c *gin.Context) {
	id := c.Param("id")
	if auth.GetCustomerID(c) != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Bạn không có quyền truy cập tài khoản này"})
		return
	}

	keyID := c.Param("keyId")
	if err := h.authMgr.RevokeKey(c.Request.Context(), keyID, id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "key_not_found", "message": "key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "key revoked", "keyId": keyID})
}
