package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdhoang/trunggian/internal/auth"
	"github.com/tdhoang/trunggian/internal/balance"
)

type allCustomers struct{}

func (allCustomers) Exists(_ context.Context, id string) (bool, error) {
	return id != "cus_missing", nil
}

// asCustomer injects the authenticated customer the way the auth
// middleware would.
func asCustomer(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(auth.ContextKeyAPIKey, &auth.APIKey{CustomerID: id})
		c.Set(auth.ContextKeyCustomerID, id)
		c.Next()
	}
}

func setupRouter(t *testing.T, callerID string) (*gin.Engine, *balance.Book) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	book := balance.New(balance.NewMemoryStore())
	h := NewHandler(book, allCustomers{})

	r := gin.New()
	protected := r.Group("/v1", asCustomer(callerID))
	h.RegisterProtectedRoutes(protected)
	admin := r.Group("/v1/admin")
	h.RegisterAdminRoutes(admin)
	return r, book
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetBalance(t *testing.T) {
	r, book := setupRouter(t, "cus_a")
	require.NoError(t, book.Credit(context.Background(), "cus_a", 1_012_000, "test", ""))

	w := doJSON(t, r, http.MethodGet, "/v1/wallet/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Balance            balance.Balance `json:"balance"`
		AvailableFormatted string          `json:"availableFormatted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1_012_000), resp.Balance.Available)
	assert.Equal(t, "1.012.000₫", resp.AvailableFormatted)
}

func TestWithdraw(t *testing.T) {
	r, book := setupRouter(t, "cus_a")
	require.NoError(t, book.Credit(context.Background(), "cus_a", 500_000, "test", ""))

	w := doJSON(t, r, http.MethodPost, "/v1/wallet/withdraw", gin.H{"amount": 200_000})
	require.Equal(t, http.StatusOK, w.Code)

	b, err := book.Get(context.Background(), "cus_a")
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), b.Available)
}

func TestWithdraw_Insufficient(t *testing.T) {
	r, _ := setupRouter(t, "cus_a")

	w := doJSON(t, r, http.MethodPost, "/v1/wallet/withdraw", gin.H{"amount": 200_000})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_balance")
}

func TestTransfer(t *testing.T) {
	r, book := setupRouter(t, "cus_a")
	require.NoError(t, book.Credit(context.Background(), "cus_a", 500_000, "test", ""))

	w := doJSON(t, r, http.MethodPost, "/v1/wallet/transfer", gin.H{"toId": "cus_b", "amount": 150_000})
	require.Equal(t, http.StatusOK, w.Code)

	from, _ := book.Get(context.Background(), "cus_a")
	to, _ := book.Get(context.Background(), "cus_b")
	assert.Equal(t, int64(350_000), from.Available)
	assert.Equal(t, int64(150_000), to.Available)
}

func TestTransfer_SelfRejected(t *testing.T) {
	r, _ := setupRouter(t, "cus_a")

	w := doJSON(t, r, http.MethodPost, "/v1/wallet/transfer", gin.H{"toId": "cus_a", "amount": 100_000})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "self_transfer")
}

func TestTransfer_UnknownRecipient(t *testing.T) {
	r, book := setupRouter(t, "cus_a")
	require.NoError(t, book.Credit(context.Background(), "cus_a", 500_000, "test", ""))

	w := doJSON(t, r, http.MethodPost, "/v1/wallet/transfer", gin.H{"toId": "cus_missing", "amount": 100_000})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// No funds moved.
	b, _ := book.Get(context.Background(), "cus_a")
	assert.Equal(t, int64(500_000), b.Available)
}

func TestTopUp(t *testing.T) {
	r, book := setupRouter(t, "cus_a")

	w := doJSON(t, r, http.MethodPost, "/v1/admin/wallet/topup", gin.H{
		"customerId": "cus_0123456789abcdef01234567",
		"amount":     1_000_000,
		"note":       "VNPay ref 12345",
	})
	require.Equal(t, http.StatusOK, w.Code)

	b, err := book.Get(context.Background(), "cus_0123456789abcdef01234567")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), b.Available)
}

func TestTopUp_GroupedAmountString(t *testing.T) {
	r, book := setupRouter(t, "cus_a")

	// Operators paste amounts with Vietnamese digit grouping.
	w := doJSON(t, r, http.MethodPost, "/v1/admin/wallet/topup", gin.H{
		"customerId": "cus_0123456789abcdef01234567",
		"amount":     "1.000.000",
	})
	require.Equal(t, http.StatusOK, w.Code)

	b, err := book.Get(context.Background(), "cus_0123456789abcdef01234567")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), b.Available)
}

func TestTopUp_MalformedAmountString(t *testing.T) {
	r, _ := setupRouter(t, "cus_a")

	w := doJSON(t, r, http.MethodPost, "/v1/admin/wallet/topup", gin.H{
		"customerId": "cus_0123456789abcdef01234567",
		"amount":     "một triệu",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_amount")
}

func TestTopUp_MalformedCustomerID(t *testing.T) {
	r, _ := setupRouter(t, "cus_a")

	w := doJSON(t, r, http.MethodPost, "/v1/admin/wallet/topup", gin.H{
		"customerId": "not-a-customer",
		"amount":     1_000_000,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_error")
}

func TestHistory(t *testing.T) {
	r, book := setupRouter(t, "cus_a")
	ctx := context.Background()
	require.NoError(t, book.Credit(ctx, "cus_a", 500_000, "top_1", ""))
	require.NoError(t, book.Debit(ctx, "cus_a", 100_000, "wdr_1", ""))

	w := doJSON(t, r, http.MethodGet, "/v1/wallet/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Entries []balance.Entry `json:"entries"`
		Count   int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	// Newest first.
	assert.Equal(t, "withdraw", resp.Entries[0].Type)
	assert.Equal(t, "topup", resp.Entries[1].Type)
}
