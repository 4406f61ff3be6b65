package customer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	cust := &Customer{
		ID:          "cus_1",
		Username:    "nguyenvana",
		DisplayName: "Nguyễn Văn A",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	// Create
	err := store.Create(ctx, cust)
	require.NoError(t, err)

	// Get by ID
	got, err := store.Get(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "nguyenvana", got.Username)
	assert.Equal(t, "Nguyễn Văn A", got.DisplayName)

	// Get by username
	got, err = store.GetByUsername(ctx, "nguyenvana")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", got.ID)

	// Update
	got.DisplayName = "Anh A"
	err = store.Update(ctx, got)
	require.NoError(t, err)

	got2, _ := store.Get(ctx, "cus_1")
	assert.Equal(t, "Anh A", got2.DisplayName)
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrCustomerNotFound)

	_, err = store.GetByUsername(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrCustomerNotFound)

	err = store.Update(ctx, &Customer{ID: "nonexistent"})
	assert.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestMemoryStore_DuplicateUsername(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Create(ctx, &Customer{ID: "cus_1", Username: "nguyenvana"})
	err := store.Create(ctx, &Customer{ID: "cus_2", Username: "nguyenvana"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}
