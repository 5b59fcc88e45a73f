package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, UserID(ctx))

	ctx = SetUserID(ctx, "alice")
	assert.Equal(t, "alice", UserID(ctx))
}

func TestIsAdmin(t *testing.T) {
	ctx := context.Background()
	assert.False(t, IsAdmin(ctx))

	ctx = SetAdmin(ctx)
	assert.True(t, IsAdmin(ctx))
}

func TestKeysDoNotCollide(t *testing.T) {
	ctx := SetAdmin(SetUserID(context.Background(), "alice"))
	assert.Equal(t, "alice", UserID(ctx))
	assert.True(t, IsAdmin(ctx))

	// Admin flag alone must not leak into the user ID.
	ctx = SetAdmin(context.Background())
	assert.Empty(t, UserID(ctx))
}
