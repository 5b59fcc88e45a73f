package cryptoutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHexString(t *testing.T) {
	assert.True(t, IsHexString("0123456789abcdefABCDEF"))
	assert.True(t, IsHexString(""))
	assert.False(t, IsHexString("xyz"))
	assert.False(t, IsHexString("deadbeef "))
}

func TestResolveKeyRaw(t *testing.T) {
	key, err := ResolveKey(strings.Repeat("k", 32), 32)
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestResolveKeyHex(t *testing.T) {
	key, err := ResolveKey(strings.Repeat("ab", 32), 32)
	require.NoError(t, err)
	assert.Len(t, key, 32)
	assert.Equal(t, byte(0xab), key[0])
}

func TestResolveKeyTooShort(t *testing.T) {
	_, err := ResolveKey("short", 32)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")
}

func TestResolveKeyHexTooShort(t *testing.T) {
	// 64 hex chars decoding to 32 bytes is the minimum; require more.
	_, err := ResolveKey(strings.Repeat("ab", 32), 64)
	require.Error(t, err)
}
