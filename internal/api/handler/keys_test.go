package handler_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/greeneye/internal/api/handler"
	"github.com/kiranshivaraju/greeneye/pkg/models"
)

func TestGenerateRawKey_UniqueAndPrefixed(t *testing.T) {
	a, err := handler.GenerateRawKey()
	require.NoError(t, err)
	b, err := handler.GenerateRawKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, handler.RawKeyPrefix))
	assert.Len(t, a, len(handler.RawKeyPrefix)+48)
	assert.NotEqual(t, a, b)
}

func TestNewAPIKey_HashesAndIndexesPrefix(t *testing.T) {
	raw := "ge_0123456789abcdef0123456789abcdef"
	tenantID := uuid.New()

	key, err := handler.NewAPIKey(tenantID, "drone-uploader", raw, []string{models.ScopeAnalyze})
	require.NoError(t, err)

	assert.Equal(t, tenantID, key.TenantID)
	assert.Equal(t, "ge_01234", key.KeyPrefix)
	assert.NotEqual(t, raw, key.KeyHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(raw)))
	assert.NotEqual(t, uuid.Nil, key.ID)
	assert.False(t, key.CreatedAt.IsZero())
}

func TestNewAPIKey_TooShort(t *testing.T) {
	_, err := handler.NewAPIKey(uuid.New(), "x", "ge_1", nil)
	assert.Error(t, err)
}
