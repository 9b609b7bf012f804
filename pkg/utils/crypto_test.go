package utils_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postbridge/postbridge/pkg/utils"
)

func TestEncryptDecrypt(t *testing.T) {
	key := []byte(strings.Repeat("k", 32))

	t.Run("round trip", func(t *testing.T) {
		sealed, err := utils.Encrypt([]byte("ya29.a0-access-token"), key)
		require.NoError(t, err)
		assert.NotContains(t, sealed, "access-token")

		plain, err := utils.Decrypt(sealed, key)
		require.NoError(t, err)
		assert.Equal(t, "ya29.a0-access-token", plain)
	})

	t.Run("same plaintext seals differently", func(t *testing.T) {
		a, err := utils.Encrypt([]byte("token"), key)
		require.NoError(t, err)
		b, err := utils.Encrypt([]byte("token"), key)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("wrong key fails", func(t *testing.T) {
		sealed, err := utils.Encrypt([]byte("token"), key)
		require.NoError(t, err)

		_, err = utils.Decrypt(sealed, []byte(strings.Repeat("x", 32)))
		assert.Error(t, err)
	})

	t.Run("invalid key length", func(t *testing.T) {
		_, err := utils.Encrypt([]byte("token"), []byte("short"))
		assert.Error(t, err)
	})

	t.Run("truncated ciphertext", func(t *testing.T) {
		_, err := utils.Decrypt("YWJj", key)
		assert.Error(t, err)
	})
}
