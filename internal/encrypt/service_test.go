package encrypt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logang-di/dsx-connect/internal/config"
)

func testConfig() config.C {
	root := &config.Root{}
	root.SystemAuth.GlobalAESKey = &config.KeyDataRandomBytes{}
	return config.FromRoot(root)
}

func TestEncryptService(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip bytes", func(t *testing.T) {
		e := NewEncryptService(testConfig())

		plaintext := []byte("hmac-secret-material")
		encrypted, err := e.EncryptGlobal(ctx, plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, encrypted)

		decrypted, err := e.DecryptGlobal(ctx, encrypted)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("round trip string", func(t *testing.T) {
		e := NewEncryptService(testConfig())

		encrypted, err := e.EncryptStringGlobal(ctx, "hmac-secret-material")
		require.NoError(t, err)

		decrypted, err := e.DecryptStringGlobal(ctx, encrypted)
		require.NoError(t, err)
		assert.Equal(t, "hmac-secret-material", decrypted)
	})

	t.Run("nonce makes ciphertext unique", func(t *testing.T) {
		e := NewEncryptService(testConfig())

		a, err := e.EncryptStringGlobal(ctx, "same-input")
		require.NoError(t, err)
		b, err := e.EncryptStringGlobal(ctx, "same-input")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("tampered ciphertext fails", func(t *testing.T) {
		e := NewEncryptService(testConfig())

		encrypted, err := e.EncryptGlobal(ctx, []byte("data"))
		require.NoError(t, err)

		encrypted[len(encrypted)-1] ^= 0xff
		_, err = e.DecryptGlobal(ctx, encrypted)
		require.Error(t, err)
	})

	t.Run("different keys cannot decrypt", func(t *testing.T) {
		a := NewEncryptService(testConfig())
		b := NewEncryptService(testConfig())

		encrypted, err := a.EncryptStringGlobal(ctx, "data")
		require.NoError(t, err)

		_, err = b.DecryptStringGlobal(ctx, encrypted)
		require.Error(t, err)
	})

	t.Run("no key configured", func(t *testing.T) {
		e := NewEncryptService(config.FromRoot(&config.Root{}))

		_, err := e.EncryptGlobal(ctx, []byte("data"))
		require.Error(t, err)
	})
}
