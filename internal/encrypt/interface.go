package encrypt

import (
	"context"
)

// E encrypts and decrypts secrets at rest with the global AES key. Connector HMAC
// secrets pass through here before they are persisted.
type E interface {
	EncryptGlobal(ctx context.Context, data []byte) ([]byte, error)
	EncryptStringGlobal(ctx context.Context, data string) (string, error)
	DecryptGlobal(ctx context.Context, data []byte) ([]byte, error)
	DecryptStringGlobal(ctx context.Context, base64 string) (string, error)
}
