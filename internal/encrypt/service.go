package encrypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/config"
)

type service struct {
	cfg config.C

	globalAESKey     []byte
	globalAESKeyErr  error
	globalAESKeyOnce sync.Once
}

func NewEncryptService(cfg config.C) E {
	return &service{
		cfg: cfg,
	}
}

func (s *service) getGlobalAESKey(ctx context.Context) ([]byte, error) {
	s.globalAESKeyOnce.Do(func() {
		if s == nil || s.cfg == nil || s.cfg.GetRoot() == nil {
			s.globalAESKeyErr = errors.New("no global AES key configured")
			return
		}

		kd := s.cfg.GetRoot().SystemAuth.GlobalAESKey
		if kd == nil || !kd.HasData(ctx) {
			s.globalAESKeyErr = errors.New("global AES key has no data")
			return
		}

		data, err := kd.GetData(ctx)
		if err != nil {
			s.globalAESKeyErr = errors.Wrap(err, "failed to get global AES key")
			return
		}

		s.globalAESKey = data
	})

	return s.globalAESKey, s.globalAESKeyErr
}

func encryptWithKey(key []byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AES cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCM")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

func decryptWithKey(key []byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AES cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCM")
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("data length is too short to contain nonce")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt data")
	}

	return plaintext, nil
}

func (s *service) EncryptGlobal(ctx context.Context, data []byte) ([]byte, error) {
	key, err := s.getGlobalAESKey(ctx)
	if err != nil {
		return nil, err
	}

	return encryptWithKey(key, data)
}

func (s *service) EncryptStringGlobal(ctx context.Context, data string) (string, error) {
	encrypted, err := s.EncryptGlobal(ctx, []byte(data))
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(encrypted), nil
}

func (s *service) DecryptGlobal(ctx context.Context, data []byte) ([]byte, error) {
	key, err := s.getGlobalAESKey(ctx)
	if err != nil {
		return nil, err
	}

	return decryptWithKey(key, data)
}

func (s *service) DecryptStringGlobal(ctx context.Context, base64Str string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(base64Str)
	if err != nil {
		return "", errors.Wrap(err, "failed to base64 decode encrypted data")
	}

	decrypted, err := s.DecryptGlobal(ctx, decoded)
	if err != nil {
		return "", err
	}

	return string(decrypted), nil
}

var _ E = (*service)(nil)
