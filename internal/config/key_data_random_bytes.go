package config

import (
	"context"
	"crypto/rand"
	"sync"

	"github.com/pkg/errors"
)

// KeyDataRandomBytes generates key material once per process. Useful for tests and dev
// setups; anything encrypted with it cannot be decrypted after a restart.
type KeyDataRandomBytes struct {
	Random bool `json:"random" yaml:"random"`

	NumBytes int `json:"num_bytes,omitempty" yaml:"num_bytes,omitempty"`

	data []byte
	err  error
	once sync.Once
}

func (kd *KeyDataRandomBytes) generate(ctx context.Context) {
	kd.once.Do(func() {
		numBytes := kd.NumBytes
		if numBytes <= 0 {
			numBytes = 32
		}

		data := make([]byte, numBytes)
		if _, err := rand.Read(data); err != nil {
			kd.err = errors.Wrap(err, "failed to generate random key data")
			return
		}

		kd.data = data
	})
}

func (kd *KeyDataRandomBytes) HasData(ctx context.Context) bool {
	kd.generate(ctx)
	return kd.err == nil
}

func (kd *KeyDataRandomBytes) GetData(ctx context.Context) ([]byte, error) {
	kd.generate(ctx)
	if kd.err != nil {
		return nil, kd.err
	}

	return kd.data, nil
}
