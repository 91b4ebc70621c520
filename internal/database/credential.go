package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/logang-di/dsx-connect/internal/dcctx"
)

// HmacCredential is a signing credential issued to a connector at registration or
// reissue. The secret is encrypted at rest with the global AES key; only the key id is
// carried on the wire.
type HmacCredential struct {
	KeyId           string     `gorm:"column:key_id;primaryKey"`
	ConnectorId     uuid.UUID  `gorm:"column:connector_id;index"`
	EncryptedSecret string     `gorm:"column:encrypted_secret"`
	RevokedAt       *time.Time `gorm:"column:revoked_at"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (c *HmacCredential) Validate() error {
	result := &multierror.Error{}

	if c.KeyId == "" {
		result = multierror.Append(result, errors.New("key id is required"))
	}

	if c.ConnectorId == uuid.Nil {
		result = multierror.Append(result, errors.New("connector id is required"))
	}

	if c.EncryptedSecret == "" {
		result = multierror.Append(result, errors.New("encrypted secret is required"))
	}

	return result.ErrorOrNil()
}

func (c *HmacCredential) IsRevoked() bool {
	return c.RevokedAt != nil
}

func (s *service) CreateHmacCredential(ctx context.Context, c *HmacCredential) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return s.session(ctx).Create(c).Error
}

func (s *service) GetHmacCredential(ctx context.Context, keyId string) (*HmacCredential, error) {
	var c HmacCredential
	result := s.session(ctx).First(&c, "key_id = ?", keyId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return &c, nil
}

// ReplaceHmacCredential revokes all live credentials for the connector and installs the
// new one in a single transaction, so a reissue can never leave a connector with zero or
// two live credentials.
func (s *service) ReplaceHmacCredential(ctx context.Context, c *HmacCredential) error {
	if err := c.Validate(); err != nil {
		return err
	}

	now := dcctx.GetClock(ctx).Now().UTC()

	return s.session(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Model(&HmacCredential{}).
			Where("connector_id = ? AND revoked_at IS NULL", c.ConnectorId).
			Update("revoked_at", &now).Error; err != nil {
			return errors.Wrap(err, "failed to revoke existing credentials")
		}

		if err := tx.Create(c).Error; err != nil {
			return errors.Wrap(err, "failed to create replacement credential")
		}

		return nil
	})
}
