package database

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/logang-di/dsx-connect/internal/dcctx"
)

type ConnectorStatus string

const (
	// ConnectorStatusRegistered means the connector has enrolled but has not yet passed a
	// liveness probe.
	ConnectorStatusRegistered ConnectorStatus = "registered"

	// ConnectorStatusReady means the connector is reachable and eligible for scan work.
	ConnectorStatusReady ConnectorStatus = "ready"

	// ConnectorStatusDegraded means the connector failed its most recent liveness probe.
	// Work targeting it is retried rather than failed outright.
	ConnectorStatusDegraded ConnectorStatus = "degraded"

	// ConnectorStatusUnregistered means the connector has been removed. Its record is
	// retained for result history.
	ConnectorStatusUnregistered ConnectorStatus = "unregistered"
)

// Value implements the driver.Valuer interface for ConnectorStatus
func (s ConnectorStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements the sql.Scanner interface for ConnectorStatus
func (s *ConnectorStatus) Scan(value interface{}) error {
	if value == nil {
		*s = ""
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("cannot convert %T to ConnectorStatus", value)
	}

	*s = ConnectorStatus(strVal)
	return nil
}

// Capability identifies an optional operation a connector supports beyond enumeration
// and reading items.
type Capability string

const (
	CapabilityFullScan   Capability = "full_scan"
	CapabilityRead       Capability = "read"
	CapabilityItemAction Capability = "item_action"
	CapabilityWebhook    Capability = "webhook"
)

// Capabilities is the set of capabilities a connector declared at registration.
type Capabilities []Capability

// Value implements the driver.Valuer interface for Capabilities
func (c Capabilities) Value() (driver.Value, error) {
	if len(c) == 0 {
		return nil, nil
	}

	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface for Capabilities
func (c *Capabilities) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}

	switch v := value.(type) {
	case string:
		return json.Unmarshal([]byte(v), c)
	case []byte:
		return json.Unmarshal(v, c)
	default:
		return fmt.Errorf("cannot convert %T to Capabilities", value)
	}
}

func (c Capabilities) Has(capability Capability) bool {
	for _, v := range c {
		if v == capability {
			return true
		}
	}

	return false
}

type Connector struct {
	ID           uuid.UUID       `gorm:"column:id;primaryKey"`
	DisplayName  string          `gorm:"column:display_name"`
	BaseUrl      string          `gorm:"column:base_url"`
	Capabilities Capabilities    `gorm:"column:capabilities;type:text"`
	Status       ConnectorStatus `gorm:"column:status"`
	HmacKeyId    string          `gorm:"column:hmac_key_id;index"`
	LastSeenAt   *time.Time      `gorm:"column:last_seen_at"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}

func (c *Connector) Validate() error {
	result := &multierror.Error{}

	if c.ID == uuid.Nil {
		result = multierror.Append(result, errors.New("id is required"))
	}

	if c.DisplayName == "" {
		result = multierror.Append(result, errors.New("display name is required"))
	}

	if c.BaseUrl == "" {
		result = multierror.Append(result, errors.New("base url is required"))
	}

	if c.Status == "" {
		result = multierror.Append(result, errors.New("status is required"))
	}

	return result.ErrorOrNil()
}

func (s *service) CreateConnector(ctx context.Context, c *Connector) error {
	if err := c.Validate(); err != nil {
		return err
	}

	result := s.session(ctx).Create(c)
	if result.Error != nil {
		return result.Error
	}

	return nil
}

func (s *service) UpdateConnector(ctx context.Context, c *Connector) error {
	if err := c.Validate(); err != nil {
		return err
	}

	result := s.session(ctx).
		Model(&Connector{}).
		Where("id = ?", c.ID).
		Updates(map[string]interface{}{
			"display_name": c.DisplayName,
			"base_url":     c.BaseUrl,
			"capabilities": c.Capabilities,
			"hmac_key_id":  c.HmacKeyId,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetConnector resolves soft-deleted rows as well: jobs in flight when a connector
// unregisters still need to report against it.
func (s *service) GetConnector(ctx context.Context, id uuid.UUID) (*Connector, error) {
	var c Connector
	result := s.session(ctx).Unscoped().First(&c, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return &c, nil
}

func (s *service) GetConnectorByHmacKeyId(ctx context.Context, keyId string) (*Connector, error) {
	var c Connector
	result := s.session(ctx).First(&c, "hmac_key_id = ?", keyId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return &c, nil
}

func (s *service) ListConnectors(ctx context.Context, statuses ...ConnectorStatus) ([]*Connector, error) {
	q := s.session(ctx)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	var connectors []*Connector
	if result := q.Order("created_at").Find(&connectors); result.Error != nil {
		return nil, result.Error
	}

	return connectors, nil
}

func (s *service) SetConnectorStatus(ctx context.Context, id uuid.UUID, status ConnectorStatus) error {
	result := s.session(ctx).
		Model(&Connector{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *service) SetConnectorHmacKeyId(ctx context.Context, id uuid.UUID, keyId string) error {
	result := s.session(ctx).
		Model(&Connector{}).
		Where("id = ?", id).
		Update("hmac_key_id", keyId)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *service) TouchConnectorLastSeen(ctx context.Context, id uuid.UUID) error {
	now := dcctx.GetClock(ctx).Now().UTC()
	result := s.session(ctx).
		Model(&Connector{}).
		Where("id = ?", id).
		Update("last_seen_at", &now)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// UnregisterConnector marks the connector unregistered, revokes its live credentials,
// and soft deletes it, all in one transaction. Result history referencing the connector
// is retained.
func (s *service) UnregisterConnector(ctx context.Context, id uuid.UUID) error {
	now := dcctx.GetClock(ctx).Now().UTC()

	return s.session(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Model(&Connector{}).
			Where("id = ?", id).
			Update("status", ConnectorStatusUnregistered)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.
			Model(&HmacCredential{}).
			Where("connector_id = ? AND revoked_at IS NULL", id).
			Update("revoked_at", &now).Error; err != nil {
			return errors.Wrap(err, "failed to revoke credentials")
		}

		return tx.Delete(&Connector{}, "id = ?", id).Error
	})
}
