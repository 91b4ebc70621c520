package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/logang-di/dsx-connect/internal/database"
)

// RegisterRequest enrolls a connector or updates an existing enrollment.
type RegisterRequest struct {
	// ConnectorUuid is set when a connector re-registers with a known identity.
	ConnectorUuid *uuid.UUID `json:"connector_uuid,omitempty"`

	DisplayName  string                `json:"display_name"`
	BaseUrl      string                `json:"base_url"`
	Capabilities database.Capabilities `json:"capabilities"`

	// ReissueCredentials mints a fresh secret on re-register, atomically revoking the
	// previous one.
	ReissueCredentials bool `json:"reissue_credentials,omitempty"`
}

// RegisterResponse is the one-time credential handoff. HmacSecret is never persisted in
// the clear and never returned again.
type RegisterResponse struct {
	ConnectorUuid uuid.UUID `json:"connector_uuid"`
	HmacKeyId     string    `json:"hmac_key_id,omitempty"`
	HmacSecret    string    `json:"hmac_secret,omitempty"`
}

// R is the connector registry: trust establishment, identity lookup, and liveness.
type R interface {
	// ValidateEnrollmentToken compares the presented token against the accepted set in
	// constant time per candidate.
	ValidateEnrollmentToken(ctx context.Context, token string) error

	// Register enrolls a new connector or idempotently updates an existing one.
	Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error)

	// Unregister soft deletes the connector and revokes its credential immediately.
	Unregister(ctx context.Context, connectorId uuid.UUID) error

	// Lookup resolves a connector for the pipeline. Unregistered connectors resolve so
	// in-flight jobs can still report, but callers see the status.
	Lookup(ctx context.Context, connectorId uuid.UUID) (*database.Connector, error)

	// GetSecretForKeyId resolves a live credential for request verification.
	GetSecretForKeyId(ctx context.Context, keyId string) (uuid.UUID, string, error)
}
