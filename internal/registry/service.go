package registry

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/dcctx"
	"github.com/logang-di/dsx-connect/internal/encrypt"
)

// ErrInvalidEnrollmentToken deliberately carries no detail about which check failed.
var ErrInvalidEnrollmentToken = errors.New("invalid enrollment token")

type service struct {
	cfg     config.C
	db      database.DB
	encrypt encrypt.E
	logger  *slog.Logger
}

func NewRegistry(cfg config.C, db database.DB, e encrypt.E, logger *slog.Logger) R {
	return &service{
		cfg:     cfg,
		db:      db,
		encrypt: e,
		logger:  logger,
	}
}

func (s *service) ValidateEnrollmentToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidEnrollmentToken
	}

	accepted := s.cfg.GetRoot().SystemAuth.EnrollmentTokens
	if len(accepted) == 0 {
		s.logger.Error("no enrollment tokens configured; refusing registration")
		return ErrInvalidEnrollmentToken
	}

	matched := false
	for _, candidate := range accepted {
		val, err := candidate.GetValue(ctx)
		if err != nil {
			s.logger.Error("failed to resolve enrollment token from config", "error", err)
			continue
		}

		// Compare every candidate so timing does not reveal which token matched.
		if subtle.ConstantTimeCompare([]byte(val), []byte(token)) == 1 {
			matched = true
		}
	}

	if !matched {
		return ErrInvalidEnrollmentToken
	}

	return nil
}

// mintCredential generates a fresh secret, persists it encrypted, and returns the
// plaintext for the one-time handoff.
func (s *service) mintCredential(ctx context.Context, connectorId uuid.UUID, replace bool) (keyId string, secret string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", errors.Wrap(err, "failed to generate credential secret")
	}

	secret = base64.StdEncoding.EncodeToString(raw)
	keyId = dcctx.GetUuidGenerator(ctx).New().String()

	encrypted, err := s.encrypt.EncryptStringGlobal(ctx, secret)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to encrypt credential secret")
	}

	cred := &database.HmacCredential{
		KeyId:           keyId,
		ConnectorId:     connectorId,
		EncryptedSecret: encrypted,
	}

	if replace {
		err = s.db.ReplaceHmacCredential(ctx, cred)
	} else {
		err = s.db.CreateHmacCredential(ctx, cred)
	}
	if err != nil {
		return "", "", errors.Wrap(err, "failed to persist credential")
	}

	return keyId, secret, nil
}

func (s *service) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}

	if req.ConnectorUuid != nil {
		return s.reregister(ctx, req)
	}

	connector := &database.Connector{
		ID:           dcctx.GetUuidGenerator(ctx).New(),
		DisplayName:  req.DisplayName,
		BaseUrl:      req.BaseUrl,
		Capabilities: req.Capabilities,
		Status:       database.ConnectorStatusRegistered,
	}

	if err := s.db.CreateConnector(ctx, connector); err != nil {
		return nil, errors.Wrap(err, "failed to persist connector")
	}

	// Mint after the record exists: a failed mint leaves a connector without a
	// credential, which re-registering with reissue_credentials repairs.
	keyId, secret, err := s.mintCredential(ctx, connector.ID, false)
	if err != nil {
		return nil, err
	}

	if err := s.db.SetConnectorHmacKeyId(ctx, connector.ID, keyId); err != nil {
		return nil, errors.Wrap(err, "failed to bind credential to connector")
	}
	connector.HmacKeyId = keyId

	s.logger.Info("connector registered",
		"connector_id", connector.ID,
		"display_name", connector.DisplayName,
		"capabilities", connector.Capabilities)

	return &RegisterResponse{
		ConnectorUuid: connector.ID,
		HmacKeyId:     keyId,
		HmacSecret:    secret,
	}, nil
}

func (s *service) reregister(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	connector, err := s.db.GetConnector(ctx, *req.ConnectorUuid)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load connector")
	}

	if connector == nil {
		return nil, database.ErrNotFound
	}

	connector.DisplayName = req.DisplayName
	connector.BaseUrl = req.BaseUrl
	connector.Capabilities = req.Capabilities

	resp := &RegisterResponse{ConnectorUuid: connector.ID}

	if req.ReissueCredentials {
		keyId, secret, err := s.mintCredential(ctx, connector.ID, true)
		if err != nil {
			return nil, err
		}

		connector.HmacKeyId = keyId
		resp.HmacKeyId = keyId
		resp.HmacSecret = secret
	}

	if err := connector.Validate(); err != nil {
		return nil, err
	}

	if err := s.db.UpdateConnector(ctx, connector); err != nil {
		return nil, errors.Wrap(err, "failed to update connector")
	}

	s.logger.Info("connector re-registered",
		"connector_id", connector.ID,
		"reissued_credentials", req.ReissueCredentials)

	return resp, nil
}

func (s *service) Unregister(ctx context.Context, connectorId uuid.UUID) error {
	if err := s.db.UnregisterConnector(ctx, connectorId); err != nil {
		return err
	}

	s.logger.Info("connector unregistered", "connector_id", connectorId)
	return nil
}

func (s *service) Lookup(ctx context.Context, connectorId uuid.UUID) (*database.Connector, error) {
	connector, err := s.db.GetConnector(ctx, connectorId)
	if err != nil {
		return nil, err
	}

	if connector == nil {
		return nil, database.ErrNotFound
	}

	return connector, nil
}

func (s *service) GetSecretForKeyId(ctx context.Context, keyId string) (uuid.UUID, string, error) {
	cred, err := s.db.GetHmacCredential(ctx, keyId)
	if err != nil {
		return uuid.Nil, "", errors.Wrap(err, "failed to load credential")
	}

	if cred == nil || cred.IsRevoked() {
		return uuid.Nil, "", errors.New("unknown or revoked key id")
	}

	secret, err := s.encrypt.DecryptStringGlobal(ctx, cred.EncryptedSecret)
	if err != nil {
		return uuid.Nil, "", errors.Wrap(err, "failed to decrypt credential")
	}

	return cred.ConnectorId, secret, nil
}
