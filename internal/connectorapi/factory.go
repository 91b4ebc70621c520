package connectorapi

import (
	"context"

	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/encrypt"
	"github.com/logang-di/dsx-connect/internal/hmacsig"
)

type factory struct {
	cfg config.C
	db  database.DB
	e   encrypt.E
}

// NewFactory builds connector clients signed with each connector's live credential.
func NewFactory(cfg config.C, db database.DB, e encrypt.E) F {
	return &factory{
		cfg: cfg,
		db:  db,
		e:   e,
	}
}

func (f *factory) ForConnector(ctx context.Context, c *database.Connector) (Client, error) {
	if c == nil {
		return nil, errors.New("connector is required")
	}

	if c.HmacKeyId == "" {
		return nil, errors.Errorf("connector %s has no credential", c.ID)
	}

	cred, err := f.db.GetHmacCredential(ctx, c.HmacKeyId)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load credential for connector %s", c.ID)
	}

	if cred == nil || cred.IsRevoked() {
		return nil, errors.Errorf("connector %s has no live credential", c.ID)
	}

	secret, err := f.e.DecryptStringGlobal(ctx, cred.EncryptedSecret)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decrypt credential for connector %s", c.ID)
	}

	pipelineCfg := f.cfg.GetRoot().Pipeline
	return newClient(
		c,
		&hmacsig.Signer{KeyId: cred.KeyId, Secret: secret},
		pipelineCfg.ReadTimeout(),
		pipelineCfg.ActionTimeout(),
	), nil
}
