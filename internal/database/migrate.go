package database

import (
	"context"

	"github.com/pkg/errors"
)

// MigrateMutexKeyName is the key that can be used when locking to perform a migration in redis.
const MigrateMutexKeyName = "db-migrate-lock"

func (s *service) Migrate(ctx context.Context) error {
	s.logger.Info("running database migrations", "provider", s.cfg.GetProvider())
	defer s.logger.Info("database migrations complete")

	gormDb := s.session(ctx)

	for _, m := range []struct {
		name  string
		model interface{}
	}{
		{"connectors", &Connector{}},
		{"hmac credentials", &HmacCredential{}},
		{"scan jobs", &ScanJob{}},
		{"dead letters", &DeadLetter{}},
		{"scan results", &ScanResult{}},
		{"full scans", &FullScan{}},
		{"state entries", &StateEntry{}},
		{"used nonces", &UsedNonce{}},
	} {
		if err := gormDb.AutoMigrate(m.model); err != nil {
			return errors.Wrapf(err, "failed to auto migrate %s", m.name)
		}
	}

	return nil
}
