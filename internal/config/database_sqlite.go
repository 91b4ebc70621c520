package config

type DatabaseSqlite struct {
	Provider    DatabaseProvider `json:"provider" yaml:"provider"`
	Path        string           `json:"path" yaml:"path"`
	AutoMigrate *bool            `json:"auto_migrate,omitempty" yaml:"auto_migrate,omitempty"`
}

func (d *DatabaseSqlite) GetProvider() DatabaseProvider {
	return DatabaseProviderSqlite
}

func (d *DatabaseSqlite) GetAutoMigrate() bool {
	if d.AutoMigrate == nil {
		return true
	}

	return *d.AutoMigrate
}

// GetDsn returns the data source name used for the database/sql connection. The busy
// timeout keeps concurrent stage workers from tripping over sqlite write locks.
func (d *DatabaseSqlite) GetDsn() string {
	return d.Path + "?_busy_timeout=5000&_journal_mode=WAL"
}
