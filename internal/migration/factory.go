package migration

import (
	"github.com/BaSui01/askflow/internal/database"
)

// NewMigratorFromDatabaseConfig creates a migrator for the checkpoint
// database. sqlite yields ErrAutoMigrated.
func NewMigratorFromDatabaseConfig(cfg database.Config) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return NewMigrator(Config{
		DatabaseType: dbType,
		DatabaseURL:  BuildDatabaseURL(dbType, cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, cfg.SSLMode),
	})
}
