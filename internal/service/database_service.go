package service

import (
	"database/sql"
	"errors"
	"fmt"

	"voicebridge/internal/assets"

	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	sqliteMigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type DatabaseServiceConfig struct {
	DatabasePath string
}

type DatabaseService struct {
	Config   DatabaseServiceConfig
	Database *gorm.DB
}

func NewDatabaseService(config DatabaseServiceConfig) *DatabaseService {
	return &DatabaseService{
		Config: config,
	}
}

func (ds *DatabaseService) Init() error {
	gormDB, err := gorm.Open(sqlite.Open(ds.Config.DatabasePath), &gorm.Config{})

	if err != nil {
		return fmt.Errorf("failed to open token database: %w", err)
	}

	sqlDB, err := gormDB.DB()

	if err != nil {
		return fmt.Errorf("failed to get underlying connection: %w", err)
	}

	// A single connection serializes writes; the conditional-update claim
	// on authorization codes relies on that
	sqlDB.SetMaxOpenConns(1)

	err = ds.migrateOAuthSchema(sqlDB)

	if errors.Is(err, migrate.ErrNoChange) {
		log.Debug().Msg("OAuth schema already up to date")
	} else if err != nil {
		return fmt.Errorf("failed to migrate oauth schema: %w", err)
	}

	ds.Database = gormDB
	return nil
}

func (ds *DatabaseService) migrateOAuthSchema(sqlDB *sql.DB) error {
	data, err := iofs.New(assets.Migrations, "migrations")

	if err != nil {
		return err
	}

	target, err := sqliteMigrate.WithInstance(sqlDB, &sqliteMigrate.Config{})

	if err != nil {
		return err
	}

	migrator, err := migrate.NewWithInstance("iofs", data, "voicebridge", target)

	if err != nil {
		return err
	}

	return migrator.Up()
}

func (ds *DatabaseService) GetDatabase() *gorm.DB {
	return ds.Database
}
