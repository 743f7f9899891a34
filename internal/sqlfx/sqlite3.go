package sqlfx

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/jfrkeeper/pkg/storage"
	"github.com/yurykabanov/jfrkeeper/pkg/util"
)

const (
	ConfigDatabaseDSN        = "database.dsn"
	ConfigDatabaseName       = "database.name"
	ConfigDatabaseMigrations = "database.migrations"
)

type SqliteConfig struct {
	DSN            string
	DatabaseName   string
	MigrationsPath string
}

func SqliteConfigProvider(v *viper.Viper) (*SqliteConfig, error) {
	config := &SqliteConfig{
		DSN:            v.GetString(ConfigDatabaseDSN),
		DatabaseName:   v.GetString(ConfigDatabaseName),
		MigrationsPath: v.GetString(ConfigDatabaseMigrations),
	}

	if config.DSN == "" {
		return nil, errors.Errorf("%s must be set", ConfigDatabaseDSN)
	}

	return config, nil
}

func OpenSqliteDatabase(config *SqliteConfig, logger *logrus.Logger) (*sqlx.DB, error) {
	logger.WithField("dsn", config.DSN).Debug("Connecting to DB with DSN")

	db, err := sqlx.Open("sqlite3", config.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to connect to DB")
	}

	// sqlite serializes writers anyway and a single connection keeps
	// in-memory databases alive
	db.SetMaxOpenConns(1)
	db.MapperFunc(util.CamelToSnakeCase)

	if err := storage.Migrate(db, config.MigrationsPath, config.DatabaseName); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func CloseSqliteDatabase(lc fx.Lifecycle, db *sqlx.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
}
