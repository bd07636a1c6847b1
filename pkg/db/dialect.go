package db

import (
	"fmt"

	glebarezsqlite "github.com/glebarez/sqlite"
	"github.com/smallbiznis/martpos/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	TypePostgres   = "postgres"
	TypeMySQL      = "mysql"
	TypeSQLite     = "sqlite"
	TypePureSQLite = "sqlite-pure"
)

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBType {
	case TypeMySQL:
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case TypePostgres:
		return postgres.Open(PostgresDSN(cfg)), nil
	case TypeSQLite:
		return sqlite.Open(sqlitePath(cfg)), nil
	case TypePureSQLite:
		// cgo-free driver, used for single-lane installs and tests
		return glebarezsqlite.Open(sqlitePath(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

func PostgresDSN(cfg config.Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBPort,
		cfg.DBSSLMode,
	)
}

func sqlitePath(cfg config.Config) string {
	if cfg.DBName == "" {
		return "martpos.db"
	}
	return cfg.DBName
}

// IsPostgres reports whether cfg selects the database the SQL migrations target.
func IsPostgres(cfg config.Config) bool {
	return cfg.DBType == TypePostgres
}
