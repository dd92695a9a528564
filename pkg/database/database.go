package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver name used by the sqlx handle
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tao2825/library-borrow-system/internal/model"
	"github.com/tao2825/library-borrow-system/pkg/config"
)

// Options selects the backing store.
type Options struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
	LogLevel    string
}

// FromConfig picks the database options out of the application config.
func FromConfig(cfg *config.Config) Options {
	return Options{
		Driver:      cfg.DBDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		LogLevel:    cfg.LogLevel,
	}
}

// Connect opens the gorm handle and tunes its pool for the chosen driver.
func Connect(opts Options) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormLogLevel(opts.LogLevel),
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch opts.Driver {
	case config.DriverSQLite:
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", opts.SQLitePath)
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	case config.DriverPostgres, "":
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  opts.DatabaseURL,
			PreferSimpleProtocol: true, // Disables implicit prepared statements for pgbouncer transaction mode
		}), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.Driver == config.DriverSQLite {
		// One writer at a time; transactions serialize on the single connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return db, nil
}

// Migrate creates or updates the schema, including the index that lets a book
// hold at most one active loan.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Book{},
		&model.Member{},
		&model.BorrowTransaction{},
		&model.BorrowItem{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	stmts := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_borrow_items_active_book ON borrow_items (book_id) WHERE status = 'borrowed'",
		"CREATE INDEX IF NOT EXISTS idx_borrow_items_tx_status ON borrow_items (tx_id, status)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Dialect returns the goqu dialect name for a driver.
func Dialect(driver string) string {
	if driver == config.DriverSQLite {
		return "sqlite3"
	}
	return "postgres"
}

// SQLX shares the gorm connection pool with a sqlx handle for hand-built read queries.
func SQLX(db *gorm.DB, driver string) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	name := "pgx"
	if driver == config.DriverSQLite {
		name = "sqlite3"
	}
	return sqlx.NewDb(sqlDB, name), nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
