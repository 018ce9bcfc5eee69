// Package sqldb stores users in a relational database. MySQL and SQLite share
// one repository; they differ only in how connections are opened, which
// migrations run and how unique violations are reported.
package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

// Driver names a supported SQL backend. The value doubles as the
// database/sql driver name and the migrations directory.
type Driver string

const (
	DriverMySQL  Driver = "mysql"
	DriverSQLite Driver = "sqlite"
)

const (
	defaultTimeout  = 5 * time.Second
	migrationsTable = "identity_schema_migrations"
)

//go:embed migrations
var migrationsFS embed.FS

// MySQLConfig captures the settings for a MySQL connection.
type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Timeout  time.Duration
}

// DSN renders the config in go-sql-driver format. Multi statements are enabled
// for migrations.
func (c MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.MultiStatements = true
	cfg.Timeout = c.Timeout
	return cfg.FormatDSN()
}

// OpenMySQL connects to MySQL and verifies the connection with a ping.
func OpenMySQL(ctx context.Context, cfg MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open(string(DriverMySQL), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := ping(ctx, db, cfg.Timeout); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return db, nil
}

// OpenSQLite opens the database file at path. Transactions take the write lock
// up front so concurrent writers queue on the busy timeout instead of failing.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"

	db, err := sql.Open(string(DriverSQLite), dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := ping(ctx, db, 0); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return db, nil
}

func ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.PingContext(pingCtx)
}

// Migrate applies the embedded schema migrations for driver. It leaves db open.
func Migrate(ctx context.Context, db *sql.DB, driver Driver) error {
	src, err := iofs.New(migrationsFS, "migrations/"+string(driver))
	if err != nil {
		return fmt.Errorf("load %s migrations: %w", driver, err)
	}

	switch driver {
	case DriverMySQL:
		conn, err := db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("migration connection: %w", err)
		}
		target, err := migratemysql.WithConnection(ctx, conn, &migratemysql.Config{MigrationsTable: migrationsTable})
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("create migration driver: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, string(driver), target)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("create migrate instance: %w", err)
		}
		// Built from a single conn, so Close releases only that conn.
		defer m.Close()
		return up(m)

	case DriverSQLite:
		target, err := migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: migrationsTable})
		if err != nil {
			return fmt.Errorf("create migration driver: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, string(driver), target)
		if err != nil {
			return fmt.Errorf("create migrate instance: %w", err)
		}
		// m.Close would close db.
		defer src.Close()
		return up(m)

	default:
		return fmt.Errorf("unsupported sql driver %q", driver)
	}
}

func up(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
