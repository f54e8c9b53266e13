package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// invalidCatalogName is the SQLSTATE Postgres returns for an unknown database.
const invalidCatalogName = "3D000"

// Connection pool settings.
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
	connMaxIdleTime = 10 * time.Minute
	pingTimeout     = 5 * time.Second
)

// dsn is a parsed DATABASE_URL. It is parsed once and used for both the
// startup log line and error hints, so the password never reaches either.
type dsn struct {
	raw string
	url *url.URL
}

func parseDSN(databaseURL string) (dsn, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return dsn{}, fmt.Errorf("DATABASE_URL is empty")
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		// url.Parse echoes the input, which may hold the password
		return dsn{}, fmt.Errorf("invalid DATABASE_URL")
	}
	return dsn{raw: databaseURL, url: u}, nil
}

func (d dsn) database() string { return strings.TrimPrefix(d.url.Path, "/") }

func (d dsn) host() string { return d.url.Hostname() }

// redacted returns the URL with the password replaced by ****.
func (d dsn) redacted() string {
	u := *d.url
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

// pingError turns a failed ping into an error naming the target, with a
// specific hint when the database itself is missing.
func (d dsn) pingError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == invalidCatalogName {
		return fmt.Errorf("database %q not found on host=%s (create it or fix DATABASE_URL): %w", d.database(), d.host(), err)
	}
	return fmt.Errorf("failed to ping database %s: %w", d.redacted(), err)
}

// Open connects to PostgreSQL, sizes the pool and verifies the connection.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*sql.DB, error) {
	target, err := parseDSN(databaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("opening database",
		zap.String("host", target.host()),
		zap.String("db", target.database()),
		zap.String("dsn", target.redacted()),
	)

	db, err := sql.Open("postgres", target.raw)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, target.pingError(err)
	}
	return db, nil
}
