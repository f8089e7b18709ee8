// Package mysql reads the active dispatch configuration from MySQL.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
)

// DefaultTable is the configuration table name.
const DefaultTable = "dispatch_configs"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// Source queries the configuration table. Only server_url and
// instance_name are read; the API key never lives in this table.
type Source struct {
	db    *sql.DB
	table string
}

// Open connects to MySQL and checks the connection.
func Open(ctx context.Context, dsn, table string) (*Source, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return New(db, table), nil
}

// New wraps an existing handle.
func New(db *sql.DB, table string) *Source {
	if table == "" {
		table = DefaultTable
	}
	return &Source{db: db, table: table}
}

// Name identifies the source in logs and on /infra.
func (s *Source) Name() string { return "mysql:" + s.table }

// EnsureSchema creates the configuration table when it does not exist.
func (s *Source) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INT AUTO_INCREMENT PRIMARY KEY,
		api_type VARCHAR(50) NOT NULL,
		server_url VARCHAR(255) NOT NULL,
		instance_name VARCHAR(100),
		enabled BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_api_type_enabled (api_type, enabled)
	)`, s.table)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// ActiveConfig returns the most recently updated enabled row for apiType,
// or nil when there is none.
func (s *Source) ActiveConfig(ctx context.Context, apiType string) (*domain.ConfigRecord, error) {
	query := fmt.Sprintf(
		"SELECT server_url, instance_name FROM %s WHERE api_type = ? AND enabled = TRUE ORDER BY updated_at DESC LIMIT 1",
		s.table)

	var serverURL, instance sql.NullString
	err := s.db.QueryRowContext(ctx, query, apiType).Scan(&serverURL, &instance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query active config: %w", err)
	}

	return &domain.ConfigRecord{
		APIType:   apiType,
		ServerURL: strings.TrimSpace(serverURL.String),
		Instance:  strings.TrimSpace(instance.String),
	}, nil
}

// Ping checks the connection.
func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the pool.
func (s *Source) Close() error {
	return s.db.Close()
}
