package db

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSQLitePath is used when no connection string is configured.
const DefaultSQLitePath = ".sharkbench.db"

// StoreType selects the history backend.
type StoreType string

const (
	StoreSQLite   StoreType = "sqlite"
	StorePostgres StoreType = "postgres"
)

var ErrMissingDSN = errors.New("postgres connection string is required")

// ParseStoreType accepts the configured backend name and its aliases. An
// empty name selects SQLite.
func ParseStoreType(name string) (StoreType, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return StoreSQLite, nil
	case "postgres", "postgresql":
		return StorePostgres, nil
	}
	return "", fmt.Errorf("unsupported store type: %s", name)
}

// StoreConfig selects and locates the history backend.
type StoreConfig struct {
	Type             string
	ConnectionString string // file path for SQLite, DSN for Postgres
}

// Check validates config without opening anything.
func (c StoreConfig) Check() error {
	typ, err := ParseStoreType(c.Type)
	if err != nil {
		return err
	}
	if typ == StorePostgres && c.ConnectionString == "" {
		return ErrMissingDSN
	}
	return nil
}

// NewStore opens the configured history backend.
func NewStore(config StoreConfig) (Store, error) {
	if err := config.Check(); err != nil {
		return nil, err
	}
	typ, _ := ParseStoreType(config.Type)
	if typ == StorePostgres {
		return NewPostgresStore(config.ConnectionString)
	}

	path := config.ConnectionString
	if path == "" {
		path = DefaultSQLitePath
	}
	return NewSQLiteStore(path)
}
