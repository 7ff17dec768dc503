// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap/zapcore"

	"github.com/omochice/proximity-relay/internal/store"
)

// DefaultAddress is the WebSocket listen address when WS_ADDRESS is unset.
const DefaultAddress = "127.0.0.1:8080"

// Environment variable names.
const (
	EnvAddress  = "WS_ADDRESS"
	EnvDriver   = "DB_DRIVER"
	EnvHost     = "DB_HOST"
	EnvPort     = "DB_PORT"
	EnvName     = "DB_NAME"
	EnvUser     = "DB_USER"
	EnvPassword = "DB_PASS"
	EnvLogLevel = "LOG_LEVEL"
)

// ErrMissing is returned for a required variable that is unset.
var ErrMissing = errors.New("missing environment variable")

// Database holds the connection settings of the account store.
type Database struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// DSN returns the data source name for Driver. For sqlite3, Name is the
// database file path.
func (d Database) DSN() string {
	if d.Driver == store.DriverSQLite {
		return d.Name
	}

	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	cfg.DBName = d.Name
	return cfg.FormatDSN()
}

// Config is the server configuration.
type Config struct {
	Address  string
	Database Database
	LogLevel zapcore.Level
}

// LookupFunc reports the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup reads the configuration through lookup. Every missing or
// malformed variable is reported in the returned error.
func FromLookup(lookup LookupFunc) (Config, error) {
	var errs []error

	get := func(key string) string {
		v, ok := lookup(key)
		if !ok || v == "" {
			return ""
		}
		return v
	}
	require := func(key string) string {
		v := get(key)
		if v == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissing, key))
		}
		return v
	}

	cfg := Config{
		Address:  get(EnvAddress),
		LogLevel: zapcore.InfoLevel,
	}
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}

	db := Database{Driver: get(EnvDriver)}
	switch db.Driver {
	case "":
		db.Driver = store.DriverMySQL
	case store.DriverMySQL, store.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("%s: unsupported driver %q", EnvDriver, db.Driver))
	}

	db.Name = require(EnvName)
	if db.Driver != store.DriverSQLite {
		db.Host = require(EnvHost)
		db.User = require(EnvUser)
		db.Password = require(EnvPassword)
		if port := require(EnvPort); port != "" {
			n, err := strconv.ParseUint(port, 10, 16)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid port %q", EnvPort, port))
			}
			db.Port = int(n)
		}
	}
	cfg.Database = db

	if level := get(EnvLogLevel); level != "" {
		l, err := zapcore.ParseLevel(level)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvLogLevel, err))
		}
		cfg.LogLevel = l
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
