package database

import (
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	_ "modernc.org/sqlite"
)

const dialTimeout = 10 * time.Second

// Params are resolved connection coordinates. For a tunneled connection
// Host and Port already point at the local end of the tunnel.
type Params struct {
	Driver   string
	Protocol string
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

func (p Params) Addr() string {
	if p.Driver == "sqlite" {
		return p.Database
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Open returns a handle for p without contacting the server.
func Open(p Params) (*sql.DB, error) {
	switch p.Driver {
	case "clickhouse", "":
		return openClickHouse(p), nil
	case "postgres":
		return openPostgres(p)
	case "sqlite":
		return sql.Open("sqlite", p.Database)
	}
	return nil, fmt.Errorf("unsupported driver %q", p.Driver)
}

func openClickHouse(p Params) *sql.DB {
	protocol := clickhouse.HTTP
	if p.Protocol == "native" {
		protocol = clickhouse.Native
	}
	return clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{p.Addr()},
		Auth: clickhouse.Auth{
			Database: p.Database,
			Username: p.Username,
			Password: p.Password,
		},
		Protocol:    protocol,
		DialTimeout: dialTimeout,
	})
}

func openPostgres(p Params) (*sql.DB, error) {
	cc, err := pgx.ParseConfig(postgresDSN(p))
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	return stdlib.OpenDB(*cc), nil
}

// postgresDSN renders p as a keyword/value connection string. Host and port
// must go through the parser so that the TLS fallback attempts target the
// same address.
func postgresDSN(p Params) string {
	pairs := []string{
		"host=" + dsnQuote(p.Host),
		"port=" + strconv.Itoa(p.Port),
		"connect_timeout=" + strconv.Itoa(int(dialTimeout/time.Second)),
	}
	if p.Username != "" {
		pairs = append(pairs, "user="+dsnQuote(p.Username))
	}
	if p.Password != "" {
		pairs = append(pairs, "password="+dsnQuote(p.Password))
	}
	if p.Database != "" {
		pairs = append(pairs, "dbname="+dsnQuote(p.Database))
	}
	return strings.Join(pairs, " ")
}

func dsnQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
