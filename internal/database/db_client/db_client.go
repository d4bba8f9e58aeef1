package db_client

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// DSN builds a pgx connection URL. Credentials are escaped.
func DSN(host, port, user, pass, database string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func Open(host, port, user, pass, database string) (*sql.DB, error) {
	db, err := sql.Open("pgx", DSN(host, port, user, pass, database))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		zap.L().Error("pg_connect", zap.String("host", host), zap.Error(err))
		_ = db.Close()
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	return db, nil
}
