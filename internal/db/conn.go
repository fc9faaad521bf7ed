package db

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is the query surface handed out for a connected handle.
// It is implemented by a pgx connection pool.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)

	// Ping performs a trivial round trip.
	Ping(ctx context.Context) error

	// Close releases the underlying pool. It returns an error when the
	// pool did not finish closing before ctx was done.
	Close(ctx context.Context) error
}

// Dialer opens a verified connection to a DSN.
type Dialer interface {
	Dial(ctx context.Context, dsn string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, dsn string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, dsn string) (Conn, error) {
	return f(ctx, dsn)
}

// PgxDialer opens pgxpool pools. Pool sizing is left to pgx defaults when
// the fields are zero.
type PgxDialer struct {
	MaxConns int32
	MinConns int32
}

// Dial parses dsn, creates the pool and pings it so a returned Conn is known
// to have completed one round trip.
func (d PgxDialer) Dial(ctx context.Context, dsn string) (Conn, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if d.MaxConns > 0 {
		cfg.MaxConns = d.MaxConns
	}
	if d.MinConns > 0 {
		cfg.MinConns = d.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &pgxConn{Pool: pool}, nil
}

type pgxConn struct {
	*pgxpool.Pool
}

func (c *pgxConn) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.Pool.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool still draining: %w", ctx.Err())
	}
}

var passwordKV = regexp.MustCompile(`(?i)(password=)\S+`)

// RedactDSN hides the password component of a DSN for logging.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		return u.Redacted()
	}
	return passwordKV.ReplaceAllString(dsn, "${1}xxxxx")
}
