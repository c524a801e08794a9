package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMinConns = 1
	defaultMaxConns = 10
)

// ConnectionError means the pool could not be created or a connection could
// not be checked out: bad credentials, unreachable host, exhausted pool.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// DatabaseError means a statement or batch failed to execute. Any open
// transaction has been rolled back by the time the caller sees it.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *DatabaseError) Unwrap() error { return e.Err }

// FetchMode selects what Execute returns for a read statement.
type FetchMode int

const (
	FetchNone FetchMode = iota
	FetchOne
	FetchAll
)

// Credentials identify one Postgres database. Name, User and Password are
// mandatory; Host and Port default to localhost:5432.
type Credentials struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

func (c Credentials) dsn() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, host, port, c.Name)
}

// Manager owns a bounded pgx connection pool with an explicit lifecycle.
// The zero pool is created lazily on first Acquire, or eagerly via
// Initialize; Teardown closes every connection. Safe for concurrent use.
type Manager struct {
	creds  Credentials
	logger *slog.Logger

	mu       sync.Mutex
	pool     *pgxpool.Pool
	minConns int32
	maxConns int32
}

// NewManager validates the credentials before any network I/O happens.
func NewManager(creds Credentials, logger *slog.Logger) (*Manager, error) {
	if creds.Name == "" || creds.User == "" || creds.Password == "" {
		return nil, errors.New("database name, user, and password must be provided")
	}
	return &Manager{
		creds:    creds,
		logger:   logger,
		minConns: defaultMinConns,
		maxConns: defaultMaxConns,
	}, nil
}

// Initialize creates the pool with the given bounds and verifies the
// database is reachable. Calling it again while a pool exists is a no-op.
func (m *Manager) Initialize(ctx context.Context, minConns, maxConns int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if minConns > 0 {
		m.minConns = minConns
	}
	if maxConns > 0 {
		m.maxConns = maxConns
	}
	return m.initLocked(ctx)
}

func (m *Manager) initLocked(ctx context.Context) error {
	if m.pool != nil {
		return nil
	}

	poolConfig, err := pgxpool.ParseConfig(m.creds.dsn())
	if err != nil {
		return &ConnectionError{Op: "parse pool config", Err: err}
	}
	poolConfig.MinConns = m.minConns
	poolConfig.MaxConns = m.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return &ConnectionError{Op: "create connection pool", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return &ConnectionError{Op: "ping database", Err: err}
	}

	m.pool = pool
	m.logger.Info("connection pool initialized",
		"min_conns", m.minConns, "max_conns", m.maxConns)
	return nil
}

// Acquire checks one connection out of the pool, lazily initializing it
// with the last-known bounds. Blocking is bounded by ctx.
func (m *Manager) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	m.mu.Lock()
	if err := m.initLocked(ctx); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	pool := m.pool
	m.mu.Unlock()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, &ConnectionError{Op: "acquire connection", Err: err}
	}
	return conn, nil
}

// Release returns a connection to the pool. Nil-safe.
func (m *Manager) Release(conn *pgxpool.Conn) {
	if conn != nil {
		conn.Release()
	}
}

// Execute runs one statement on a pooled connection and releases the
// connection on every exit path. Reads return rows according to mode;
// writes should pass FetchNone.
func (m *Manager) Execute(ctx context.Context, query string, mode FetchMode, args ...any) ([]map[string]any, error) {
	conn, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer m.Release(conn)

	if mode == FetchNone {
		if _, err := conn.Exec(ctx, query, args...); err != nil {
			return nil, &DatabaseError{Op: "query execution failed", Err: err}
		}
		return nil, nil
	}

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, &DatabaseError{Op: "query execution failed", Err: err}
	}

	switch mode {
	case FetchOne:
		row, err := pgx.CollectOneRow(rows, pgx.RowToMap)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, &DatabaseError{Op: "row scan failed", Err: err}
		}
		return []map[string]any{row}, nil
	default:
		all, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			return nil, &DatabaseError{Op: "row scan failed", Err: err}
		}
		return all, nil
	}
}

// ExecuteBatch runs query once per parameter tuple on a single connection,
// inside a single transaction. The whole batch commits together or rolls
// back together; the connection is released on every exit path.
func (m *Manager) ExecuteBatch(ctx context.Context, query string, paramsList [][]any) error {
	if len(paramsList) == 0 {
		return nil
	}

	conn, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer m.Release(conn)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return &DatabaseError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, params := range paramsList {
		batch.Queue(query, params...)
	}

	results := tx.SendBatch(ctx, batch)
	for range paramsList {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return &DatabaseError{Op: "batch execution failed", Err: err}
		}
	}
	if err := results.Close(); err != nil {
		return &DatabaseError{Op: "batch execution failed", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &DatabaseError{Op: "commit batch", Err: err}
	}
	return nil
}

// Teardown closes every pooled connection and discards the pool. Idempotent.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
		m.logger.Info("connection pool closed")
	}
}

// WithManager builds a Manager, initializes its pool, runs fn, and tears the
// pool down no matter how fn exits.
func WithManager(ctx context.Context, creds Credentials, logger *slog.Logger, fn func(*Manager) error) error {
	m, err := NewManager(creds, logger)
	if err != nil {
		return err
	}
	if err := m.Initialize(ctx, 0, 0); err != nil {
		return err
	}
	defer m.Teardown()
	return fn(m)
}
