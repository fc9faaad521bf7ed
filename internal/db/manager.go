package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Recorder receives connection lifecycle observations.
type Recorder interface {
	RecordDBConnectAttempt(ctx context.Context, role string, ok bool)
	RecordDBHealthProbe(ctx context.Context, role string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordDBConnectAttempt(context.Context, string, bool) {}
func (nopRecorder) RecordDBHealthProbe(context.Context, string, bool)    {}

// Manager owns the writer and reader handles for the lifetime of the process.
type Manager struct {
	cfg     Config
	dialer  Dialer
	logger  *zap.SugaredLogger
	metrics Recorder

	handles [2]*handle
	flight  singleflight.Group

	// ctx is cancelled by Disconnect and bounds every background attempt.
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}

	// pending counts dial attempts and background closes. No new work is
	// added once closing is set.
	mu      sync.Mutex
	closing bool
	pending sync.WaitGroup
}

type Option func(*Manager)

func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithMetrics(r Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// NewManager builds the manager and starts connecting both handles in the
// background. It never blocks on the network.
func NewManager(cfg Config, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:     cfg,
		metrics: nopRecorder{},
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.handles[RoleWriter] = newHandle(RoleWriter, cfg.WriterDSN)
	m.handles[RoleReader] = newHandle(RoleReader, cfg.ReaderDSN)

	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = PgxDialer{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns}
	}
	if m.logger == nil {
		m.logger = zap.NewNop().Sugar()
	}
	if m.metrics == nil {
		m.metrics = nopRecorder{}
	}

	for _, h := range m.handles {
		// Registered synchronously so early callers join this attempt.
		m.flight.DoChan(h.role.String(), func() (any, error) {
			return m.connectWithRetry(h)
		})
	}

	if cfg.Warmup {
		m.warmup()
	}
	return m
}

// Writer returns the primary connection, connecting it first if needed.
func (m *Manager) Writer(ctx context.Context) (Conn, error) {
	return m.ensure(ctx, m.handles[RoleWriter])
}

// Reader returns the replica connection, connecting it first if needed.
func (m *Manager) Reader(ctx context.Context) (Conn, error) {
	return m.ensure(ctx, m.handles[RoleReader])
}

// Write runs fn against the writer. Errors returned by fn come back as
// *QueryError.
func (m *Manager) Write(ctx context.Context, fn func(Conn) error) error {
	return m.run(ctx, m.handles[RoleWriter], fn)
}

// Read runs fn against the reader. Errors returned by fn come back as
// *QueryError.
func (m *Manager) Read(ctx context.Context, fn func(Conn) error) error {
	return m.run(ctx, m.handles[RoleReader], fn)
}

func (m *Manager) run(ctx context.Context, h *handle, fn func(Conn) error) error {
	conn, err := m.ensure(ctx, h)
	if err != nil {
		return err
	}
	if err := fn(conn); err != nil {
		return &QueryError{Role: h.role, Err: err}
	}
	return nil
}

func (m *Manager) ensure(ctx context.Context, h *handle) (Conn, error) {
	state, conn, closed := h.snapshot()
	if closed {
		return nil, &ConnectionError{Role: h.role, Err: ErrManagerClosed}
	}
	if state == StateConnected {
		return conn, nil
	}

	conn, err := m.join(ctx, h)
	// Failed is published just before the startup sequence returns, so a
	// caller that saw it may have joined that sequence's tail. It is still
	// owed its own attempt.
	if state == StateFailed && startupExhausted(err) {
		conn, err = m.join(ctx, h)
	}
	return conn, err
}

// join waits for the in-flight attempt of h, starting an on-demand one if
// none is running.
func (m *Manager) join(ctx context.Context, h *handle) (Conn, error) {
	ch := m.flight.DoChan(h.role.String(), func() (any, error) {
		return m.connectOnce(h)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Conn), nil
	case <-ctx.Done():
		return nil, &ConnectionError{Role: h.role, Err: ctx.Err()}
	}
}

// attempt performs a single dial bounded by the connect timeout.
func (m *Manager) attempt(h *handle, resetFailed bool) (Conn, error) {
	if !m.track() {
		return nil, ErrManagerClosed
	}
	defer m.pending.Done()

	if !h.begin(resetFailed) {
		return nil, ErrManagerClosed
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ConnectTimeout)
	defer cancel()

	start := time.Now()
	conn, err := m.dialer.Dial(ctx, h.dsn)
	m.metrics.RecordDBConnectAttempt(m.ctx, h.role.String(), err == nil)
	if err != nil {
		return nil, err
	}

	if !h.connected(conn) {
		m.closeQuietly(h.role, conn)
		return nil, ErrManagerClosed
	}
	m.logger.Infow("Database handle connected",
		"role", h.role.String(),
		"endpoint", h.endpoint,
		"duration", time.Since(start))
	return conn, nil
}

// connectWithRetry is the startup sequence: up to MaxRetries attempts with
// exponential delays between them.
func (m *Manager) connectWithRetry(h *handle) (any, error) {
	backoff := retry.WithMaxRetries(uint64(m.cfg.MaxRetries-1), retry.NewExponential(m.cfg.RetryBaseDelay))

	for {
		conn, err := m.attempt(h, false)
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, ErrManagerClosed) || m.ctx.Err() != nil {
			return nil, &ConnectionError{Role: h.role, Err: ErrManagerClosed}
		}

		delay, stop := backoff.Next()
		attempts := h.failed(stop)
		if stop {
			m.logger.Errorw("Database handle failed; retries exhausted",
				"role", h.role.String(),
				"endpoint", h.endpoint,
				"attempts", attempts,
				"error", err)
			return nil, &ConnectionError{Role: h.role, Attempts: attempts, Err: err, startup: true}
		}

		m.logger.Warnw("Database connect attempt failed",
			"role", h.role.String(),
			"endpoint", h.endpoint,
			"attempt", attempts,
			"retryIn", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-m.ctx.Done():
			timer.Stop()
			return nil, &ConnectionError{Role: h.role, Attempts: attempts, Err: ErrManagerClosed}
		}
	}
}

// connectOnce is the on-demand path: a single attempt, resetting the retry
// count of a Failed handle first.
func (m *Manager) connectOnce(h *handle) (any, error) {
	conn, err := m.attempt(h, true)
	if err == nil {
		return conn, nil
	}
	if errors.Is(err, ErrManagerClosed) || m.ctx.Err() != nil {
		return nil, &ConnectionError{Role: h.role, Err: ErrManagerClosed}
	}

	attempts := h.failed(true)
	m.logger.Warnw("On-demand database connect failed",
		"role", h.role.String(),
		"endpoint", h.endpoint,
		"retries", attempts,
		"error", err)
	return nil, &ConnectionError{Role: h.role, Attempts: 1, Err: err}
}

// HealthCheck probes each Connected handle independently. A failed probe
// demotes the handle to Disconnected; reconnection is left to the next
// access.
func (m *Manager) HealthCheck(ctx context.Context) Health {
	var (
		wg  sync.WaitGroup
		res [2]bool
	)
	for i, h := range m.handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res[i] = m.probe(ctx, h)
		}()
	}
	wg.Wait()

	return Health{Writer: res[RoleWriter], Reader: res[RoleReader]}
}

func (m *Manager) probe(ctx context.Context, h *handle) bool {
	state, conn, closed := h.snapshot()
	if closed || state != StateConnected || conn == nil {
		return false
	}

	pctx, cancel := context.WithTimeout(ctx, m.cfg.HealthTimeout)
	defer cancel()

	err := conn.Ping(pctx)
	m.metrics.RecordDBHealthProbe(ctx, h.role.String(), err == nil)
	if err == nil {
		return true
	}

	if h.demote(conn) {
		m.logger.Warnw("Database health probe failed; handle demoted",
			"role", h.role.String(),
			"endpoint", h.endpoint,
			"error", err)
		m.closeInBackground(h.role, conn)
	}
	return false
}

// Disconnect closes both handles concurrently and waits for both close
// attempts. Only the first call does any work.
func (m *Manager) Disconnect(ctx context.Context) error {
	first := false
	m.closeOnce.Do(func() { first = true })
	if !first {
		select {
		case <-m.done:
		case <-ctx.Done():
		}
		return nil
	}
	defer close(m.done)

	m.cancel()
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, h := range m.handles {
		conn := h.shutdown()
		if conn == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := conn.Close(ctx); err != nil {
				serr := &ShutdownError{Role: h.role, Err: err}
				m.logger.Errorw("Failed to close database handle", "role", h.role.String(), "error", err)
				mu.Lock()
				errs = multierr.Append(errs, serr)
				mu.Unlock()
				return
			}
			m.logger.Infow("Database handle closed", "role", h.role.String())
		}()
	}
	wg.Wait()

	// Attempts that were dialing when shutdown began close their own result.
	pending := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(pending)
	}()
	select {
	case <-pending:
	case <-ctx.Done():
		errs = multierr.Append(errs, fmt.Errorf("waiting for pending connects: %w", ctx.Err()))
	}

	return errs
}

// Status returns a snapshot of both handles, writer first.
func (m *Manager) Status() []HandleStatus {
	out := make([]HandleStatus, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h.status())
	}
	return out
}

func (m *Manager) warmup() {
	for _, h := range m.handles {
		go func() {
			conn, err := m.ensure(m.ctx, h)
			if err != nil {
				m.logger.Warnw("Warmup skipped; handle unavailable", "role", h.role.String(), "error", err)
				return
			}
			ctx, cancel := context.WithTimeout(m.ctx, m.cfg.HealthTimeout)
			defer cancel()
			if _, err := conn.Exec(ctx, "SELECT 1"); err != nil {
				m.logger.Warnw("Warmup query failed", "role", h.role.String(), "error", err)
				return
			}
			m.logger.Infow("Warmup query succeeded", "role", h.role.String())
		}()
	}
}

func (m *Manager) track() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return false
	}
	m.pending.Add(1)
	return true
}

// closeInBackground closes conn without blocking the caller. Disconnect
// waits for it; once shutdown has begun the close runs inline.
func (m *Manager) closeInBackground(role Role, conn Conn) {
	if !m.track() {
		m.closeQuietly(role, conn)
		return
	}
	go func() {
		defer m.pending.Done()
		m.closeQuietly(role, conn)
	}()
}

func (m *Manager) closeQuietly(role Role, conn Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		m.logger.Debugw("Discarded connection did not close cleanly", "role", role.String(), "error", err)
	}
}
