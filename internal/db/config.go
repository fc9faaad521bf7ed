package db

import "time"

const (
	DefaultMaxRetries     = 5
	DefaultRetryBaseDelay = time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultHealthTimeout  = 2 * time.Second
)

// Config describes the two endpoints and the connection policy of a Manager.
type Config struct {
	WriterDSN string
	// ReaderDSN falls back to WriterDSN when empty.
	ReaderDSN string

	// MaxRetries is the total number of connect attempts per handle during
	// startup. Zero or negative means DefaultMaxRetries.
	MaxRetries     int
	RetryBaseDelay time.Duration
	ConnectTimeout time.Duration
	HealthTimeout  time.Duration

	// Warmup issues a trivial query on both handles after construction.
	Warmup bool

	MaxConns int32
	MinConns int32
}

func (c Config) withDefaults() Config {
	if c.ReaderDSN == "" {
		c.ReaderDSN = c.WriterDSN
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = DefaultHealthTimeout
	}
	return c
}
