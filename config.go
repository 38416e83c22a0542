package pgbus

import (
	"crypto/tls"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	//////////////////////
	// DELIVERY SECTION //
	//////////////////////

	// Hard bound on each delivery attempt against a worker endpoint.
	// Must stay below LeaseTimeout so every attempt resolves while its
	// lease is still held.
	HTTPTimeout time.Duration

	// Wall-clock duration after which a held lease counts as abandoned
	// and is resolved as a failed attempt.
	LeaseTimeout time.Duration

	// Cadence of per-queue dispatch ticks. The scheduler works in whole
	// seconds: intervals below one second tick once per second, and
	// fractions of a second are dropped.
	TickInterval time.Duration

	/////////////////////
	// GENERAL SECTION //
	/////////////////////

	DSN string

	TLSConfig *tls.Config

	Logger zerolog.Logger
}

type ConfigFunc func(c *Config)

func NewConfig(opts ...ConfigFunc) *Config {
	c := &Config{
		HTTPTimeout:  time.Duration(30) * time.Second,
		LeaseTimeout: time.Duration(60) * time.Second,
		TickInterval: time.Duration(1) * time.Second,
		Logger:       zerolog.New(os.Stdout).With().Timestamp().Str("service", "pgbus").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Config) validate() error {
	if c.HTTPTimeout <= 0 || c.LeaseTimeout <= 0 || c.TickInterval <= 0 {
		return errors.New("timeouts and tick interval must be positive")
	}
	if c.HTTPTimeout >= c.LeaseTimeout {
		return errors.New("http timeout must be less than the lease timeout")
	}
	return nil
}

func WithDSN(dsn string) ConfigFunc {
	return func(c *Config) {
		c.DSN = dsn
	}
}

func WithTLSConfig(tlsConfig *tls.Config) ConfigFunc {
	return func(c *Config) {
		c.TLSConfig = tlsConfig
	}
}

func WithHTTPTimeout(timeout time.Duration) ConfigFunc {
	return func(c *Config) {
		c.HTTPTimeout = timeout
	}
}

func WithLeaseTimeout(timeout time.Duration) ConfigFunc {
	return func(c *Config) {
		c.LeaseTimeout = timeout
	}
}

func WithTickInterval(interval time.Duration) ConfigFunc {
	return func(c *Config) {
		c.TickInterval = interval
	}
}

func WithLogger(logger zerolog.Logger) ConfigFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}
