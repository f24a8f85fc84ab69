package server

import "time"

// Config holds the tunable knobs for a Server.
type Config struct {
	Reactors    int
	PollTimeout time.Duration
}

// DefaultConfig returns the configuration New starts from before applying
// Options.
func DefaultConfig() Config {
	return Config{
		Reactors:    0, // 0 means runtime.NumCPU()
		PollTimeout: 100 * time.Millisecond,
	}
}

// Option configures a Server at construction time.
type Option func(*Config)

// WithReactors sets the number of reactor threads the server's connection
// pool rotates across.
func WithReactors(n int) Option {
	return func(c *Config) { c.Reactors = n }
}

// WithPollTimeout sets the poll timeout passed to every reactor in the
// pool.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Config) { c.PollTimeout = d }
}
