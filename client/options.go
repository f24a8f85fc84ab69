package client

import "time"

// Config holds the tunable knobs for a Channel.
type Config struct {
	PollTimeout      time.Duration
	MaxWriteBuffered int
}

// DefaultConfig returns the configuration Dial starts from before applying
// Options.
func DefaultConfig() Config {
	return Config{
		PollTimeout:      100 * time.Millisecond,
		MaxWriteBuffered: 16 << 20,
	}
}

// Option configures a Channel at Dial time.
type Option func(*Config)

// WithPollTimeout sets the poll timeout for the channel's private reactor.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Config) { c.PollTimeout = d }
}

// WithMaxWriteBuffered overrides the write-buffer bound.
func WithMaxWriteBuffered(n int) Option {
	return func(c *Config) { c.MaxWriteBuffered = n }
}
