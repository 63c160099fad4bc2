package toil

import "time"

// Config holds configuration for the worker side of the engine.
type Config struct {
	// Concurrency is the number of polling worker goroutines. The default
	// is a single sequential consumer; raising it is safe because the
	// store claim is atomic.
	Concurrency int

	// Types restricts which job types the workers will claim.
	// Empty means all types.
	Types []string

	// PollInterval is how long a worker sleeps after an empty poll.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	// before in-flight jobs are cancelled.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     1,
		PollInterval:    1 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}
