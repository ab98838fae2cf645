package filecache

import (
	"log/slog"
	"time"
)

type options struct {
	capacity         int
	ttl              time.Duration
	clock            func() time.Time
	sweepInterval    time.Duration
	compressionLevel int
	logger           *slog.Logger
}

// Option is a functional option for configuring New.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		clock:    time.Now,
		logger:   slog.Default(),
	}
}

// WithCapacity sets the maximum number of entries.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithTTL sets how long an entry lives after insertion.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithSweepInterval enables background removal of expired entries.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

// WithCompression stores entries zstd-compressed at the given level (1-3).
func WithCompression(level int) Option {
	return func(o *options) { o.compressionLevel = level }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
