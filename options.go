package fcopy

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"fcopy/internal/logging"
)

const (
	// DefaultMaxRetries is the number of additional attempts per file.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the pause between attempts.
	DefaultRetryDelay = time.Second
	// DefaultSmallFileThreshold is the largest size batched as a small file.
	DefaultSmallFileThreshold int64 = 1 << 20
	// DefaultSmallFileBatchSize is the number of small files per task.
	DefaultSmallFileBatchSize = 100
	// DefaultBufferSize is the per-worker copy buffer.
	DefaultBufferSize = 64 << 10
	// DefaultParallelThreshold is the smallest file copied in parallel chunks.
	DefaultParallelThreshold int64 = 1 << 20
	// DefaultDrainTimeout bounds the wait for in-flight tasks after a fatal error.
	DefaultDrainTimeout = 5 * time.Minute
)

// Options configure a Copy invocation. Build them with NewOptions or
// DefaultOptions; the zero value is not valid.
type Options struct {
	followSymlinks      bool
	preservePermissions bool
	maxRetries          int
	retryDelay          time.Duration
	smallFileThreshold  int64
	smallFileBatchSize  int
	bufferSize          int
	parallelThreshold   int64
	stagingDir          string
	drainTimeout        time.Duration
	verify              HashAlgo
	rateLimit           int64
	progress            ProgressFunc
	logger              *slog.Logger
	callbacks           Callbacks
	ignore              IgnoreFunc
}

// Option sets one field of Options, rejecting out-of-range values.
type Option func(*Options) error

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		followSymlinks:     true,
		maxRetries:         DefaultMaxRetries,
		retryDelay:         DefaultRetryDelay,
		smallFileThreshold: DefaultSmallFileThreshold,
		smallFileBatchSize: DefaultSmallFileBatchSize,
		bufferSize:         DefaultBufferSize,
		parallelThreshold:  DefaultParallelThreshold,
		drainTimeout:       DefaultDrainTimeout,
		verify:             HashNone,
	}
}

// NewOptions applies opts to the defaults. It stops at the first invalid
// option and returns an error wrapping ErrInvalidArgument.
func NewOptions(opts ...Option) (Options, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return Options{}, err
		}
	}
	return o, nil
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// WithFollowSymlinks selects whether symlinks are copied as the content they
// point to (true) or replicated as links (false).
func WithFollowSymlinks(follow bool) Option {
	return func(o *Options) error {
		o.followSymlinks = follow
		return nil
	}
}

// WithPreservePermissions copies POSIX permission bits from source to target.
func WithPreservePermissions(preserve bool) Option {
	return func(o *Options) error {
		o.preservePermissions = preserve
		return nil
	}
}

// WithMaxRetries sets how many extra attempts a failed file transfer gets.
func WithMaxRetries(n int) Option {
	return func(o *Options) error {
		if n < 0 {
			return invalidArg("max retries must be >= 0, got %d", n)
		}
		o.maxRetries = n
		return nil
	}
}

// WithRetryDelay sets the wait between transfer attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return invalidArg("retry delay must be > 0, got %s", d)
		}
		o.retryDelay = d
		return nil
	}
}

// WithSmallFileThreshold sets the largest file size copied in batches.
func WithSmallFileThreshold(n int64) Option {
	return func(o *Options) error {
		if n <= 0 {
			return invalidArg("small file threshold must be > 0, got %d", n)
		}
		o.smallFileThreshold = n
		return nil
	}
}

// WithSmallFileBatchSize sets how many small files one task copies.
func WithSmallFileBatchSize(n int) Option {
	return func(o *Options) error {
		if n <= 0 {
			return invalidArg("small file batch size must be > 0, got %d", n)
		}
		o.smallFileBatchSize = n
		return nil
	}
}

// WithProgress sets the progress callback. nil disables progress reporting.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Options) error {
		o.progress = fn
		return nil
	}
}

// WithBufferSize sets the copy buffer size in bytes.
func WithBufferSize(n int) Option {
	return func(o *Options) error {
		if n <= 0 {
			return invalidArg("buffer size must be > 0, got %d", n)
		}
		o.bufferSize = n
		return nil
	}
}

// WithParallelThreshold sets the smallest file size copied in parallel chunks
// when more than one thread is available.
func WithParallelThreshold(n int64) Option {
	return func(o *Options) error {
		if n <= 0 {
			return invalidArg("parallel threshold must be > 0, got %d", n)
		}
		o.parallelThreshold = n
		return nil
	}
}

// WithStagingDir sets the directory holding staging files. The empty string
// selects os.TempDir().
func WithStagingDir(dir string) Option {
	return func(o *Options) error {
		if dir != "" {
			info, err := os.Stat(dir)
			if err != nil {
				return invalidArg("staging dir: %v", err)
			}
			if !info.IsDir() {
				return invalidArg("staging dir %s is not a directory", dir)
			}
		}
		o.stagingDir = dir
		return nil
	}
}

// WithDrainTimeout bounds how long a cancelled copy waits for in-flight tasks.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return invalidArg("drain timeout must be > 0, got %s", d)
		}
		o.drainTimeout = d
		return nil
	}
}

// WithVerify compares digests of the source and the staged copy before commit.
func WithVerify(algo HashAlgo) Option {
	return func(o *Options) error {
		if !algo.valid() {
			return invalidArg("unsupported hash algorithm: %q", algo)
		}
		o.verify = algo
		return nil
	}
}

// WithRateLimit caps the aggregate copy throughput in bytes per second.
// Zero means unlimited.
func WithRateLimit(bytesPerSec int64) Option {
	return func(o *Options) error {
		if bytesPerSec < 0 {
			return invalidArg("rate limit must be >= 0, got %d", bytesPerSec)
		}
		o.rateLimit = bytesPerSec
		return nil
	}
}

// WithLogger sets the logger. nil selects logging.DefaultLogger().
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) error {
		o.logger = l
		return nil
	}
}

// WithCallbacks sets the per-operation callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(o *Options) error {
		o.callbacks = cb
		return nil
	}
}

// WithIgnore sets a filter for entries skipped during the walk.
func WithIgnore(fn IgnoreFunc) Option {
	return func(o *Options) error {
		o.ignore = fn
		return nil
	}
}

// FollowSymlinks reports whether symlinks are followed.
func (o Options) FollowSymlinks() bool { return o.followSymlinks }

// PreservePermissions reports whether permission bits are copied.
func (o Options) PreservePermissions() bool { return o.preservePermissions }

// MaxRetries returns the number of extra transfer attempts.
func (o Options) MaxRetries() int { return o.maxRetries }

// RetryDelay returns the wait between transfer attempts.
func (o Options) RetryDelay() time.Duration { return o.retryDelay }

// SmallFileThreshold returns the largest file size copied in batches.
func (o Options) SmallFileThreshold() int64 { return o.smallFileThreshold }

// SmallFileBatchSize returns the number of small files per batch.
func (o Options) SmallFileBatchSize() int { return o.smallFileBatchSize }

// BufferSize returns the copy buffer size in bytes.
func (o Options) BufferSize() int { return o.bufferSize }

// ParallelThreshold returns the smallest file size copied in chunks.
func (o Options) ParallelThreshold() int64 { return o.parallelThreshold }

// DrainTimeout returns the wait for in-flight tasks after cancellation.
func (o Options) DrainTimeout() time.Duration { return o.drainTimeout }

// Verify returns the digest used to check staged copies.
func (o Options) Verify() HashAlgo { return o.verify }

// RateLimit returns the throughput cap in bytes per second, 0 if unlimited.
func (o Options) RateLimit() int64 { return o.rateLimit }

// StagingDir returns the directory used for staging files.
func (o Options) StagingDir() string {
	if o.stagingDir == "" {
		return os.TempDir()
	}
	return o.stagingDir
}

func (o Options) log() *slog.Logger {
	if o.logger == nil {
		return logging.DefaultLogger()
	}
	return o.logger
}

// validate re-checks ranges for values not built through NewOptions.
func (o Options) validate() error {
	switch {
	case o.maxRetries < 0:
		return invalidArg("max retries must be >= 0, got %d", o.maxRetries)
	case o.retryDelay <= 0:
		return invalidArg("retry delay must be > 0, got %s", o.retryDelay)
	case o.smallFileThreshold <= 0:
		return invalidArg("small file threshold must be > 0, got %d", o.smallFileThreshold)
	case o.smallFileBatchSize <= 0:
		return invalidArg("small file batch size must be > 0, got %d", o.smallFileBatchSize)
	case o.bufferSize <= 0:
		return invalidArg("buffer size must be > 0, got %d", o.bufferSize)
	case o.parallelThreshold <= 0:
		return invalidArg("parallel threshold must be > 0, got %d", o.parallelThreshold)
	case o.drainTimeout <= 0:
		return invalidArg("drain timeout must be > 0, got %s", o.drainTimeout)
	case o.rateLimit < 0:
		return invalidArg("rate limit must be >= 0, got %d", o.rateLimit)
	case !o.verify.valid():
		return invalidArg("unsupported hash algorithm: %q", o.verify)
	}
	return nil
}
