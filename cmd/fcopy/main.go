// Command fcopy provides a CLI wrapper around the fcopy library for copying a
// file or directory tree with optional verbose logs, progress bars and stats.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fcopy"
	"fcopy/internal/logging"
)

// Exit codes. Usage errors come from argument parsing, the others from the
// category of the error returned by fcopy.Copy.
const (
	exitOK              = 0
	exitRuntime         = 1
	exitUsage           = 2
	exitInvalidArgument = 3
	exitMissingSource   = 4
)

// usageError marks errors in the command line itself.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command with args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "fcopy:", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	var uerr usageError
	if errors.As(err, &uerr) {
		return exitUsage
	}
	switch fcopy.CategoryOf(err) {
	case fcopy.CategoryNone:
		return exitOK
	case fcopy.CategoryInvalidArgument:
		return exitInvalidArgument
	case fcopy.CategoryMissingSource:
		return exitMissingSource
	default:
		return exitRuntime
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flagCfg := defaultConfig()
	var (
		noFollow      bool
		verbose       bool
		quiet         bool
		showProgress  bool
		statsFlag     bool
		statsInterval time.Duration
		configFile    string
		printConfig   bool
	)
	out := &syncWriter{w: stdout}
	errOut := &syncWriter{w: stderr}

	rootCmd := &cobra.Command{
		Use:           "fcopy <src> <dst>",
		Short:         "Copy a file or directory tree in parallel",
		Version:       fcopy.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if printConfig && len(args) == 0 {
				return nil
			}
			if len(args) != 2 {
				return usageError{fmt.Errorf("expected <src> <dst>, got %d argument(s)", len(args))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			flagCfg.FollowSymlinks = !noFollow
			cfg := flagCfg
			if configFile != "" {
				fileCfg, err := loadConfig(configFile)
				if err != nil {
					return fmt.Errorf("%w: %w", fcopy.ErrInvalidArgument, err)
				}
				cfg = mergeConfig(fileCfg, flagCfg, cmd.Flags().Changed)
			}
			if printConfig {
				return writeConfig(out, cfg)
			}
			if statsFlag && statsInterval <= 0 {
				return fmt.Errorf("%w: stats interval must be > 0, got %s", fcopy.ErrInvalidArgument, statsInterval)
			}
			src, dst := args[0], args[1]

			level := slog.LevelWarn
			switch {
			case quiet:
				level = slog.LevelError
			case verbose:
				level = slog.LevelDebug
			}
			logger := logging.NewLogger(errOut, level)

			stats := &statsCollector{}
			var logOp func(kind string, details any, err error)
			if verbose && !quiet {
				logOp = func(kind string, details any, err error) { logMsg(out, kind, details, err) }
			}
			callbacks := stats.callbacks(logOp)

			var extra []fcopy.Option
			var view *progressView
			if showProgress && !quiet {
				view = newProgressView(errOut, src)
				onCopy := callbacks.OnCopy
				callbacks.OnCopy = func(srcPath, dstPath string, size int64, err error) {
					onCopy(srcPath, dstPath, size, err)
					view.done(srcPath, err)
				}
				extra = append(extra, fcopy.WithProgress(view.update))
			}
			extra = append(extra, fcopy.WithCallbacks(callbacks))

			optList, err := cfg.options(logger, extra...)
			if err != nil {
				return err
			}
			opts, err := fcopy.NewOptions(optList...)
			if err != nil {
				return err
			}

			start := time.Now()
			var wg sync.WaitGroup
			var done chan struct{}
			if statsFlag {
				done = make(chan struct{})
				wg.Add(1)
				go func() {
					defer wg.Done()
					runStatsPrinter(out, stats, done, start, statsInterval)
				}()
			}
			if view != nil {
				view.start()
			}

			err = fcopy.Copy(cmd.Context(), src, dst, cfg.Threads, opts)

			if view != nil {
				view.stop()
			}
			if done != nil {
				close(done)
				wg.Wait()
				printFinalStats(out, stats.snapshot(), time.Since(start))
			}
			return err
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	f := rootCmd.Flags()
	f.IntVarP(&flagCfg.Threads, "threads", "t", flagCfg.Threads, "maximum number of concurrent file transfers (>=1)")
	f.BoolVar(&noFollow, "no-follow-symlinks", false, "replicate symlinks instead of copying what they point to")
	f.BoolVar(&flagCfg.PreservePerms, "preserve-perms", flagCfg.PreservePerms, "copy permission bits of files and directories")
	f.IntVar(&flagCfg.Retries, "retries", flagCfg.Retries, "additional attempts for a failed file transfer")
	f.StringVar(&flagCfg.RetryDelay, "retry-delay", flagCfg.RetryDelay, "wait between transfer attempts")
	f.Int64Var(&flagCfg.SmallThreshold, "small-threshold", flagCfg.SmallThreshold, "files up to this size in bytes are batched")
	f.IntVar(&flagCfg.BatchSize, "batch-size", flagCfg.BatchSize, "small files per batch")
	f.IntVar(&flagCfg.BufferSize, "buffer-size", flagCfg.BufferSize, "copy buffer size in bytes")
	f.StringVar(&flagCfg.StagingDir, "staging-dir", "", "directory for staging files (default: system temp dir)")
	f.StringVar(&flagCfg.Verify, "verify", flagCfg.Verify, "verify staged copies: none, md5, sha256, sha512 or xxhash")
	f.Int64Var(&flagCfg.RateLimit, "rate-limit", 0, "bandwidth limit in bytes per second (0: unlimited)")
	f.StringArrayVar(&flagCfg.Exclude, "exclude", nil, "exclude entries whose base name matches (repeatable)")
	f.BoolVarP(&verbose, "verbose", "v", false, "print verbose operation logs")
	f.BoolVarP(&quiet, "quiet", "q", false, "only print errors")
	f.BoolVar(&showProgress, "progress", false, "show per-file progress bars")
	f.BoolVar(&statsFlag, "stats", false, "print stats periodically and a summary at the end")
	f.DurationVar(&statsInterval, "stats-interval", 10*time.Second, "interval for --stats")
	f.StringVar(&configFile, "config", "", "YAML file with default settings; flags override it")
	f.BoolVar(&printConfig, "print-config", false, "print the effective settings as YAML and exit")
	return rootCmd
}

// logMsg prints a log message with operation kind, details, and optional error.
func logMsg(w io.Writer, kind string, details any, err error) {
	if err != nil {
		fmt.Fprintf(w, "[%s] %v (err=%v)\n", kind, details, err)
		return
	}
	fmt.Fprintf(w, "[%s] %v\n", kind, details)
}

// syncWriter serializes writes from worker callbacks and the stats printer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
