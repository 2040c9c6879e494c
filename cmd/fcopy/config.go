package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/goccy/go-yaml"

	"fcopy"
)

// cliConfig holds every setting the command accepts. Flags bind directly to
// its fields; a --config file decodes into the same shape.
type cliConfig struct {
	Threads        int      `yaml:"threads"`
	FollowSymlinks bool     `yaml:"follow_symlinks"`
	PreservePerms  bool     `yaml:"preserve_permissions"`
	Retries        int      `yaml:"retries"`
	RetryDelay     string   `yaml:"retry_delay"`
	SmallThreshold int64    `yaml:"small_threshold"`
	BatchSize      int      `yaml:"batch_size"`
	BufferSize     int      `yaml:"buffer_size"`
	StagingDir     string   `yaml:"staging_dir,omitempty"`
	Verify         string   `yaml:"verify"`
	RateLimit      int64    `yaml:"rate_limit"`
	Exclude        []string `yaml:"exclude,omitempty"`
}

func defaultConfig() cliConfig {
	d := fcopy.DefaultOptions()
	return cliConfig{
		Threads:        runtime.NumCPU(),
		FollowSymlinks: d.FollowSymlinks(),
		PreservePerms:  d.PreservePermissions(),
		Retries:        d.MaxRetries(),
		RetryDelay:     d.RetryDelay().String(),
		SmallThreshold: d.SmallFileThreshold(),
		BatchSize:      d.SmallFileBatchSize(),
		BufferSize:     d.BufferSize(),
		Verify:         "none",
	}
}

// configFields maps flag names to the config field they set. A field is
// taken from the flags only when its flag was given explicitly.
var configFields = []struct {
	flag string
	set  func(dst, src *cliConfig)
}{
	{"threads", func(d, s *cliConfig) { d.Threads = s.Threads }},
	{"no-follow-symlinks", func(d, s *cliConfig) { d.FollowSymlinks = s.FollowSymlinks }},
	{"preserve-perms", func(d, s *cliConfig) { d.PreservePerms = s.PreservePerms }},
	{"retries", func(d, s *cliConfig) { d.Retries = s.Retries }},
	{"retry-delay", func(d, s *cliConfig) { d.RetryDelay = s.RetryDelay }},
	{"small-threshold", func(d, s *cliConfig) { d.SmallThreshold = s.SmallThreshold }},
	{"batch-size", func(d, s *cliConfig) { d.BatchSize = s.BatchSize }},
	{"buffer-size", func(d, s *cliConfig) { d.BufferSize = s.BufferSize }},
	{"staging-dir", func(d, s *cliConfig) { d.StagingDir = s.StagingDir }},
	{"verify", func(d, s *cliConfig) { d.Verify = s.Verify }},
	{"rate-limit", func(d, s *cliConfig) { d.RateLimit = s.RateLimit }},
	{"exclude", func(d, s *cliConfig) { d.Exclude = s.Exclude }},
}

// loadConfig reads a YAML config file. Settings missing from the file keep
// their defaults.
func loadConfig(name string) (cliConfig, error) {
	cfg := defaultConfig()
	f, err := os.Open(name)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", name, err)
	}
	defer f.Close()
	if err := decodeConfig(f, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", name, err)
	}
	return cfg, nil
}

func decodeConfig(r io.Reader, cfg *cliConfig) error {
	err := yaml.NewDecoder(r).Decode(cfg)
	if err == io.EOF {
		// empty file
		return nil
	}
	return err
}

// mergeConfig returns file with every explicitly changed flag value from
// flags applied on top.
func mergeConfig(file, flags cliConfig, changed func(name string) bool) cliConfig {
	out := file
	for _, f := range configFields {
		if changed(f.flag) {
			f.set(&out, &flags)
		}
	}
	return out
}

// writeConfig prints cfg as YAML, as accepted by --config.
func writeConfig(w io.Writer, cfg cliConfig) error {
	return yaml.NewEncoder(w).Encode(cfg)
}

// options converts the config into library options.
func (c cliConfig) options(logger *slog.Logger, extra ...fcopy.Option) ([]fcopy.Option, error) {
	delay, err := time.ParseDuration(c.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: retry delay %q: %v", fcopy.ErrInvalidArgument, c.RetryDelay, err)
	}
	algo, err := fcopy.ParseHashAlgo(c.Verify)
	if err != nil {
		return nil, err
	}
	opts := []fcopy.Option{
		fcopy.WithLogger(logger),
		fcopy.WithFollowSymlinks(c.FollowSymlinks),
		fcopy.WithPreservePermissions(c.PreservePerms),
		fcopy.WithMaxRetries(c.Retries),
		fcopy.WithRetryDelay(delay),
		fcopy.WithSmallFileThreshold(c.SmallThreshold),
		fcopy.WithSmallFileBatchSize(c.BatchSize),
		fcopy.WithBufferSize(c.BufferSize),
		fcopy.WithVerify(algo),
		fcopy.WithRateLimit(c.RateLimit),
	}
	if c.StagingDir != "" {
		opts = append(opts, fcopy.WithStagingDir(c.StagingDir))
	}
	if len(c.Exclude) > 0 {
		opts = append(opts, fcopy.WithIgnore(excludeNames(c.Exclude)))
	}
	return append(opts, extra...), nil
}

// excludeNames skips entries whose base name is in names.
func excludeNames(names []string) fcopy.IgnoreFunc {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return func(name, path string, isDir bool, info os.FileInfo) bool {
		_, ok := set[name]
		return ok
	}
}
