package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"fcopy"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create parent of %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create %s: %v", path, err)
		}
	}
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestBasicCopy(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := filepath.Join(t.TempDir(), "dst")
	writeTree(t, srcDir, map[string]string{
		"file1.txt":        "content1",
		"subdir/file2.txt": "content2",
	})

	code, _, stderr := runCmd(t, "--threads", "4", srcDir, dstDir)
	if code != exitOK {
		t.Fatalf("copy failed with code %d: %s", code, stderr)
	}
	for name, want := range map[string]string{"file1.txt": "content1", "subdir/file2.txt": "content2"} {
		got, err := os.ReadFile(filepath.Join(dstDir, filepath.FromSlash(name)))
		if err != nil || string(got) != want {
			t.Errorf("%s: got %q, %v; want %q", name, got, err, want)
		}
	}
}

func TestExcludeFlag(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	writeTree(t, srcDir, map[string]string{
		"include.txt":       "keep",
		"exclude.txt":       "skip",
		"node_modules/x.js": "skip",
	})

	code, _, stderr := runCmd(t, "--exclude", "exclude.txt", "--exclude", "node_modules", srcDir, dstDir)
	if code != exitOK {
		t.Fatalf("copy failed with code %d: %s", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "include.txt")); err != nil {
		t.Errorf("include.txt should be in dst: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "exclude.txt")); err == nil {
		t.Error("exclude.txt should not be in dst")
	}
	if _, err := os.Stat(filepath.Join(dstDir, "node_modules")); err == nil {
		t.Error("node_modules should not be in dst")
	}
}

func TestExitCodes(t *testing.T) {
	srcDir := t.TempDir()
	writeTree(t, srcDir, map[string]string{"a.txt": "a"})
	dst := filepath.Join(t.TempDir(), "out")
	missing := filepath.Join(t.TempDir(), "missing")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"--help"}, exitOK},
		{"no arguments", nil, exitUsage},
		{"one argument", []string{srcDir}, exitUsage},
		{"unknown flag", []string{"--bogus", srcDir, dst}, exitUsage},
		{"missing source", []string{missing, dst}, exitMissingSource},
		{"zero threads", []string{"--threads", "0", srcDir, dst}, exitInvalidArgument},
		{"negative retries", []string{"--retries=-1", srcDir, dst}, exitInvalidArgument},
		{"bad verify", []string{"--verify", "crc7", srcDir, dst}, exitInvalidArgument},
		{"bad retry delay", []string{"--retry-delay", "soon", srcDir, dst}, exitInvalidArgument},
		{"missing config", []string{"--config", missing, srcDir, dst}, exitInvalidArgument},
		{"cyclic", []string{srcDir, filepath.Join(srcDir, "copy")}, exitInvalidArgument},
		{"success", []string{"-q", srcDir, dst}, exitOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCmd(t, tt.args...)
			if code != tt.want {
				t.Errorf("exit code = %d, want %d (stderr: %s)", code, tt.want, stderr)
			}
		})
	}
}

func TestExitCodeMapping(t *testing.T) {
	is := is.New(t)
	is.Equal(exitCode(nil), exitOK)
	is.Equal(exitCode(usageError{errors.New("x")}), exitUsage)
	is.Equal(exitCode(&fcopy.FatalError{Err: errors.New("disk")}), exitRuntime)
	is.Equal(exitCode(&fcopy.PathError{Op: "resolve", Err: fcopy.ErrInvalidPath}), exitMissingSource)
	is.Equal(exitCode(fcopy.ErrCyclicCopy), exitInvalidArgument)
	is.Equal(exitCode(fcopy.ErrInterrupted), exitRuntime)
}

func TestVerboseAndStats(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	writeTree(t, srcDir, map[string]string{"a.txt": "aaaa", "d/b.txt": "bb"})

	code, stdout, stderr := runCmd(t, "-v", "--stats", "--verify", "xxhash", srcDir, dstDir)
	if code != exitOK {
		t.Fatalf("copy failed with code %d: %s", code, stderr)
	}
	for _, want := range []string{"[copy]", "[mkdir]", "Final Statistics", "Files copied"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestProgressFlag(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	writeTree(t, srcDir, map[string]string{"a.txt": strings.Repeat("x", 100_000)})

	code, _, stderr := runCmd(t, "--progress", srcDir, dstDir)
	if code != exitOK {
		t.Fatalf("copy failed with code %d: %s", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "a.txt")); err != nil {
		t.Errorf("a.txt not copied: %v", err)
	}
}

func TestConfigFile(t *testing.T) {
	is := is.New(t)
	cfgPath := filepath.Join(t.TempDir(), "fcopy.yaml")
	is.NoErr(os.WriteFile(cfgPath, []byte(strings.Join([]string{
		"threads: 3",
		"retries: 7",
		"retry_delay: 250ms",
		"verify: sha256",
		"exclude:",
		"  - .git",
	}, "\n")), 0644))

	cfg, err := loadConfig(cfgPath)
	is.NoErr(err)
	is.Equal(cfg.Threads, 3)
	is.Equal(cfg.Retries, 7)
	is.Equal(cfg.RetryDelay, "250ms")
	is.Equal(cfg.Exclude, []string{".git"})
	is.Equal(cfg.BatchSize, defaultConfig().BatchSize) // unset keeps default

	// explicitly set flags win over the file
	flags := defaultConfig()
	flags.Retries = 1
	flags.Threads = 16
	merged := mergeConfig(cfg, flags, func(name string) bool { return name == "retries" })
	is.Equal(merged.Retries, 1)
	is.Equal(merged.Threads, 3)
	is.Equal(merged.Verify, "sha256")

	_, stdout, _ := runCmd(t, "--config", cfgPath, "--retries", "2", "--print-config")
	is.True(strings.Contains(stdout, "threads: 3"))
	is.True(strings.Contains(stdout, "retries: 2"))
}

func TestEmptyConfig(t *testing.T) {
	is := is.New(t)
	cfg := defaultConfig()
	is.NoErr(decodeConfig(strings.NewReader(""), &cfg))
	is.Equal(cfg, defaultConfig())
}

func TestConfigOptions(t *testing.T) {
	is := is.New(t)
	cfg := defaultConfig()
	cfg.RetryDelay = "5ms"
	cfg.Verify = "md5"
	cfg.RateLimit = 1 << 20
	cfg.StagingDir = t.TempDir()
	list, err := cfg.options(nil)
	is.NoErr(err)
	opts, err := fcopy.NewOptions(list...)
	is.NoErr(err)
	is.Equal(opts.RetryDelay().Milliseconds(), int64(5))
	is.Equal(opts.Verify(), fcopy.HashMD5)
	is.Equal(opts.RateLimit(), int64(1<<20))
	is.Equal(opts.StagingDir(), cfg.StagingDir)
}

func TestStatsCollector(t *testing.T) {
	collector := &statsCollector{}
	var logged []string
	cb := collector.callbacks(func(kind string, details any, err error) {
		logged = append(logged, kind)
	})

	cb.OnMkdir("/d", os.ModeDir|0755, nil)
	cb.OnMkdir("/e", os.ModeDir|0755, errors.New("denied"))
	cb.OnCopy("/s/a", "/d/a", 1024000, nil)
	cb.OnCopy("/s/b", "/d/b", 10, errors.New("boom"))
	cb.OnSymlink("/d/l", "a", nil)
	cb.OnChmod("/d/a", 0644, nil)
	cb.OnChtimes("/d/a", nil)
	cb.OnRetry("/s/b", 1, errors.New("transient"))

	snap := collector.snapshot()
	if snap.mkdir != 1 {
		t.Errorf("expected mkdir=1, got %d", snap.mkdir)
	}
	if snap.copies != 1 || snap.failed != 1 {
		t.Errorf("expected copies=1 failed=1, got %d %d", snap.copies, snap.failed)
	}
	if snap.bytes != 1024000 {
		t.Errorf("expected bytes=1024000, got %d", snap.bytes)
	}
	if snap.symlink != 1 || snap.chmod != 1 || snap.chtimes != 1 || snap.retries != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if len(logged) != 8 {
		t.Errorf("expected 8 logged operations, got %d", len(logged))
	}
}

func TestPrintStatsTable(t *testing.T) {
	var buf bytes.Buffer
	cur := statsSnapshot{copies: 1500, mkdir: 3, bytes: 5_000_000}
	start := time.Now().Add(-time.Second)
	printStatsTable(&buf, cur, statsSnapshot{}, start, start)
	out := stripANSI(buf.String())
	for _, want := range []string{"copy", "mkdir", "bytes", "1.5k"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in table:\n%s", want, out)
		}
	}
	if strings.Contains(out, "symlink") {
		t.Errorf("zero rows should be omitted:\n%s", out)
	}
}

func TestProgressView(t *testing.T) {
	is := is.New(t)
	v := newProgressView(io.Discard, "/src")
	v.update("/src/dir/a", "/dst/dir/a", 5, 10)
	v.update("/src/dir/a", "/dst/dir/a", 10, 10)
	is.Equal(len(v.trackers), 1)
	tr := v.trackers["/src/dir/a"]
	is.Equal(tr.Message, filepath.Join("dir", "a"))
	is.Equal(tr.Value(), int64(10))

	v.done("/src/dir/a", nil)
	is.Equal(len(v.trackers), 0)
	is.True(tr.IsDone())
	v.done("/src/never-reported", nil)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    uint64
		expected string
	}{
		{0, "0.00 B"},
		{512, "512.00 B"},
		{1024, "1.00 KB"},
		{1024 * 1024, "1.00 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
	}

	for _, tt := range tests {
		result := formatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("formatBytes(%d) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}

func TestFormatBytesRate(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "0.00 B/s"},
		{-3, "0.00 B/s"},
		{512.5, "512.50 B/s"},
		{1024, "1.00 KB/s"},
		{1024 * 1024, "1.00 MB/s"},
	}

	for _, tt := range tests {
		result := formatBytesRate(tt.input)
		if result != tt.expected {
			t.Errorf("formatBytesRate(%.1f) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		input    uint64
		expected string
	}{
		{0, "0"},
		{123, "123"},
		{1234, "1,234"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		result := formatCount(tt.input)
		if result != tt.expected {
			t.Errorf("formatCount(%d) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}

func TestFormatScaled(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{formatScaledUint(0, ""), ""},
		{formatScaledUint(999, ""), "999"},
		{formatScaledUint(1500, "/s"), "1.5k/s"},
		{formatScaledBytesUint(2_500_000), "2.5M"},
		{formatScaledFloat(3_000_000_000, ""), "3.0g"},
		{omitLeadingZero("0.5"), ".5"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestAlignDecimal(t *testing.T) {
	got := alignDecimal([]string{"1.5", "123.4", "", "12"})
	want := []string{"  1.5", "123.4", "", " 12"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("alignDecimal[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStripANSI(t *testing.T) {
	if got := stripANSI("\x1b[1mbold\x1b[0m plain"); got != "bold plain" {
		t.Errorf("stripANSI = %q", got)
	}
}

func TestLogMsg(t *testing.T) {
	var buf bytes.Buffer
	logMsg(&buf, "test", "details", io.EOF)
	logMsg(&buf, "copy", "a -> b", nil)
	want := "[test] details (err=EOF)\n[copy] a -> b\n"
	if buf.String() != want {
		t.Errorf("logMsg output = %q, want %q", buf.String(), want)
	}
}
