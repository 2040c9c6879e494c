package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"fcopy"
)

// statsCollector aggregates operation counts and byte totals using atomic operations.
type statsCollector struct {
	mkdir   atomic.Uint64
	symlink atomic.Uint64
	chmod   atomic.Uint64
	chtimes atomic.Uint64
	copies  atomic.Uint64
	failed  atomic.Uint64
	retries atomic.Uint64
	bytes   atomic.Uint64
}

// statsSnapshot captures a point-in-time view of collected statistics.
type statsSnapshot struct {
	mkdir   uint64
	symlink uint64
	chmod   uint64
	chtimes uint64
	copies  uint64
	failed  uint64
	retries uint64
	bytes   uint64
}

// snapshot returns a consistent view of current stats at a given moment.
func (s *statsCollector) snapshot() statsSnapshot {
	return statsSnapshot{
		mkdir:   s.mkdir.Load(),
		symlink: s.symlink.Load(),
		chmod:   s.chmod.Load(),
		chtimes: s.chtimes.Load(),
		copies:  s.copies.Load(),
		failed:  s.failed.Load(),
		retries: s.retries.Load(),
		bytes:   s.bytes.Load(),
	}
}

// callbacks returns library callbacks feeding the collector. When logOp is
// set, every operation is also passed to it.
func (s *statsCollector) callbacks(logOp func(kind string, details any, err error)) fcopy.Callbacks {
	if logOp == nil {
		logOp = func(string, any, error) {}
	}
	return fcopy.Callbacks{
		OnMkdir: func(path string, mode os.FileMode, err error) {
			if err == nil {
				s.mkdir.Add(1)
			}
			logOp("mkdir", fmt.Sprintf("%s (%s)", path, mode.String()), err)
		},
		OnCopy: func(srcPath, dstPath string, size int64, err error) {
			if err != nil {
				s.failed.Add(1)
			} else {
				s.copies.Add(1)
				if size > 0 {
					s.bytes.Add(uint64(size))
				}
			}
			logOp("copy", fmt.Sprintf("%s -> %s (%s)", srcPath, dstPath, formatBytes(uint64(max(size, 0)))), err)
		},
		OnSymlink: func(linkPath, target string, err error) {
			if err == nil {
				s.symlink.Add(1)
			}
			logOp("symlink", fmt.Sprintf("%s -> %s", linkPath, target), err)
		},
		OnChmod: func(path string, mode os.FileMode, err error) {
			if err == nil {
				s.chmod.Add(1)
			}
			logOp("chmod", fmt.Sprintf("%s -> %s", path, mode.String()), err)
		},
		OnChtimes: func(path string, err error) {
			if err == nil {
				s.chtimes.Add(1)
			}
			logOp("chtimes", path, err)
		},
		OnRetry: func(srcPath string, attempt int, err error) {
			s.retries.Add(1)
			logOp("retry", fmt.Sprintf("%s (attempt %d)", srcPath, attempt), err)
		},
	}
}

// runStatsPrinter prints stats every interval until done is closed.
func runStatsPrinter(w io.Writer, stats *statsCollector, done <-chan struct{}, start time.Time, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastSnapshot := stats.snapshot()
	lastTime := start
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			snapshot := stats.snapshot()
			printStatsTable(w, snapshot, lastSnapshot, start, lastTime)
			lastSnapshot = snapshot
			lastTime = now
		case <-done:
			return
		}
	}
}

// printStatsTable formats and renders a stats table with operation counts and rates.
func printStatsTable(w io.Writer, cur, prev statsSnapshot, start, prevTime time.Time) {
	elapsed := time.Since(start).Seconds()
	interval := time.Since(prevTime).Seconds()
	if elapsed == 0 {
		elapsed = 1
	}
	if interval == 0 {
		interval = 1
	}

	rows := []struct {
		name        string
		total, prev uint64
	}{
		{"mkdir", cur.mkdir, prev.mkdir},
		{"copy", cur.copies, prev.copies},
		{"symlink", cur.symlink, prev.symlink},
		{"chmod", cur.chmod, prev.chmod},
		{"chtimes", cur.chtimes, prev.chtimes},
		{"retry", cur.retries, prev.retries},
		{"failed", cur.failed, prev.failed},
	}

	var names []string
	var totals []string
	var avgs []string
	var intervals []string

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Row = text.Colors{text.Reset}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignLeft},
		{Number: 4, Align: text.AlignLeft},
	})
	t.AppendHeader(table.Row{text.Bold.Sprint("Operation"), text.Bold.Sprint("Total"), text.Bold.Sprint("Avg/s"), text.Bold.Sprint("Avg/s (interval)")})

	for _, r := range rows {
		if r.total == 0 {
			continue
		}
		totalRate := float64(r.total) / elapsed
		intervalRate := float64(r.total-r.prev) / interval
		names = append(names, r.name)
		totals = append(totals, formatScaledUint(r.total, ""))
		avgs = append(avgs, formatAvgRate(totalRate))
		intervals = append(intervals, styleInterval(formatScaledFloat(intervalRate, "/s"), intervalRate, totalRate))
	}

	if cur.bytes > 0 {
		bytesRateTotal := float64(cur.bytes) / elapsed
		bytesRateInterval := float64(cur.bytes-prev.bytes) / interval
		names = append(names, "bytes")
		totals = append(totals, formatScaledBytesUint(cur.bytes))
		avgs = append(avgs, formatAvgBytesRate(bytesRateTotal))
		intervals = append(intervals, styleInterval(formatScaledBytesFloat(bytesRateInterval, "/s"), bytesRateInterval, bytesRateTotal))
	}

	// If nothing recorded, still render headers for clarity.
	if len(names) == 0 {
		t.Render()
		return
	}

	totals = alignDecimal(totals)
	avgs = alignDecimal(avgs)
	intervals = alignDecimal(intervals)
	for i, name := range names {
		t.AppendRow(table.Row{text.Bold.Sprint(name), totals[i], avgs[i], intervals[i]})
	}
	t.Render()
}

// styleInterval emphasizes interval rates well above the overall average and
// dims those well below it.
func styleInterval(s string, intervalRate, totalRate float64) string {
	if totalRate <= 0 {
		return s
	}
	ratio := intervalRate / totalRate
	if ratio > 1.5 {
		return text.Bold.Sprint(s)
	} else if ratio < 2.0/3.0 {
		return text.FgHiBlack.Sprint(s)
	}
	return s
}

// printFinalStats displays comprehensive final statistics after the copy.
func printFinalStats(w io.Writer, stats statsSnapshot, elapsed time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Final Statistics")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	t.AppendRows([]table.Row{
		{"Total duration", elapsed.Truncate(time.Millisecond).String()},
		{"Files copied", formatCount(stats.copies)},
		{"Files failed", formatCount(stats.failed)},
		{"Directories", formatCount(stats.mkdir)},
		{"Symlinks", formatCount(stats.symlink)},
		{"Retries", formatCount(stats.retries)},
		{"Copied data size", formatBytes(stats.bytes)},
	})
	if secs := elapsed.Seconds(); secs > 0 {
		t.AppendRow(table.Row{"Copy speed", formatBytesRate(float64(stats.bytes) / secs)})
	}
	t.Render()
}

// formatScaledUint renders an integer using scaled units (k, m, g, t...) with one decimal place.
// Returns an empty string when the value is zero.
func formatScaledUint(n uint64, suffix string) string {
	if n == 0 {
		return ""
	}
	if n < 1000 {
		return fmt.Sprintf("%d%s", n, suffix)
	}
	return formatScaledFloat(float64(n), suffix)
}

// formatScaledBytesUint renders a byte count using uppercase scaled units without a "B" suffix.
// Returns an empty string when the value is zero.
func formatScaledBytesUint(n uint64) string {
	if n == 0 {
		return ""
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return formatScaledBytesFloat(float64(n), "")
}

func formatScaledFloat(v float64, suffix string) string {
	return scaleFloat(v, suffix, []string{"", "k", "m", "g", "t", "p", "e"})
}

func formatScaledBytesFloat(v float64, suffix string) string {
	return scaleFloat(v, suffix, []string{"", "K", "M", "G", "T", "P", "E"})
}

// scaleFloat divides v by 1000 until it drops below 1000 and renders it with
// one decimal place and the matching unit. Returns an empty string for zero.
func scaleFloat(v float64, suffix string, units []string) string {
	if v == 0 {
		return ""
	}
	idx := 0
	abs := v
	if abs < 0 {
		abs = -abs
	}
	for abs >= 1000 && idx < len(units)-1 {
		v /= 1000
		abs /= 1000
		idx++
	}
	return fmt.Sprintf("%.1f%s%s", v, units[idx], suffix)
}

// formatAvgRate renders a scaled rate with the same styling rules as the
// interval column.
func formatAvgRate(value float64) string {
	if value <= 0 {
		return ""
	}
	if value < 0.05 {
		return text.FgHiBlack.Sprint("<")
	}
	return stylizeFraction(omitLeadingZero(formatScaledFloat(value, "")))
}

func formatAvgBytesRate(value float64) string {
	if value <= 0 {
		return ""
	}
	if value < 0.05 {
		return text.FgHiBlack.Sprint("<")
	}
	return stylizeFraction(omitLeadingZero(formatScaledBytesFloat(value, "")))
}

// omitLeadingZero removes a leading "0" for values like "0.5" or "0.5/s".
func omitLeadingZero(s string) string {
	if strings.HasPrefix(s, "0.") {
		return s[1:]
	}
	return s
}

// stylizeFraction dims the decimal point and fractional digits when the integer part
// has two or more digits, but preserves the scale suffix (k, m, K, M, etc.).
func stylizeFraction(s string) string {
	plain := stripANSI(s)
	dot := strings.IndexByte(plain, '.')
	if dot == -1 || dot < 2 {
		return s
	}
	fracEnd := dot + 1
	for fracEnd < len(plain) && plain[fracEnd] >= '0' && plain[fracEnd] <= '9' {
		fracEnd++
	}
	dotIndex := indexInStyled(s, dot)
	fracEndIndex := indexInStyled(s, fracEnd)
	if fracEnd == len(plain) {
		fracEndIndex = len(s)
	}
	if dotIndex == -1 || fracEndIndex == -1 || dotIndex >= len(s) || fracEndIndex > len(s) {
		return s
	}
	return s[:dotIndex] + text.FgHiBlack.Sprint(s[dotIndex:fracEndIndex]) + s[fracEndIndex:]
}

// indexInStyled maps an index in the plain string to the styled string index.
func indexInStyled(styled string, plainIndex int) int {
	pi := 0
	for i := 0; i < len(styled); i++ {
		if styled[i] == '\x1b' && i+1 < len(styled) && styled[i+1] == '[' {
			i += 2
			for i < len(styled) {
				c := styled[i]
				if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
					break
				}
				i++
			}
			continue
		}
		if pi == plainIndex {
			return i
		}
		pi++
	}
	return -1
}

// alignDecimal pads values so their decimal points line up in a column.
func alignDecimal(values []string) []string {
	decimalPos := func(v string) int {
		plain := stripANSI(v)
		if dot := strings.IndexByte(plain, '.'); dot != -1 {
			return dot
		}
		return len(plain)
	}
	maxInt := 0
	for _, v := range values {
		if v != "" {
			maxInt = max(maxInt, decimalPos(v))
		}
	}
	out := make([]string, len(values))
	for i, v := range values {
		if v == "" {
			continue
		}
		out[i] = strings.Repeat(" ", maxInt-decimalPos(v)) + v
	}
	return out
}

// stripANSI removes ANSI color sequences for alignment calculations.
func stripANSI(s string) string {
	if !strings.Contains(s, "\x1b[") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '[' {
			i += 2
			for i < len(s) {
				c := s[i]
				if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
					break
				}
				i++
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// formatCount formats an unsigned integer with thousands separators.
func formatCount(n uint64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	rem := len(s) % 3
	if rem == 0 {
		rem = 3
	}
	b.WriteString(s[:rem])
	for i := rem; i < len(s); i += 3 {
		b.WriteString(",")
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// formatBytes formats a byte count as a human-readable string (B, KB, MB, GB, TB).
func formatBytes(n uint64) string {
	return binaryUnits(float64(n), []string{"B", "KB", "MB", "GB", "TB"})
}

// formatBytesRate formats a transfer rate in bytes/sec as a human-readable string.
func formatBytesRate(rate float64) string {
	return binaryUnits(max(rate, 0), []string{"B/s", "KB/s", "MB/s", "GB/s", "TB/s"})
}

func binaryUnits(v float64, units []string) string {
	idx := 0
	for v >= 1024 && idx < len(units)-1 {
		v /= 1024
		idx++
	}
	return fmt.Sprintf("%.2f %s", v, units[idx])
}
