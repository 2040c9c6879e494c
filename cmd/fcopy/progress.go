package main

import (
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// progressView renders one progress bar per file in flight.
type progressView struct {
	pw   progress.Writer
	root string

	mu       sync.Mutex
	trackers map[string]*progress.Tracker
}

func newProgressView(w io.Writer, root string) *progressView {
	pw := progress.NewWriter()
	pw.SetOutputWriter(w)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetMessageLength(40)
	pw.SetStyle(progress.StyleDefault)
	pw.SetTrackerPosition(progress.PositionRight)
	pw.SetUpdateFrequency(200 * time.Millisecond)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Speed = true
	return &progressView{pw: pw, root: root, trackers: map[string]*progress.Tracker{}}
}

// start begins rendering in the background.
func (v *progressView) start() {
	go v.pw.Render()
}

// stop halts rendering and waits for the final frame.
func (v *progressView) stop() {
	v.pw.Stop()
	for v.pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
}

// update is the library progress callback.
func (v *progressView) update(src, dst string, copied, total int64) {
	v.tracker(src, total).SetValue(copied)
}

// done marks the tracker of src finished. Files that never reported progress
// (empty files) have no tracker.
func (v *progressView) done(src string, err error) {
	v.mu.Lock()
	t, ok := v.trackers[src]
	delete(v.trackers, src)
	v.mu.Unlock()
	if !ok {
		return
	}
	if err != nil {
		t.MarkAsErrored()
		return
	}
	t.MarkAsDone()
}

func (v *progressView) tracker(src string, total int64) *progress.Tracker {
	v.mu.Lock()
	defer v.mu.Unlock()
	if t, ok := v.trackers[src]; ok {
		return t
	}
	msg := src
	if rel, err := filepath.Rel(v.root, src); err == nil && rel != "." {
		msg = rel
	}
	t := &progress.Tracker{Message: msg, Total: total, Units: progress.UnitsBytes}
	v.pw.AppendTracker(t)
	v.trackers[src] = t
	return t
}
