package main

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/bdougie/motionvec/internal/logging"
)

// progress shows rendered frames on a terminal. It is inert otherwise.
type progress struct {
	bar *progressbar.ProgressBar
}

func newProgress(w io.Writer, total int, unbounded bool) *progress {
	if !logging.IsTerminal(w) {
		return &progress{}
	}
	limit := int64(total)
	if unbounded {
		limit = -1
	}
	return &progress{bar: progressbar.NewOptions64(limit,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("rendering"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowIts(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)}
}

func (p *progress) frameDone(int) {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p *progress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
