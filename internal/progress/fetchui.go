package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/scenefetch/scenefetch/internal/constants"
	"github.com/scenefetch/scenefetch/internal/fetch"
)

// FetchUI draws one mpb bar per fetch attempt. It implements fetch.Progress.
type FetchUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	started    atomic.Int32
	mu         sync.Mutex // serializes plain output
}

// NewFetchUI creates a UI writing to out (normally os.Stderr).
func NewFetchUI(out io.Writer) *FetchUI {
	isTerminal := IsTerminal(out)

	var p *mpb.Progress
	if isTerminal {
		enableANSIOnWindows(out.(*os.File))
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(constants.ProgressUpdateInterval),
			mpb.WithWidth(60),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &FetchUI{progress: p, out: out, isTerminal: isTerminal}
}

// Begin starts a bar for one attempt at name.
func (u *FetchUI) Begin(name string, size int64, attempt int) fetch.FileProgress {
	index := u.started.Add(1)
	fb := &fileBar{ui: u, name: name, size: size, attempt: attempt, start: time.Now()}

	if !u.isTerminal {
		u.printf("Fetching #%d: %s (%.1f MiB)%s\n", index, name, humanMiB(size), retrySuffix(attempt))
		return fb
	}

	total := size
	if total < 0 {
		total = 0
	}
	fb.bar = u.progress.New(total,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(name+retrySuffix(attempt), decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
			decor.Name("  ETA "),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
		mpb.BarRemoveOnComplete(),
	)
	return fb
}

// Writer returns a writer that prints above the bars.
func (u *FetchUI) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal reports whether bars are drawn.
func (u *FetchUI) IsTerminal() bool { return u.isTerminal }

// Wait flushes and stops the bar container. Call once after all fetches finished.
func (u *FetchUI) Wait() {
	u.progress.Wait()
}

func (u *FetchUI) printf(format string, args ...interface{}) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintf(u.out, format, args...)
}

func retrySuffix(attempt int) string {
	if attempt > 1 {
		return fmt.Sprintf(" (attempt %d)", attempt)
	}
	return ""
}

type fileBar struct {
	ui      *FetchUI
	bar     *mpb.Bar
	name    string
	size    int64
	attempt int
	start   time.Time
}

// Wrap returns r with EWMA byte accounting on the bar.
func (f *fileBar) Wrap(r io.Reader) io.Reader {
	if f.bar == nil {
		return r
	}
	return f.bar.ProxyReader(r)
}

// Finish closes the bar and prints a one-line summary.
func (f *fileBar) Finish(err error) {
	elapsed := time.Since(f.start)
	if err != nil {
		if f.bar != nil {
			f.bar.Abort(true)
		}
		f.write(fmt.Sprintf("✗ %s%s: %v\n", f.name, retrySuffix(f.attempt), err))
		return
	}

	if f.bar != nil {
		f.bar.SetTotal(-1, true)
	}
	speed := 0.0
	if s := elapsed.Seconds(); s > 0 {
		speed = humanMiB(f.size) / s
	}
	f.write(fmt.Sprintf("✓ %s (%.1f MiB, %s, %.1f MiB/s)\n", f.name, humanMiB(f.size), elapsed.Round(time.Millisecond), speed))
}

func (f *fileBar) write(msg string) {
	if f.ui.isTerminal {
		_, _ = f.ui.progress.Write([]byte(msg))
		return
	}
	f.ui.printf("%s", msg)
}
