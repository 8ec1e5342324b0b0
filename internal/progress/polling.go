package progress

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/scenefetch/scenefetch/internal/events"
)

// PollProgress shows how many preparing downloads have been resolved.
type PollProgress struct {
	out        io.Writer
	isTerminal bool
	bar        *progressbar.ProgressBar
	lastRound  int
}

// NewPollProgress creates a reporter writing to out.
func NewPollProgress(out io.Writer) *PollProgress {
	return &PollProgress{out: out, isTerminal: IsTerminal(out), lastRound: -1}
}

// Watch renders poll events from ch until it is closed or a batch completes.
func (p *PollProgress) Watch(ch <-chan events.Event) {
	for ev := range ch {
		switch e := ev.(type) {
		case *events.PollEvent:
			p.Update(e)
		case *events.BatchEvent:
			p.Finish()
			return
		}
	}
	p.Finish()
}

// Update renders one poll round.
func (p *PollProgress) Update(e *events.PollEvent) {
	if e.Round <= p.lastRound {
		return
	}
	p.lastRound = e.Round

	if !p.isTerminal {
		fmt.Fprintf(p.out, "Preparing downloads: %d/%d ready, %d pending (waited %s)\n",
			e.Resolved, e.Total, e.Pending, e.Elapsed)
		return
	}

	if p.bar == nil {
		p.bar = progressbar.NewOptions(e.Total,
			progressbar.OptionSetDescription("Preparing downloads"),
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(p.out, "\n")
			}),
		)
	}
	_ = p.bar.Set(e.Resolved)
	if e.Pending > 0 {
		p.bar.Describe(fmt.Sprintf("Preparing downloads (waited %s)", e.Elapsed))
	}
}

// Finish closes the bar if one is shown.
func (p *PollProgress) Finish() {
	if p.bar != nil && !p.bar.IsFinished() {
		_ = p.bar.Finish()
	}
}
