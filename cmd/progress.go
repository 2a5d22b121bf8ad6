package main

import (
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/desertthunder/redlist/internal/tasks"
)

// progressPrinter renders progress updates: as a bar for the counted stages when the output
// is a terminal, and as plain lines otherwise.
type progressPrinter struct {
	r     *Runner
	tty   bool
	bar   *pb.ProgressBar
	stage tasks.Stage
}

func newProgressPrinter(r *Runner) *progressPrinter {
	return &progressPrinter{r: r, tty: r.isTTY()}
}

// run consumes updates until ch is closed and then closes done.
func (p *progressPrinter) run(ch <-chan tasks.ProgressUpdate, done chan<- struct{}) {
	defer close(done)
	for update := range ch {
		p.handle(update)
	}
	p.finish()
}

func (p *progressPrinter) handle(u tasks.ProgressUpdate) {
	counted := u.Stage == tasks.ResolveTracks || u.Stage == tasks.DownloadArtifacts
	if !counted {
		p.finish()
		p.r.writePlain("→ %s\n", u.Message)
		return
	}

	if !p.tty {
		p.r.writePlain("   %s\n", u.Message)
		return
	}

	if p.bar == nil || p.stage != u.Stage {
		p.finish()
		p.stage = u.Stage
		p.bar = pb.Full.New(u.Total).SetWriter(p.r.output).Set("prefix", stageLabel(u.Stage)).Start()
	}
	if int64(u.Step) > p.bar.Current() {
		p.bar.SetCurrent(int64(u.Step))
	}
}

func (p *progressPrinter) finish() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}

func stageLabel(s tasks.Stage) string {
	switch s {
	case tasks.ResolveTracks:
		return "Resolving "
	case tasks.DownloadArtifacts:
		return "Downloading "
	default:
		return s.String() + " "
	}
}

// track starts a printer on a fresh channel. The returned stop func closes the channel and waits
// for the printer to drain it; calling it again is a no-op.
func (p *progressPrinter) track() (chan tasks.ProgressUpdate, func()) {
	ch := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go p.run(ch, done)

	var once sync.Once
	return ch, func() {
		once.Do(func() { close(ch) })
		<-done
	}
}
