package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	barWidth       = 30
	renderInterval = 100 * time.Millisecond
)

// Bar draws a single-line progress indicator for a fixed number of steps.
// A nil *Bar is valid and draws nothing.
type Bar struct {
	mu         sync.Mutex
	out        io.Writer
	label      string
	total      int
	done       int
	failed     int
	start      time.Time
	lastRender time.Time
	now        func() time.Time
}

// New returns a bar of total steps drawn on out, or nil when out is nil.
func New(out io.Writer, total int, label string) *Bar {
	if out == nil {
		return nil
	}
	b := &Bar{out: out, label: label, total: total, now: time.Now}
	b.start = b.now()
	b.lastRender = b.start
	return b
}

// Step records one finished step. Failed steps are counted separately.
func (b *Bar) Step(ok bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done++
	if !ok {
		b.failed++
	}
	now := b.now()
	if now.Sub(b.lastRender) < renderInterval && b.done < b.total {
		return
	}
	b.lastRender = now
	b.render(now)
}

// Finish draws the final state and ends the line.
func (b *Bar) Finish() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.render(b.now())
	fmt.Fprint(b.out, "\n")
}

func (b *Bar) render(now time.Time) {
	filled := 0
	if b.total > 0 {
		filled = min(barWidth, barWidth*b.done/b.total)
	}
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat("-", barWidth-filled-1)
	}
	line := fmt.Sprintf("\r[%s] %d/%d", bar, b.done, b.total)
	if b.label != "" {
		line = fmt.Sprintf("\r%s [%s] %d/%d", b.label, bar, b.done, b.total)
	}
	if b.failed > 0 {
		line += fmt.Sprintf(" failed=%d", b.failed)
	}
	line += " | " + formatDuration(now.Sub(b.start))
	fmt.Fprint(b.out, line)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
