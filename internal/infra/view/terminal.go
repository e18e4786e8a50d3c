package view

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/you-humble/pdftrack/internal/domain"
	"github.com/you-humble/pdftrack/internal/widget"
)

const barWidth = 20

// terminal prints what changed between two renders, one line per change.
type terminal struct {
	mu      sync.Mutex
	out     io.Writer
	resolve func(string) string
	prev    widget.Model
}

func NewTerminal(out io.Writer, resolve func(string) string) *terminal {
	if resolve == nil {
		resolve = func(s string) string { return s }
	}
	return &terminal{out: out, resolve: resolve}
}

func (t *terminal) Render(ctx context.Context, m widget.Model) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.prev
	t.prev = m

	var b strings.Builder
	s, p := m.Screen, prev.Screen

	if s.FileLabel != p.FileLabel {
		if s.FileLabel != "" {
			fmt.Fprintf(&b, "Selected %s\n", s.FileLabel)
		} else {
			b.WriteString("Selection cleared\n")
		}
	}

	if s.ProgressVisible && (!p.ProgressVisible || s.Progress != p.Progress || s.ProgressMessage != p.ProgressMessage) {
		fmt.Fprintf(&b, "%s %3d%% %s\n", progressBar(s.Progress), s.Progress, s.ProgressMessage)
	}

	if s.ResultVisible && (!p.ResultVisible || s.DownloadURL != p.DownloadURL) {
		fmt.Fprintf(&b, "✓ Done. Download: %s\n", t.resolve(s.DownloadURL))
	}

	if s.ErrorVisible && (!p.ErrorVisible || s.ErrorMessage != p.ErrorMessage) {
		fmt.Fprintf(&b, "✗ %s\n", s.ErrorMessage)
	}

	if m.State == widget.StateIdle && prev.State != widget.StateIdle && !s.ProgressVisible {
		b.WriteString("Reset\n")
	}

	if b.Len() == 0 {
		return nil
	}
	_, err := io.WriteString(t.out, b.String())
	return err
}

func (t *terminal) Alert(ctx context.Context, a domain.Alert) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := fmt.Fprintf(t.out, "%s %s\n", alertMark(a.Level), a.Message)
	return err
}

func progressBar(percent int) string {
	filled := percent * barWidth / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}

func alertMark(l domain.AlertLevel) string {
	switch l {
	case domain.AlertWarning:
		return "⚠"
	case domain.AlertError:
		return "✗"
	case domain.AlertSuccess:
		return "✓"
	default:
		return "i"
	}
}
