package view

import (
	"context"
	"time"

	"github.com/you-humble/pdftrack/internal/domain"
	"github.com/you-humble/pdftrack/internal/widget"
)

type timeoutView struct {
	next    widget.View
	timeout time.Duration
}

// WithTimeout bounds every Render and Alert of next by d. Views that talk to
// the network are wrapped with it since the widget renders under its lock.
func WithTimeout(next widget.View, d time.Duration) *timeoutView {
	return &timeoutView{next: next, timeout: d}
}

func (v *timeoutView) Render(ctx context.Context, m widget.Model) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.next.Render(ctx, m)
}

func (v *timeoutView) Alert(ctx context.Context, a domain.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.next.Alert(ctx, a)
}
