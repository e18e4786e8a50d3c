package view

import (
	"context"

	"github.com/you-humble/pdftrack/internal/domain"
	"github.com/you-humble/pdftrack/internal/widget"

	"golang.org/x/sync/errgroup"
)

type broadcast struct {
	views []widget.View
}

// NewBroadcast renders to every view concurrently. The first error is
// returned once all of them are done.
func NewBroadcast(views ...widget.View) *broadcast {
	return &broadcast{views: views}
}

func (b *broadcast) Add(v widget.View) {
	b.views = append(b.views, v)
}

func (b *broadcast) Render(ctx context.Context, m widget.Model) error {
	var eg errgroup.Group
	for _, v := range b.views {
		eg.Go(func() error {
			return v.Render(ctx, m)
		})
	}
	return eg.Wait()
}

func (b *broadcast) Alert(ctx context.Context, a domain.Alert) error {
	var eg errgroup.Group
	for _, v := range b.views {
		eg.Go(func() error {
			return v.Alert(ctx, a)
		})
	}
	return eg.Wait()
}
