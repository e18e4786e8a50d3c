package filestore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"

	"github.com/you-humble/pdftrack/internal/domain"
	"github.com/you-humble/pdftrack/internal/infra/store/file/replicator"

	"golang.org/x/sync/errgroup"
)

type mirror interface {
	Put(ctx context.Context, r io.Reader, a domain.Artifact) (domain.Artifact, error)
	Get(ctx context.Context, name string) (io.ReadCloser, domain.Artifact, error)
	Remove(ctx context.Context, name string) error
	List(ctx context.Context) ([]domain.Artifact, error)
}

type MirrorOptions struct {
	QueueSize  int
	Workers    int
	MaxRetries int
	OnResult   replicator.ResultFunc
}

// mirroredStore answers from disk and copies every new artifact to a mirror
// in the background. Reads fall back to the mirror for artifacts that only
// live there.
type mirroredStore struct {
	disk   *diskStore
	mirror mirror
	repl   *replicator.Replicator
}

func NewMirroredStore(ctx context.Context, disk *diskStore, m mirror, opts MirrorOptions) *mirroredStore {
	repl := replicator.New(disk, m, opts.QueueSize, opts.Workers, opts.MaxRetries,
		replicator.WithResultFunc(opts.OnResult),
	)
	repl.Start(ctx)

	return &mirroredStore{disk: disk, mirror: m, repl: repl}
}

// Close waits for queued copies.
func (s *mirroredStore) Close(ctx context.Context) error {
	return s.repl.Stop(ctx)
}

func (s *mirroredStore) Put(ctx context.Context, r io.Reader, name string, size int64) (domain.Artifact, error) {
	a, err := s.disk.Put(ctx, r, name, size)
	if err != nil {
		return domain.Artifact{}, err
	}

	if !s.repl.Enqueue(a) {
		slog.Error("mirror queue full, artifact kept on disk only",
			slog.String("artifact", a.Name),
			slog.Int64("size", a.Size),
		)
	}
	return a, nil
}

func (s *mirroredStore) Get(ctx context.Context, name string) (io.ReadCloser, domain.Artifact, error) {
	rc, a, err := s.disk.Get(ctx, name)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return rc, a, err
	}
	return s.mirror.Get(ctx, name)
}

func (s *mirroredStore) Remove(ctx context.Context, name string) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.disk.Remove(ctx, name) })
	eg.Go(func() error { return s.mirror.Remove(ctx, name) })
	return eg.Wait()
}

// List merges both sides by name. The disk copy wins when both have one.
func (s *mirroredStore) List(ctx context.Context) ([]domain.Artifact, error) {
	var local, remote []domain.Artifact

	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		local, err = s.disk.List(ectx)
		return err
	})
	eg.Go(func() error {
		var err error
		remote, err = s.mirror.List(ectx)
		if err != nil {
			slog.Warn("list mirror", slog.String("error", err.Error()))
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(local))
	out := append([]domain.Artifact(nil), local...)
	for _, a := range local {
		seen[a.Name] = true
	}
	for _, a := range remote {
		if !seen[a.Name] {
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}
