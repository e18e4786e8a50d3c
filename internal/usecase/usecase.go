package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/you-humble/pdftrack/internal/domain"
	"github.com/you-humble/pdftrack/internal/picker"
	"github.com/you-humble/pdftrack/internal/widget"
)

var (
	ErrConversionFailed = errors.New("conversion failed")
	ErrNoArtifact       = errors.New("no artifact to save")
)

type Widget interface {
	Select(ctx context.Context, f domain.SelectedFile) error
	Clear(ctx context.Context)
	Reset(ctx context.Context)
	Submit(ctx context.Context) error
	Wait(ctx context.Context) (widget.Model, error)
	Model() widget.Model
}

type Client interface {
	Status(ctx context.Context, jobID string) (domain.StatusSnapshot, error)
	Health(ctx context.Context) (domain.HealthResponse, error)
	Download(ctx context.Context, downloadURL string) (domain.Download, error)
}

type ArtifactStore interface {
	Put(ctx context.Context, r io.Reader, name string, size int64) (domain.Artifact, error)
	List(ctx context.Context) ([]domain.Artifact, error)
}

type usecase struct {
	widget Widget
	client Client
	files  ArtifactStore
	out    io.Writer
}

func New(w Widget, client Client, files ArtifactStore, out io.Writer) *usecase {
	return &usecase{
		widget: w,
		client: client,
		files:  files,
		out:    out,
	}
}

// Convert runs one file through the widget and blocks until the job ends.
// With save set, the finished artifact is downloaded into the file store.
func (uc *usecase) Convert(ctx context.Context, path string, save bool) (widget.Model, error) {
	f, err := picker.FromPath(path)
	if err != nil {
		return uc.widget.Model(), err
	}
	if err := uc.widget.Select(ctx, f); err != nil {
		return uc.widget.Model(), err
	}

	if err := uc.widget.Submit(ctx); err != nil {
		return uc.widget.Model(), fmt.Errorf("submit: %w", err)
	}

	m, err := uc.widget.Wait(ctx)
	if err != nil {
		return m, err
	}

	switch m.State {
	case widget.StateCompleted:
		if save {
			if _, err := uc.SaveArtifact(ctx, m.Screen.DownloadURL); err != nil {
				return m, err
			}
		}
		return m, nil
	case widget.StateError:
		return m, fmt.Errorf("%w: %s", ErrConversionFailed, m.Screen.ErrorMessage)
	default:
		return m, fmt.Errorf("job ended in state %s", m.State)
	}
}

// SaveArtifact downloads the artifact behind downloadURL into the store.
func (uc *usecase) SaveArtifact(ctx context.Context, downloadURL string) (domain.Artifact, error) {
	if downloadURL == "" {
		return domain.Artifact{}, ErrNoArtifact
	}

	dl, err := uc.client.Download(ctx, downloadURL)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("download: %w", err)
	}
	defer dl.Content.Close()

	a, err := uc.files.Put(ctx, dl.Content, dl.FileName, dl.Size)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("save artifact: %w", err)
	}

	slog.Info("artifact saved",
		slog.String("path", a.Path),
		slog.Int64("size", a.Size),
		slog.String("sha256", a.SHA256),
	)
	fmt.Fprintf(uc.out, "Saved %s\n", a.Path)

	return a, nil
}

func (uc *usecase) Artifacts(ctx context.Context) ([]domain.Artifact, error) {
	return uc.files.List(ctx)
}

func (uc *usecase) Status(ctx context.Context, jobID string) (domain.StatusSnapshot, error) {
	if strings.TrimSpace(jobID) == "" {
		return domain.StatusSnapshot{}, domain.ErrMissingJobID
	}
	return uc.client.Status(ctx, jobID)
}

func (uc *usecase) Health(ctx context.Context) (domain.HealthResponse, error) {
	return uc.client.Health(ctx)
}

const watchHelp = `Drop or type a PDF path to select it.
  submit, s    upload the selected file
  clear        drop the selection
  reset, r     stop polling and start over
  status       show the current state
  save         download the finished artifact
  quit, q      leave
`

// Watch is the interactive mode. It reads commands and dropped paths from in
// until in is exhausted, "quit" is read or ctx is done.
func (uc *usecase) Watch(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprint(uc.out, watchHelp)

	for {
		select {
		case <-ctx.Done():
			uc.widget.Reset(context.WithoutCancel(ctx))
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				_, _ = uc.widget.Wait(ctx)
				return nil
			}
			if quit := uc.command(ctx, strings.TrimSpace(line)); quit {
				uc.widget.Reset(ctx)
				return nil
			}
		}
	}
}

func (uc *usecase) command(ctx context.Context, line string) bool {
	switch strings.ToLower(line) {
	case "":
	case "quit", "q", "exit":
		return true
	case "help", "?":
		fmt.Fprint(uc.out, watchHelp)
	case "submit", "s":
		if err := uc.widget.Submit(ctx); err != nil {
			slog.Debug("submit", slog.String("error", err.Error()))
		}
	case "clear":
		uc.widget.Clear(ctx)
	case "reset", "r":
		uc.widget.Reset(ctx)
	case "status":
		m := uc.widget.Model()
		fmt.Fprintf(uc.out, "state=%s job=%q progress=%d%%\n", m.State, m.JobID, m.Screen.Progress)
	case "save":
		m := uc.widget.Model()
		if m.State != widget.StateCompleted {
			fmt.Fprintln(uc.out, "Nothing to save yet")
			return false
		}
		if _, err := uc.SaveArtifact(ctx, m.Screen.DownloadURL); err != nil {
			fmt.Fprintf(uc.out, "✗ %v\n", err)
		}
	default:
		uc.selectPath(ctx, picker.ParseDropped(line))
	}
	return false
}

func (uc *usecase) selectPath(ctx context.Context, path string) {
	f, err := picker.FromPath(path)
	if err != nil {
		fmt.Fprintf(uc.out, "✗ %v\n", err)
		return
	}
	// A rejected type is reported by the widget itself.
	_ = uc.widget.Select(ctx, f)
}
