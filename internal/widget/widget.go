package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/you-humble/pdftrack/internal/domain"
)

const (
	DefaultPollInterval = 2 * time.Second
	AlertTTL            = 5 * time.Second
)

// ErrSuperseded is returned by Submit when the session was reset or replaced
// by a newer submission before the upload answered.
var ErrSuperseded = errors.New("upload session superseded")

type Client interface {
	Upload(ctx context.Context, file domain.SelectedFile) (domain.UploadResponse, error)
	Status(ctx context.Context, jobID string) (domain.StatusSnapshot, error)
}

// View draws the widget. Calls are serialized by the widget; a view must not
// call back into it.
type View interface {
	Render(ctx context.Context, m Model) error
	Alert(ctx context.Context, a domain.Alert) error
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type Option func(*Widget)

func WithPollInterval(d time.Duration) Option {
	return func(w *Widget) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithPollTimeout bounds how long one job is polled. Zero polls until a
// terminal status arrives.
func WithPollTimeout(d time.Duration) Option {
	return func(w *Widget) {
		if d >= 0 {
			w.timeout = d
		}
	}
}

func WithTicker(fn TickerFunc) Option {
	return func(w *Widget) {
		if fn != nil {
			w.newTicker = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Widget) {
		if l != nil {
			w.logger = l
		}
	}
}

type Widget struct {
	client    Client
	view      View
	interval  time.Duration
	timeout   time.Duration
	newTicker TickerFunc
	logger    *slog.Logger

	mu    sync.Mutex
	model Model
	seq   uint64
	sess  *session
}

func New(client Client, view View, opts ...Option) *Widget {
	w := &Widget{
		client:    client,
		view:      view,
		interval:  DefaultPollInterval,
		newTicker: newTimeTicker,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// session is one upload-to-completion cycle. Its context doubles as the
// cancellation token of the polling task.
type session struct {
	id    uint64
	ctx   context.Context
	jobID string

	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (s *session) close() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
	})
}

func (w *Widget) Model() Model {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model
}

func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model.State
}

// Select accepts a file from the input or from a drop. Anything but a PDF is
// rejected with a warning and the model is left as it was.
func (w *Widget) Select(ctx context.Context, f domain.SelectedFile) error {
	if !f.IsPDF() {
		w.logger.Warn("file rejected",
			slog.String("file_name", f.Name),
			slog.String("mime_type", f.MIMEType),
		)
		w.alert(ctx, domain.AlertWarning, msgInvalidFile)
		return fmt.Errorf("%w: %q", domain.ErrInvalidFileType, f.MIMEType)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.dispatchLocked(ctx, Event{Kind: EventFileSelected, File: f})
	return nil
}

func (w *Widget) Clear(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dispatchLocked(ctx, Event{Kind: EventFileCleared})
}

// Reset stops polling and returns the widget to idle with nothing selected.
func (w *Widget) Reset(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
	w.dispatchLocked(ctx, Event{Kind: EventReset})
}

// Submit uploads the selected file and, once the server hands out a job
// handle, starts polling its status in the background. Canceling ctx stops
// the polling task.
func (w *Widget) Submit(ctx context.Context) error {
	w.mu.Lock()
	if w.model.File == nil {
		w.mu.Unlock()
		w.alert(ctx, domain.AlertWarning, msgNoFile)
		return domain.ErrNoFileSelected
	}
	file := *w.model.File

	w.stopLocked()
	sess := w.beginLocked(ctx)
	w.dispatchLocked(ctx, Event{Kind: EventSubmitStarted})
	w.mu.Unlock()

	logger := w.logger.With(
		slog.Uint64("session", sess.id),
		slog.String("file_name", file.Name),
	)
	logger.Info("uploading", slog.Int64("size", file.Size))

	resp, err := w.client.Upload(sess.ctx, file)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.activeLocked(sess) {
		logger.Debug("upload answer dropped, session no longer active")
		if w.sess == sess {
			w.finishLocked(sess)
			return ctx.Err()
		}
		return ErrSuperseded
	}

	if err != nil {
		logger.Error("upload failed", slog.String("error", err.Error()))
		w.finishLocked(sess)
		w.dispatchLocked(ctx, Event{Kind: EventUploadFailed, Message: uploadFailureMessage(err)})
		return err
	}

	sess.jobID = resp.JobID
	logger.Info("upload accepted", slog.String("job_id", resp.JobID))
	w.dispatchLocked(ctx, Event{Kind: EventUploadAccepted, JobID: resp.JobID, Message: resp.Message})

	go w.poll(sess, logger.With(slog.String("job_id", resp.JobID)))
	return nil
}

// Wait blocks until the current session reaches a terminal state, is reset,
// or ctx is done, and returns the model at that point.
func (w *Widget) Wait(ctx context.Context) (Model, error) {
	w.mu.Lock()
	sess := w.sess
	w.mu.Unlock()

	if sess != nil {
		select {
		case <-sess.done:
		case <-ctx.Done():
			return w.Model(), ctx.Err()
		}
	}
	return w.Model(), nil
}

func (w *Widget) poll(sess *session, logger *slog.Logger) {
	defer func() {
		w.mu.Lock()
		if w.sess == sess {
			w.sess = nil
		}
		w.mu.Unlock()
		sess.close()
	}()

	t := w.newTicker(w.interval)
	defer t.Stop()

	var deadline <-chan time.Time
	if w.timeout > 0 {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	logger.Debug("polling started", slog.Duration("interval", w.interval))
	for {
		select {
		case <-sess.ctx.Done():
			logger.Debug("polling stopped")
			return
		case <-deadline:
			logger.Warn("polling timed out", slog.Duration("timeout", w.timeout))
			w.apply(sess, Event{Kind: EventPollFailed, Message: msgTimedOut})
			return
		case <-t.C():
		}

		if !w.active(sess) {
			return
		}

		snap, err := w.client.Status(sess.ctx, sess.jobID)
		ev := statusEvent(snap, err)
		if err != nil {
			logger.Error("status check failed", slog.String("error", err.Error()))
		} else {
			logger.Debug("status",
				slog.String("status", string(snap.Status)),
				slog.Float64("progress", snap.Progress),
			)
		}

		if !w.apply(sess, ev) {
			return
		}
	}
}

// apply dispatches e if sess is still the active session. It reports whether
// polling should go on.
func (w *Widget) apply(sess *session, e Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.activeLocked(sess) {
		return false
	}

	w.dispatchLocked(context.WithoutCancel(sess.ctx), e)
	if w.model.State.Terminal() {
		w.finishLocked(sess)
		return false
	}
	return true
}

func (w *Widget) active(sess *session) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeLocked(sess)
}

func (w *Widget) activeLocked(sess *session) bool {
	return w.sess == sess && sess.ctx.Err() == nil
}

func (w *Widget) beginLocked(parent context.Context) *session {
	w.seq++
	ctx, cancel := context.WithCancel(parent)
	sess := &session{
		id:     w.seq,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	w.sess = sess
	return sess
}

func (w *Widget) finishLocked(sess *session) {
	if w.sess == sess {
		w.sess = nil
	}
	sess.close()
}

func (w *Widget) stopLocked() {
	if w.sess != nil {
		w.logger.Debug("canceling active session", slog.Uint64("session", w.sess.id))
		w.finishLocked(w.sess)
	}
}

func (w *Widget) dispatchLocked(ctx context.Context, e Event) {
	w.model = Reduce(w.model, e)
	if w.view == nil {
		return
	}
	if err := w.view.Render(ctx, w.model); err != nil {
		w.logger.Warn("render", slog.String("error", err.Error()))
	}
}

func (w *Widget) alert(ctx context.Context, level domain.AlertLevel, message string) {
	if w.view == nil {
		return
	}
	if err := w.view.Alert(ctx, domain.Alert{Level: level, Message: message, TTL: AlertTTL}); err != nil {
		w.logger.Warn("alert", slog.String("error", err.Error()))
	}
}

func uploadFailureMessage(err error) string {
	var serr *domain.ServerError
	switch {
	case errors.As(err, &serr):
		return serr.Reason
	case errors.Is(err, domain.ErrMissingJobID):
		return msgUploadFailed
	default:
		return networkErrorPrefix + err.Error()
	}
}

func statusEvent(snap domain.StatusSnapshot, err error) Event {
	if err == nil {
		return Event{Kind: EventStatus, Status: snap}
	}

	var serr *domain.ServerError
	if errors.As(err, &serr) {
		return Event{Kind: EventPollFailed, Message: serr.Reason}
	}
	return Event{Kind: EventPollFailed, Message: networkErrorPrefix + err.Error()}
}

type timeTicker struct {
	t *time.Ticker
}

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
