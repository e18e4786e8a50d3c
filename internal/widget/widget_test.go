package widget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/pdftrack/internal/domain"
)

type statusReply struct {
	snap domain.StatusSnapshot
	err  error
}

type fakeClient struct {
	mu        sync.Mutex
	uploads   int
	uploadRes domain.UploadResponse
	uploadErr error
	// holdUpload makes Upload block until its ctx is done.
	holdUpload    bool
	uploadStarted chan struct{}

	statusCalls   chan string
	replies       chan statusReply
	ignoreCancel  bool
	statusCounter int
}

func newFakeClient(jobID string) *fakeClient {
	return &fakeClient{
		uploadRes:     domain.UploadResponse{JobID: jobID, Message: "File uploaded successfully. Processing started."},
		uploadStarted: make(chan struct{}, 4),
		statusCalls:   make(chan string, 16),
		replies:       make(chan statusReply, 16),
	}
}

func (f *fakeClient) Upload(ctx context.Context, file domain.SelectedFile) (domain.UploadResponse, error) {
	f.mu.Lock()
	f.uploads++
	hold := f.holdUpload
	f.mu.Unlock()
	select {
	case f.uploadStarted <- struct{}{}:
	default:
	}

	if hold {
		<-ctx.Done()
		return domain.UploadResponse{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploadRes, f.uploadErr
}

func (f *fakeClient) Status(ctx context.Context, jobID string) (domain.StatusSnapshot, error) {
	f.mu.Lock()
	f.statusCounter++
	f.mu.Unlock()
	f.statusCalls <- jobID

	if f.ignoreCancel {
		r := <-f.replies
		return r.snap, r.err
	}
	select {
	case r := <-f.replies:
		return r.snap, r.err
	case <-ctx.Done():
		return domain.StatusSnapshot{}, ctx.Err()
	}
}

func (f *fakeClient) counts() (uploads, statuses int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.statusCounter
}

type manualTicker struct {
	interval time.Duration
	ch       chan time.Time
	once     sync.Once
	stopped  chan struct{}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.once.Do(func() { close(m.stopped) })
}

type tickerFactory struct {
	created chan *manualTicker
}

func newTickerFactory() *tickerFactory {
	return &tickerFactory{created: make(chan *manualTicker, 4)}
}

func (tf *tickerFactory) New(d time.Duration) Ticker {
	t := &manualTicker{interval: d, ch: make(chan time.Time, 1), stopped: make(chan struct{})}
	tf.created <- t
	return t
}

type recordingView struct {
	mu      sync.Mutex
	renders []Model
	alerts  []domain.Alert
}

func (v *recordingView) Render(ctx context.Context, m Model) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renders = append(v.renders, m)
	return nil
}

func (v *recordingView) Alert(ctx context.Context, a domain.Alert) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alerts = append(v.alerts, a)
	return nil
}

func (v *recordingView) Alerts() []domain.Alert {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.Alert(nil), v.alerts...)
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting on channel")
	}
	var zero T
	return zero
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close")
	}
}

func pdf(name string, size int64) domain.SelectedFile {
	return domain.SelectedFile{Name: name, Size: size, MIMEType: domain.PDFMediaType, Path: "/tmp/" + name}
}

func newTestWidget(client *fakeClient, opts ...Option) (*Widget, *recordingView, *tickerFactory) {
	view := &recordingView{}
	tf := newTickerFactory()
	w := New(client, view, append([]Option{WithTicker(tf.New)}, opts...)...)
	return w, view, tf
}

func TestWidget_SelectRejectsNonPDF(t *testing.T) {
	tests := []struct {
		name string
		file domain.SelectedFile
	}{
		{name: "png", file: domain.SelectedFile{Name: "scan.png", Size: 10, MIMEType: "image/png"}},
		{name: "empty type", file: domain.SelectedFile{Name: "unknown", Size: 10}},
		{name: "octet stream named pdf", file: domain.SelectedFile{Name: "x.pdf", Size: 10, MIMEType: "application/octet-stream"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, view, _ := newTestWidget(newFakeClient("abc123"))

			err := w.Select(context.Background(), tt.file)
			require.ErrorIs(t, err, domain.ErrInvalidFileType)

			m := w.Model()
			assert.False(t, m.Screen.SubmitEnabled)
			assert.Empty(t, m.Screen.FileLabel)
			assert.Nil(t, m.File)

			alerts := view.Alerts()
			require.Len(t, alerts, 1)
			assert.Equal(t, domain.AlertWarning, alerts[0].Level)
			assert.Equal(t, "Please select a valid PDF file.", alerts[0].Message)
			assert.Equal(t, 5*time.Second, alerts[0].TTL)
		})
	}
}

func TestWidget_SelectRejectKeepsPreviousFile(t *testing.T) {
	w, _, _ := newTestWidget(newFakeClient("abc123"))
	ctx := context.Background()

	require.NoError(t, w.Select(ctx, pdf("first.pdf", 2048)))
	require.Error(t, w.Select(ctx, domain.SelectedFile{Name: "notes.txt", MIMEType: "text/plain"}))

	m := w.Model()
	require.NotNil(t, m.File)
	assert.Equal(t, "first.pdf", m.File.Name)
	assert.True(t, m.Screen.SubmitEnabled)
}

func TestWidget_SelectPDF(t *testing.T) {
	w, _, _ := newTestWidget(newFakeClient("abc123"))

	require.NoError(t, w.Select(context.Background(), pdf("report.pdf", 1572864)))

	m := w.Model()
	assert.Equal(t, "report.pdf (1.50 MB)", m.Screen.FileLabel)
	assert.True(t, m.Screen.SubmitEnabled)
	assert.Equal(t, StateIdle, m.State)
}

func TestWidget_Clear(t *testing.T) {
	w, _, _ := newTestWidget(newFakeClient("abc123"))
	ctx := context.Background()

	require.NoError(t, w.Select(ctx, pdf("report.pdf", 100)))
	w.Clear(ctx)

	m := w.Model()
	assert.Nil(t, m.File)
	assert.Empty(t, m.Screen.FileLabel)
	assert.False(t, m.Screen.SubmitEnabled)
}

func TestWidget_SubmitWithoutFile(t *testing.T) {
	client := newFakeClient("abc123")
	w, view, _ := newTestWidget(client)

	err := w.Submit(context.Background())
	require.ErrorIs(t, err, domain.ErrNoFileSelected)

	uploads, statuses := client.counts()
	assert.Zero(t, uploads)
	assert.Zero(t, statuses)

	alerts := view.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "Please select a file first.", alerts[0].Message)
	assert.Equal(t, StateIdle, w.State())
}

func TestWidget_PollsJobEveryInterval(t *testing.T) {
	client := newFakeClient("abc123")
	w, _, tf := newTestWidget(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Select(ctx, pdf("report.pdf", 100)))
	require.NoError(t, w.Submit(ctx))

	tk := recv(t, tf.created)
	assert.Equal(t, 2*time.Second, tk.interval)

	m := w.Model()
	assert.Equal(t, StatePolling, m.State)
	assert.Equal(t, "abc123", m.JobID)
	assert.True(t, m.Screen.ProgressVisible)
	assert.False(t, m.Screen.SubmitEnabled)
	assert.Equal(t, "File uploaded successfully. Processing started.", m.Screen.ProgressMessage)

	for i, progress := range []float64{10, 30} {
		tk.ch <- time.Now()
		assert.Equal(t, "abc123", recv(t, client.statusCalls))
		client.replies <- statusReply{snap: domain.StatusSnapshot{
			Status:   domain.StatusProcessing,
			Progress: progress,
			Message:  "working",
		}}

		require.Eventually(t, func() bool {
			return w.Model().Screen.Progress == int(progress)
		}, time.Second, 5*time.Millisecond, "tick %d", i)
	}

	assert.Equal(t, StatePolling, w.State())
	assert.Equal(t, "working", w.Model().Screen.ProgressMessage)
}

func TestWidget_CompletedStopsPolling(t *testing.T) {
	client := newFakeClient("abc123")
	w, _, tf := newTestWidget(client)
	ctx := context.Background()

	require.NoError(t, w.Select(ctx, pdf("report.pdf", 100)))
	require.NoError(t, w.Submit(ctx))
	tk := recv(t, tf.created)

	tk.ch <- time.Now()
	recv(t, client.statusCalls)
	client.replies <- statusReply{snap: domain.StatusSnapshot{
		Status:      domain.StatusCompleted,
		Progress:    100,
		Message:     "Processing completed successfully!",
		DownloadURL: "/files/out.pdf",
	}}

	m, err := w.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, m.State)
	assert.Equal(t, "/files/out.pdf", m.Screen.DownloadURL)
	assert.True(t, m.Screen.ResultVisible)
	assert.False(t, m.Screen.ProgressVisible)
	assert.True(t, m.Screen.SubmitEnabled)
	assert.Empty(t, m.JobID)

	waitClosed(t, tk.stopped)
	_, statuses := client.counts()
	assert.Equal(t, 1, statuses)
}

func TestWidget_ErrorStatusStopsPolling(t *testing.T) {
	tests := []struct {
		name    string
		reply   statusReply
		wantMsg string
	}{
		{
			name:    "server reported error",
			reply:   statusReply{snap: domain.StatusSnapshot{Status: domain.StatusError, Error: "bad format"}},
			wantMsg: "bad format",
		},
		{
			name:    "server reported error without reason",
			reply:   statusReply{snap: domain.StatusSnapshot{Status: domain.StatusError}},
			wantMsg: "Processing failed",
		},
		{
			name:    "non-2xx with reason",
			reply:   statusReply{err: &domain.ServerError{StatusCode: 404, Reason: "Job not found"}},
			wantMsg: "Job not found",
		},
		{
			name:    "non-2xx without reason",
			reply:   statusReply{err: &domain.ServerError{StatusCode: 502}},
			wantMsg: "Status check failed",
		},
		{
			name:    "network failure",
			reply:   statusReply{err: errors.New("connection refused")},
			wantMsg: "Network error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient("abc123")
			w, _, tf := newTestWidget(client)
			ctx := context.Background()

			require.NoError(t, w.Select(ctx, pdf("report.pdf", 100)))
			require.NoError(t, w.Submit(ctx))
			tk := recv(t, tf.created)

			tk.ch <- time.Now()
			recv(t, client.statusCalls)
			client.replies <- tt.reply

			m, err := w.Wait(ctx)
			require.NoError(t, err)
			assert.Equal(t, StateError, m.State)
			assert.True(t, m.Screen.ErrorVisible)
			assert.Equal(t, tt.wantMsg, m.Screen.ErrorMessage)
			assert.False(t, m.Screen.ProgressVisible)
			assert.True(t, m.Screen.SubmitEnabled)

			waitClosed(t, tk.stopped)
		})
	}
}

func TestWidget_UploadFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{name: "server reason", err: &domain.ServerError{StatusCode: 400, Reason: "Only PDF files are allowed"}, wantMsg: "Only PDF files are allowed"},
		{name: "no reason", err: &domain.ServerError{StatusCode: 500}, wantMsg: "Upload failed"},
		{name: "missing job id", err: domain.ErrMissingJobID, wantMsg: "Upload failed"},
		{name: "network", err: errors.New("dial tcp: refused"), wantMsg: "Network error: dial tcp: refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient("")
			client.uploadErr = tt.err
			w, _, tf := newTestWidget(client)
			ctx := context.Background()

			require.NoError(t, w.Select(ctx, pdf("report.pdf", 100)))
			require.ErrorIs(t, w.Submit(ctx), tt.err)

			m, err := w.Wait(ctx)
			require.NoError(t, err)
			assert.Equal(t, StateError, m.State)
			assert.Equal(t, tt.wantMsg, m.Screen.ErrorMessage)
			assert.True(t, m.Screen.SubmitEnabled)
			assert.Empty(t, tf.created)
		})
	}
}

func TestWidget_ResetStopsPolling(t *testing.T) {
	client := newFakeClient("abc123")
	w, _, tf := newTestWidget(client)
	ctx := context.Background()

	require.NoError(t, w.Select(ctx, pdf("report.pdf", 100)))
	require.NoError(t, w.Submit(ctx))
	tk := recv(t, tf.created)

	tk.ch <- time.Now()
	recv(t, client.statusCalls)
	client.replies <- statusReply{snap: domain.StatusSnapshot{Status: domain.StatusProcessing, Progress: 40}}
	require.Eventually(t, func() bool { return w.Model().Screen.Progress == 40 }, time.Second, 5*time.Millisecond)

	w.Reset(ctx)
	waitClosed(t, tk.stopped)

	select {
	case tk.ch <- time.Now():
	default:
	}

	_, statuses := client.counts()
	assert.Equal(t, 1, statuses)

	m := w.Model()
	assert.Equal(t, StateIdle, m.State)
	assert.Nil(t, m.File)
	assert.False(t, m.Screen.ProgressVisible)
	assert.False(t, m.Screen.ResultVisible)
	assert.False(t, m.Screen.ErrorVisible)
	assert.False(t, m.Screen.SubmitEnabled)
}

func TestWidget_LateResponseAfterResetIsDropped(t *testing.T) {
	client := newFakeClient("abc123")
	client.ignoreCancel = true
	w, _, tf := newTestWidget(client)
	ctx := context.Background()

	require.NoError(t, w.Select(ctx, pdf("report.pdf", 100)))
	require.NoError(t, w.Submit(ctx))
	tk := recv(t, tf.created)

	tk.ch <- time.Now()
	recv(t, client.statusCalls)

	w.Reset(ctx)
	client.replies <- statusReply{snap: domain.StatusSnapshot{Status: domain.StatusCompleted, DownloadURL: "/files/late.pdf"}}
	waitClosed(t, tk.stopped)

	m := w.Model()
	assert.Equal(t, StateIdle, m.State)
	assert.False(t, m.Screen.ResultVisible)
	assert.Empty(t, m.Screen.DownloadURL)
}

func TestWidget_ResetDuringUploadSupersedesSubmit(t *testing.T) {
	client := newFakeClient("abc123")
	client.holdUpload = true
	w, view, tf := newTestWidget(client)
	ctx := context.Background()

	require.NoError(t, w.Select(ctx, pdf("report.pdf", 100)))

	errc := make(chan error, 1)
	go func() { errc <- w.Submit(ctx) }()

	recv(t, client.uploadStarted)
	assert.True(t, w.Model().Screen.ProgressVisible)
	w.Reset(ctx)

	err := recv(t, errc)
	require.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, StateIdle, w.State())
	assert.Nil(t, w.Model().File)
	assert.Empty(t, tf.created)
	assert.Empty(t, view.Alerts())

	uploads, statuses := client.counts()
	assert.Equal(t, 1, uploads)
	assert.Zero(t, statuses)
}

func TestWidget_NewSubmissionCancelsPreviousLoop(t *testing.T) {
	client := newFakeClient("job-1")
	w, _, tf := newTestWidget(client)
	ctx := context.Background()

	require.NoError(t, w.Select(ctx, pdf("a.pdf", 100)))
	require.NoError(t, w.Submit(ctx))
	first := recv(t, tf.created)

	client.mu.Lock()
	client.uploadRes = domain.UploadResponse{JobID: "job-2"}
	client.mu.Unlock()

	require.NoError(t, w.Select(ctx, pdf("b.pdf", 100)))
	require.NoError(t, w.Submit(ctx))
	second := recv(t, tf.created)

	waitClosed(t, first.stopped)

	second.ch <- time.Now()
	assert.Equal(t, "job-2", recv(t, client.statusCalls))
	client.replies <- statusReply{snap: domain.StatusSnapshot{Status: domain.StatusCompleted, DownloadURL: "/download/job-2"}}

	m, err := w.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, m.State)
	assert.Equal(t, "/download/job-2", m.Screen.DownloadURL)
}

func TestWidget_PollTimeout(t *testing.T) {
	client := newFakeClient("abc123")
	w, _, tf := newTestWidget(client, WithPollTimeout(20*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, w.Select(ctx, pdf("report.pdf", 100)))
	require.NoError(t, w.Submit(ctx))
	tk := recv(t, tf.created)

	m, err := w.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateError, m.State)
	assert.Equal(t, "Processing timed out", m.Screen.ErrorMessage)
	waitClosed(t, tk.stopped)
}

func TestWidget_WaitHonoursContext(t *testing.T) {
	client := newFakeClient("abc123")
	w, _, tf := newTestWidget(client)

	require.NoError(t, w.Select(context.Background(), pdf("report.pdf", 100)))
	require.NoError(t, w.Submit(context.Background()))
	recv(t, tf.created)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	m, err := w.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatePolling, m.State)

	w.Reset(context.Background())
}
