package widget

import (
	"fmt"
	"math"

	"github.com/you-humble/pdftrack/internal/domain"
)

type State uint8

const (
	StateIdle State = iota
	StatePolling
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Terminal reports whether polling has stopped for good in s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

type EventKind uint8

const (
	EventFileSelected EventKind = iota + 1
	EventFileCleared
	EventSubmitStarted
	EventUploadAccepted
	EventUploadFailed
	EventStatus
	EventPollFailed
	EventReset
)

type Event struct {
	Kind EventKind

	File    domain.SelectedFile   // EventFileSelected
	JobID   string                // EventUploadAccepted
	Status  domain.StatusSnapshot // EventStatus
	Message string                // EventUploadAccepted, EventUploadFailed, EventPollFailed
}

const (
	msgUploading        = "Uploading file..."
	msgUploadFailed     = "Upload failed"
	msgStatusFailed     = "Status check failed"
	msgProcessingFailed = "Processing failed"
	msgTimedOut         = "Processing timed out"
	msgInvalidFile      = "Please select a valid PDF file."
	msgNoFile           = "Please select a file first."
	networkErrorPrefix  = "Network error: "
)

// Screen is everything a view needs to draw the widget.
type Screen struct {
	FileLabel     string
	SubmitEnabled bool

	ProgressVisible bool
	Progress        int
	ProgressMessage string

	ResultVisible bool
	DownloadURL   string

	ErrorVisible bool
	ErrorMessage string
}

type Model struct {
	State  State
	File   *domain.SelectedFile
	JobID  string
	Screen Screen
}

// Next is the state part of the transition function. Events that make no
// sense in s leave it unchanged.
func Next(s State, e Event) State {
	switch e.Kind {
	case EventReset, EventSubmitStarted:
		return StateIdle
	case EventUploadAccepted:
		return StatePolling
	case EventUploadFailed:
		return StateError
	case EventStatus:
		if s != StatePolling {
			return s
		}
		switch e.Status.Status {
		case domain.StatusCompleted:
			return StateCompleted
		case domain.StatusError:
			return StateError
		default:
			return StatePolling
		}
	case EventPollFailed:
		if s != StatePolling {
			return s
		}
		return StateError
	default:
		return s
	}
}

// Reduce applies e to m and returns the new model. It has no side effects.
func Reduce(m Model, e Event) Model {
	switch e.Kind {
	case EventFileSelected:
		f := e.File
		m.File = &f
		m.Screen.FileLabel = FileLabel(f)
		m.Screen.SubmitEnabled = true

	case EventFileCleared:
		m.File = nil
		m.Screen.FileLabel = ""
		m.Screen.SubmitEnabled = false

	case EventSubmitStarted:
		m.State = Next(m.State, e)
		m.JobID = ""
		m.Screen.ProgressVisible = true
		m.Screen.Progress = 0
		m.Screen.ProgressMessage = msgUploading
		m.Screen.ResultVisible = false
		m.Screen.DownloadURL = ""
		m.Screen.ErrorVisible = false
		m.Screen.ErrorMessage = ""
		m.Screen.SubmitEnabled = false

	case EventUploadAccepted:
		m.State = Next(m.State, e)
		m.JobID = e.JobID
		if e.Message != "" {
			m.Screen.ProgressMessage = e.Message
		}

	case EventUploadFailed:
		m.State = Next(m.State, e)
		m = showError(m, e.Message, msgUploadFailed)

	case EventStatus:
		if m.State != StatePolling {
			return m
		}
		m.State = Next(m.State, e)
		m.Screen.Progress = clampProgress(e.Status.Progress)
		m.Screen.ProgressMessage = e.Status.Message
		switch m.State {
		case StateCompleted:
			m = showSuccess(m, e.Status.DownloadURL)
		case StateError:
			m = showError(m, e.Status.Error, msgProcessingFailed)
		}

	case EventPollFailed:
		if m.State != StatePolling {
			return m
		}
		m.State = Next(m.State, e)
		m = showError(m, e.Message, msgStatusFailed)

	case EventReset:
		m = Model{State: Next(m.State, e)}
	}

	return m
}

func showSuccess(m Model, downloadURL string) Model {
	m.JobID = ""
	m.Screen.ProgressVisible = false
	m.Screen.ResultVisible = true
	m.Screen.DownloadURL = downloadURL
	m.Screen.SubmitEnabled = m.File != nil
	return m
}

func showError(m Model, message, fallback string) Model {
	if message == "" {
		message = fallback
	}
	m.JobID = ""
	m.Screen.ProgressVisible = false
	m.Screen.ErrorVisible = true
	m.Screen.ErrorMessage = message
	m.Screen.SubmitEnabled = m.File != nil
	return m
}

func clampProgress(p float64) int {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(math.Round(p))
}

// FileLabel renders "name (x.xx MB)".
func FileLabel(f domain.SelectedFile) string {
	return fmt.Sprintf("%s (%s MB)", f.Name, FormatMB(f.Size))
}

// FormatMB renders a byte count in mebibytes with two decimals.
func FormatMB(size int64) string {
	return fmt.Sprintf("%.2f", float64(size)/(1024*1024))
}
