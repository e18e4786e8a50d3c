package domain

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

const PDFMediaType = "application/pdf"

type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

type SelectedFile struct {
	Name     string
	Size     int64
	MIMEType string
	Path     string
}

func (f SelectedFile) IsPDF() bool {
	return f.MIMEType == PDFMediaType
}

// MediaType strips parameters such as charset from a content type and
// lowercases it. Unparseable input comes back unchanged.
func MediaType(s string) string {
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return s
	}
	return mt
}

// StatusSnapshot is one answer of the status endpoint. Every poll replaces
// the previous snapshot as a whole.
type StatusSnapshot struct {
	JobID       string    `json:"job_id,omitempty"`
	Status      JobStatus `json:"status"`
	Progress    float64   `json:"progress"`
	Message     string    `json:"message"`
	Filename    string    `json:"filename,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	Error       string    `json:"error,omitempty"`
}

type UploadResponse struct {
	JobID     string `json:"job_id"`
	Message   string `json:"message,omitempty"`
	StatusURL string `json:"status_url,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Artifact is a converted file kept after download. Path is a filesystem
// path for the disk store and an s3:// URL for the bucket mirror.
type Artifact struct {
	Name     string
	Size     int64
	SHA256   string
	MIMEType string
	Path     string
	ModTime  time.Time
}

type Download struct {
	FileName string
	Size     int64
	Content  io.ReadCloser
}

// ServerError is a non-2xx answer. Reason holds the server's "error" field
// and may be empty.
type ServerError struct {
	StatusCode int
	Reason     string
}

func (e *ServerError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("server responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server responded %d: %s", e.StatusCode, e.Reason)
}

type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertSuccess AlertLevel = "success"
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

type Alert struct {
	Level   AlertLevel    `json:"level"`
	Message string        `json:"message"`
	TTL     time.Duration `json:"ttl"`
}

var (
	ErrNoFileSelected  = errors.New("no file selected")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrMissingJobID    = errors.New("upload response has no job id")
)
