// Package testutil provides an in-process stand-in for the conversion server.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/you-humble/pdftrack/internal/domain"
)

type Upload struct {
	FileName    string
	ContentType string
	Content     []byte
	RequestID   string
}

type Reply struct {
	Code int
	Body any
}

type artifact struct {
	name    string
	content []byte
}

// FakeServer answers /upload, /status/{id}, /health and /files/{name} the
// way the conversion server does.
type FakeServer struct {
	*httptest.Server

	mu          sync.Mutex
	seq         int
	nextJobID   string
	uploadReply *Reply
	uploads     []Upload
	scripts     map[string][]Reply
	statusCalls map[string]int
	artifacts   map[string]artifact
}

func NewFakeServer(t testing.TB) *FakeServer {
	t.Helper()

	s := &FakeServer{
		scripts:     make(map[string][]Reply),
		statusCalls: make(map[string]int),
		artifacts:   make(map[string]artifact),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.upload)
	mux.HandleFunc("GET /status/{id}", s.status)
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /files/{name}", s.file)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// NextJobID fixes the handle the next accepted upload gets.
func (s *FakeServer) NextJobID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJobID = id
}

func (s *FakeServer) FailUpload(code int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadReply = &Reply{Code: code, Body: body}
}

// Script queues status answers for jobID. The last one repeats once the
// queue runs dry.
func (s *FakeServer) Script(jobID string, replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[jobID] = append(s.scripts[jobID], replies...)
}

func (s *FakeServer) AddArtifact(name, downloadName string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[name] = artifact{name: downloadName, content: content}
}

func (s *FakeServer) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *FakeServer) StatusCalls(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls[jobID]
}

func Processing(progress float64, message string) Reply {
	return Reply{Code: http.StatusOK, Body: domain.StatusSnapshot{
		Status: domain.StatusProcessing, Progress: progress, Message: message,
	}}
}

func Completed(downloadURL string) Reply {
	return Reply{Code: http.StatusOK, Body: domain.StatusSnapshot{
		Status: domain.StatusCompleted, Progress: 100,
		Message: "Processing completed successfully!", DownloadURL: downloadURL,
	}}
}

func Failed(reason string) Reply {
	return Reply{Code: http.StatusOK, Body: domain.StatusSnapshot{
		Status: domain.StatusError, Message: "Error during processing: " + reason, Error: reason,
	}}
}

func (s *FakeServer) upload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reply := s.uploadReply
	s.mu.Unlock()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Error: "No file selected"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
		return
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
		RequestID:   r.Header.Get("X-Request-ID"),
	})
	s.seq++
	id := s.nextJobID
	if id == "" {
		id = fmt.Sprintf("job-%d", s.seq)
	}
	s.nextJobID = ""
	s.mu.Unlock()

	if reply != nil {
		writeJSON(w, reply.Code, reply.Body)
		return
	}

	writeJSON(w, http.StatusOK, domain.UploadResponse{
		JobID:     id,
		Message:   "File uploaded successfully. Processing started.",
		StatusURL: "/status/" + id,
	})
}

func (s *FakeServer) status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	s.statusCalls[id]++
	script, ok := s.scripts[id]
	var reply Reply
	if ok && len(script) > 0 {
		reply = script[0]
		if len(script) > 1 {
			s.scripts[id] = script[1:]
		}
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, domain.ErrorResponse{Error: "Job not found"})
		return
	}

	if snap, isSnap := reply.Body.(domain.StatusSnapshot); isSnap && snap.JobID == "" {
		snap.JobID = id
		reply.Body = snap
	}
	writeJSON(w, reply.Code, reply.Body)
}

func (s *FakeServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.HealthResponse{
		Status:    "healthy",
		Message:   "PDF Converter API is running",
		Timestamp: "2026-01-01T00:00:00",
	})
}

func (s *FakeServer) file(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a, ok := s.artifacts[r.PathValue("name")]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, domain.ErrorResponse{Error: "Output file not found"})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.name+`"`)
	w.Header().Set("Content-Length", fmt.Sprint(len(a.content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.content)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if s, ok := v.(string); ok {
		_, _ = io.WriteString(w, s)
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
