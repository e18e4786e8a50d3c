package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/you-humble/pdftrack/internal/domain"
)

const maxErrorBody = 64 << 10

type Paths struct {
	Upload string
	Status string
	Health string
}

func DefaultPaths() Paths {
	return Paths{
		Upload: "/upload",
		Status: "/status/",
		Health: "/health",
	}
}

type ClientOption func(*client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithPaths(p Paths) ClientOption {
	return func(c *client) {
		if p.Upload != "" {
			c.paths.Upload = p.Upload
		}
		if p.Status != "" {
			c.paths.Status = p.Status
		}
		if p.Health != "" {
			c.paths.Health = p.Health
		}
	}
}

type client struct {
	base  *url.URL
	paths Paths
	http  *http.Client
}

func NewClient(baseURL string, opts ...ClientOption) (*client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server url %q: empty host", baseURL)
	}

	c := &client{
		base:  u,
		paths: DefaultPaths(),
		http:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Upload streams file as the multipart field "file".
func (c *client) Upload(ctx context.Context, file domain.SelectedFile) (domain.UploadResponse, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return domain.UploadResponse{}, fmt.Errorf("open %s: %w", file.Path, err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer f.Close()
		pw.CloseWithError(writeFilePart(mw, f, file))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Resolve(c.paths.Upload), pr)
	if err != nil {
		pr.Close()
		return domain.UploadResponse{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.UploadResponse{}, fmt.Errorf("send upload request: %w", err)
	}
	defer resp.Body.Close()

	var out domain.UploadResponse
	if err := decodeResponse(resp, &out); err != nil {
		return domain.UploadResponse{}, err
	}
	if out.JobID == "" {
		return domain.UploadResponse{}, domain.ErrMissingJobID
	}

	return out, nil
}

func (c *client) Status(ctx context.Context, jobID string) (domain.StatusSnapshot, error) {
	if jobID == "" {
		return domain.StatusSnapshot{}, fmt.Errorf("empty job id")
	}

	var out domain.StatusSnapshot
	if err := c.getJSON(ctx, c.Resolve(c.paths.Status+url.PathEscape(jobID)), &out); err != nil {
		return domain.StatusSnapshot{}, err
	}
	return out, nil
}

func (c *client) Health(ctx context.Context) (domain.HealthResponse, error) {
	var out domain.HealthResponse
	if err := c.getJSON(ctx, c.Resolve(c.paths.Health), &out); err != nil {
		return domain.HealthResponse{}, err
	}
	return out, nil
}

// Download opens the artifact behind a download link. The caller closes
// Content.
func (c *client) Download(ctx context.Context, downloadURL string) (domain.Download, error) {
	if downloadURL == "" {
		return domain.Download{}, fmt.Errorf("empty download url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Resolve(downloadURL), nil)
	if err != nil {
		return domain.Download{}, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Download{}, fmt.Errorf("send download request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return domain.Download{}, serverError(resp)
	}

	return domain.Download{
		FileName: downloadName(resp, req.URL),
		Size:     resp.ContentLength,
		Content:  resp.Body,
	}, nil
}

// Resolve turns a server-relative reference into an absolute URL. Absolute
// references are returned as they are.
func (c *client) Resolve(ref string) string {
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.base.ResolveReference(r).String()
}

func (c *client) getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func writeFilePart(mw *multipart.Writer, r io.Reader, file domain.SelectedFile) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": file.Name,
	}))
	h.Set("Content-Type", file.MIMEType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("write form part: %w", err)
	}
	return mw.Close()
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return serverError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func serverError(resp *http.Response) error {
	serr := &domain.ServerError{StatusCode: resp.StatusCode}

	var body domain.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err == nil {
		serr.Reason = body.Error
	}
	return serr
}

func downloadName(resp *http.Response, u *url.URL) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := path.Base(params["filename"]); name != "" && name != "." && name != "/" {
				return name
			}
		}
	}

	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" || strings.HasPrefix(name, "..") {
		return "artifact"
	}
	return name
}

// IsServerError reports whether err carries a non-2xx answer with the given
// status code.
func IsServerError(err error, code int) bool {
	var serr *domain.ServerError
	return errors.As(err, &serr) && serr.StatusCode == code
}
