package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// WithRequestID stamps every outgoing request with a fresh request ID unless
// the caller already set one.
func WithRequestID(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(RequestIDHeader) != "" {
			return next.RoundTrip(r)
		}
		r = r.Clone(r.Context())
		r.Header.Set(RequestIDHeader, uuid.NewString())
		return next.RoundTrip(r)
	})
}

func LogTransport(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()

		resp, err := next.RoundTrip(r)

		attrs := []any{
			slog.String("method", r.Method),
			slog.String("url", r.URL.Path),
			slog.String("request_id", r.Header.Get(RequestIDHeader)),
			slog.String("duration", time.Since(start).String()),
		}
		if err != nil {
			slog.Debug("http_request", append(attrs, slog.String("error", err.Error()))...)
			return nil, err
		}

		slog.Debug("http_request", append(attrs,
			slog.Int("status", resp.StatusCode),
			slog.Int64("response_size", resp.ContentLength),
		)...)
		return resp, nil
	})
}
