package mio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		useSSL   bool
		host     string
		secure   bool
		wantErr  bool
	}{
		{endpoint: "localhost:9000", host: "localhost:9000"},
		{endpoint: "localhost:9000", useSSL: true, host: "localhost:9000", secure: true},
		{endpoint: "http://minio:9000", useSSL: true, host: "minio:9000"},
		{endpoint: "https://s3.example.com/", host: "s3.example.com", secure: true},
		{endpoint: "ftp://x", wantErr: true},
		{endpoint: " ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			host, secure, err := splitEndpoint(tt.endpoint, tt.useSSL)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.secure, secure)
		})
	}
}

func TestRetryDefaults(t *testing.T) {
	r := RetryConfig{}.withDefaults()
	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, 500*time.Millisecond, r.Initial)
	assert.Equal(t, 5*time.Second, r.Max)

	r = RetryConfig{Attempts: 7}.withDefaults()
	assert.Equal(t, 7, r.Attempts)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Bucket: "b"})
	require.Error(t, err)

	_, err = NewClient(context.Background(), Config{Endpoint: "localhost:9000"})
	require.Error(t, err)
}

func TestNewClient_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(ctx, Config{Endpoint: "localhost:9000", Bucket: "b"})
	require.ErrorIs(t, err, context.Canceled)
}
