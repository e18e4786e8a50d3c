package rediscli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_EmptyAddr(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	require.Error(t, err)
}

func TestNewClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(ctx, Config{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}

func TestOptions(t *testing.T) {
	o := options(Config{Addr: "cache:6379", Password: "pw", DB: 2})

	assert.Equal(t, "cache:6379", o.Addr)
	assert.Equal(t, "pw", o.Password)
	assert.Equal(t, 2, o.DB)
	assert.Equal(t, clientName, o.ClientName)
	assert.Equal(t, pingTimeout, o.DialTimeout)
}
