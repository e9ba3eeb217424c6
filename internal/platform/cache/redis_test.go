package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewConnectsByAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), "daybook:ping", "1", 0).Err())
	require.True(t, mr.Exists("daybook:ping"))
}

func TestNewAcceptsURL(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.Equal(t, mr.Addr(), client.Options().Addr)
}

func TestNewRejectsBadAddress(t *testing.T) {
	_, err := New(context.Background(), "")
	require.Error(t, err)
	_, err = New(context.Background(), "http://cache:6379")
	require.Error(t, err)
}
