package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManagerCancel(t *testing.T) {
	m := NewManager()
	var stopped atomic.Int32
	for _, name := range []string{"a", "b"} {
		m.Register(name, Func(func(ctx context.Context) error {
			<-ctx.Done()
			stopped.Add(1)
			return ctx.Err()
		}))
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.Run(ctx)
	cancel()
	require.NoError(t, m.Wait())
	require.Equal(t, int32(2), stopped.Load())
}

func TestManagerFailureStopsOthers(t *testing.T) {
	m := NewManager()
	boom := errors.New("boom")
	m.Register("failing", Func(func(ctx context.Context) error {
		return boom
	}))
	m.Register("waiting", Func(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))
	ctx := m.Run(context.Background())
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("group context not cancelled")
	}
	err := m.Wait()
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "failing")
}

func TestManagerWaitWithoutRun(t *testing.T) {
	require.NoError(t, NewManager().Wait())
}

func TestHTTPServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := &http.Server{Addr: addr, Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})}
	m := NewManager()
	m.Register("http", HTTPServer(srv, time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	m.Run(ctx)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusTeapot
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, m.Wait())
}
