package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestServer_Serve(t *testing.T) {
	// Arrange
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	srv := New(ln.Addr().String(), handler, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	// Act
	resp, err := http.Get("http://" + ln.Addr().String())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	cancel()

	// Assert
	assert.Equal(t, "ok", string(body))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_Run_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = New(ln.Addr().String(), http.NotFoundHandler(), slog.Default()).Run(context.Background())

	assert.Error(t, err)
}

func TestServer_Serve_StoppedWithoutContext(t *testing.T) {
	tests := []struct {
		name    string
		stop    func(srv *Server, ln net.Listener)
		wantErr bool
	}{
		{
			name:    "server closed",
			stop:    func(srv *Server, _ net.Listener) { _ = srv.srv.Close() },
			wantErr: false,
		},
		{
			name:    "listener closed",
			stop:    func(_ *Server, ln net.Listener) { _ = ln.Close() },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)
			defer ln.Close()
			srv := New(ln.Addr().String(), http.NotFoundHandler(), slog.Default())
			tt.stop(srv, ln)

			// Act
			done := make(chan error, 1)
			go func() { done <- srv.Serve(context.Background(), ln) }()

			// Assert
			select {
			case err := <-done:
				if tt.wantErr {
					require.Error(t, err)
					assert.Contains(t, err.Error(), "serve: ")
					return
				}
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("server did not stop")
			}
		})
	}
}
