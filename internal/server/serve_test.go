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
)

// blockingServer answers every request once release is closed.
func blockingServer(t *testing.T) (srv *http.Server, ln net.Listener, started, release chan struct{}) {
	t.Helper()
	started, release = make(chan struct{}, 1), make(chan struct{})
	srv = &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		started <- struct{}{}
		<-release
		w.Write([]byte("done"))
	})}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return srv, ln, started, release
}

type getResult struct {
	body string
	err  error
}

func get(url string) <-chan getResult {
	out := make(chan getResult, 1)
	go func() {
		resp, err := http.Get(url)
		if err != nil {
			out <- getResult{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		out <- getResult{string(b), err}
	}()
	return out
}

func TestServeWaitsForInFlightRequests(t *testing.T) {
	srv, ln, started, release := blockingServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- Serve(ctx, srv, ln, 5*time.Second) }()

	res := get("http://" + ln.Addr().String())
	<-started
	cancel()

	select {
	case err := <-served:
		t.Fatalf("Serve returned while a request was in flight: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	got := <-res
	require.NoError(t, got.err)
	assert.Equal(t, "done", got.body)
	assert.NoError(t, <-served)
}

func TestServeGivesUpAfterGrace(t *testing.T) {
	srv, ln, started, release := blockingServer(t)
	t.Cleanup(func() { close(release) })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- Serve(ctx, srv, ln, 50*time.Millisecond) }()

	get("http://" + ln.Addr().String())
	<-started
	cancel()

	select {
	case err := <-served:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the grace period")
	}
}
