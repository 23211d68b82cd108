package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// ConnectService is implemented by each service to register its connect handler.
type ConnectService interface {
	RegisterHandler(interceptors ...connect.Interceptor) (string, http.Handler)
}

// Mount routes every procedure of each service to its handler and returns
// the mounted service paths.
func Mount(r chi.Router, services []ConnectService, interceptors ...connect.Interceptor) []string {
	paths := make([]string, 0, len(services))
	for _, svc := range services {
		path, h := svc.RegisterHandler(interceptors...)
		r.Handle(path+"*", h)
		paths = append(paths, path)
	}
	return paths
}

// Serve runs srv on ln until ctx is cancelled, then shuts it down. It returns
// only after Shutdown has drained in-flight requests or grace has elapsed.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
