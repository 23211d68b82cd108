package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"buf.build/go/protovalidate"
	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/atlekbai/crud_registry/internal/config"
	"github.com/atlekbai/crud_registry/internal/db"
	"github.com/atlekbai/crud_registry/internal/handler"
	"github.com/atlekbai/crud_registry/internal/middleware"
	"github.com/atlekbai/crud_registry/internal/schema"
	"github.com/atlekbai/crud_registry/internal/server"
	"github.com/atlekbai/crud_registry/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	config.PrintConfiguration(cfg)

	conn, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close()

	cache := schema.NewCache()
	if cfg.Schema.File != "" {
		err = cache.LoadFile(cfg.Schema.File)
	} else {
		err = cache.Load(ctx, conn)
	}
	if err != nil {
		log.Fatalf("failed to load schema cache: %v", err)
	}
	log.Printf("schema cache loaded: %d objects", cache.ObjectCount())

	validator, err := protovalidate.New()
	if err != nil {
		log.Fatalf("failed to create validator: %v", err)
	}

	svc := service.NewCrudService(conn, cache, cfg.Placeholder())

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Logging, middleware.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Cors.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))

	r.Route(routePrefix(cfg.Server.ContextPath), func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"UP"}`))
		})
		handler.New(svc).Register(r)
	})

	interceptors := []connect.Interceptor{
		server.ValidationInterceptor(validator, service.BindRequest),
		server.LoggingInterceptor(),
	}
	for _, path := range server.Mount(r, []server.ConnectService{service.NewRPC(svc)}, interceptors...) {
		log.Printf("rpc service mounted at %s", path)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	log.Printf("listening on %s", ln.Addr())
	if err := server.Serve(ctx, srv, ln, 15*time.Second); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Println("server stopped")
}

func routePrefix(contextPath string) string {
	if contextPath == "" {
		return "/"
	}
	return contextPath
}
