package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"murmur/internal/catalog"
	"murmur/internal/channels"
	"murmur/internal/history"
	"murmur/internal/resolver"
	"murmur/internal/transcribe"
)

// Resolver is the part of *resolver.Resolver the gateway serves.
type Resolver interface {
	Resolve(ctx context.Context, utterance string) (resolver.Resolution, error)
	Catalog() *catalog.Catalog
}

type Options struct {
	// Transcriber backs /v1/transcribe. Nil disables the route.
	Transcriber transcribe.Transcriber
	// History records every resolution. Nil disables recording.
	History        *history.Store
	AllowedOrigins []string
	// RequestTimeout bounds each resolution. Zero means no limit.
	RequestTimeout time.Duration
	// TLSCertFile and TLSKeyFile serve HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

type Server struct {
	resolver Resolver
	opts     Options
	mux      *http.ServeMux
}

func NewServer(res Resolver, opts Options, chs ...channels.Channel) *Server {
	s := &Server{
		resolver: res,
		opts:     opts,
		mux:      http.NewServeMux(),
	}
	s.routes()
	for _, ch := range chs {
		ch.RegisterRoutes(s.mux)
		slog.Info("channel registered", "channel", ch.Name())
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/resolve", s.handleResolve)
	s.mux.HandleFunc("POST /v1/transcribe", s.handleTranscribe)
	s.mux.HandleFunc("GET /v1/resolutions", s.handleListResolutions)
	s.mux.HandleFunc("GET /v1/catalog", s.handleCatalog)
	s.mux.HandleFunc("GET /v1/ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// Handler returns the routes wrapped with CORS and tracing.
func (s *Server) Handler() http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return otelhttp.NewHandler(c.Handler(s.mux), "murmur.gateway")
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := s.opts.TLSCertFile != "" && s.opts.TLSKeyFile != ""
	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", addr, "tls", useTLS)
		if useTLS {
			errCh <- srv.ListenAndServeTLS(s.opts.TLSCertFile, s.opts.TLSKeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("gateway shutdown", "error", err)
			return err
		}
		slog.Info("gateway stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// resolve runs one bounded resolution and records it.
func (s *Server) resolve(ctx context.Context, source, utterance string) (resolver.Resolution, error) {
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}
	res, err := s.resolver.Resolve(ctx, utterance)
	if herr := s.opts.History.Record(context.WithoutCancel(ctx), source, utterance, res, err); herr != nil {
		slog.Warn("recording resolution", "source", source, "error", herr)
	}
	if err != nil {
		slog.Info("resolution failed", "source", source, "utterance", utterance, "error", err)
	} else {
		slog.Info("resolved", "source", source, "action", res.Action, "filename", res.Filename, "confidence", res.Confidence)
	}
	return res, err
}
