package shim

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"github.com/san-kum/fluidhost/internal/compute"
	"github.com/san-kum/fluidhost/internal/logging"
)

const (
	KernelPath    = "/kernel.wasm"
	TelemetryPath = "/telemetry"
)

type Config struct {
	Addr string `yaml:"addr"`
	Dir  string `yaml:"dir"`

	// ServeKernel exposes the built-in reduction kernel at KernelPath.
	ServeKernel bool `yaml:"serve_kernel"`

	// Telemetry enables the websocket frame stream at TelemetryPath.
	Telemetry bool `yaml:"telemetry"`

	// BrotliLevel is the compression level, 0 disables compression.
	BrotliLevel int `yaml:"brotli_level"`
}

func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		Dir:         "dist",
		ServeKernel: true,
		Telemetry:   true,
		BrotliLevel: brotli.DefaultCompression,
	}
}

type Server struct {
	cfg       Config
	log       *zap.Logger
	telemetry *Telemetry
	handler   http.Handler
}

func NewServer(cfg Config, log *zap.Logger) *Server {
	s := &Server{cfg: cfg, log: logging.Or(log).Named("shim")}

	mux := http.NewServeMux()
	if cfg.Telemetry {
		s.telemetry = NewTelemetry(s.log)
		mux.Handle(TelemetryPath, s.telemetry)
	}

	var assets http.Handler = http.FileServer(http.Dir(cfg.Dir))
	if cfg.ServeKernel {
		assets = withKernel(cfg.Dir, assets)
	}
	if cfg.BrotliLevel > 0 {
		assets = Compress(cfg.BrotliLevel, assets)
	}
	mux.Handle("/", assets)

	s.handler = Isolate(s.logRequests(mux))
	return s
}

// withKernel serves the built-in kernel unless a file of the same name
// exists in the asset directory.
func withKernel(dir string, files http.Handler) http.Handler {
	modTime := time.Now()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != KernelPath {
			files.ServeHTTP(w, r)
			return
		}
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(KernelPath))); err == nil {
			files.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/wasm")
		http.ServeContent(w, r, "kernel.wasm", modTime, bytes.NewReader(compute.KernelImage))
	})
}

func (s *Server) Handler() http.Handler { return s.handler }

// Telemetry returns the frame stream hub, or nil when disabled.
func (s *Server) Telemetry() *Telemetry { return s.telemetry }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// ListenAndServe serves on cfg.Addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		<-ctx.Done()
		if s.telemetry != nil {
			s.telemetry.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		errc <- srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("serving", zap.String("addr", ln.Addr().String()), zap.String("dir", s.cfg.Dir))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-errc
		return err
	}
	return <-errc
}
