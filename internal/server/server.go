// Package server exposes the file cache and the merge engine over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/sourcegraph/conc"

	"example.com/pdfmerge/internal/fetch"
	"example.com/pdfmerge/internal/filecache"
	"example.com/pdfmerge/internal/merge"
)

const (
	basePath        = "/api/pdf"
	DefaultMaxBytes = 32 << 20
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	cache    *filecache.Cache
	engine   *merge.Engine
	fetcher  *fetch.Fetcher
	logger   *slog.Logger
	maxBytes int64
}

// New wires the HTTP layer. maxBytes bounds request bodies; <= 0 means
// DefaultMaxBytes. A nil fetcher disables POST /api/pdf/cache-url.
func New(cache *filecache.Cache, engine *merge.Engine, fetcher *fetch.Fetcher, logger *slog.Logger, maxBytes int64) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Server{
		cache:    cache,
		engine:   engine,
		fetcher:  fetcher,
		logger:   logger,
		maxBytes: maxBytes,
	}
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST "+basePath+"/cache-file", s.handleCacheFile)
	mux.HandleFunc("POST "+basePath+"/merge-files", s.handleMergeFiles)
	mux.HandleFunc("POST "+basePath+"/merge-pages", s.handleMergePages)
	if s.fetcher != nil {
		mux.HandleFunc("POST "+basePath+"/cache-url", s.handleCacheURL)
	}

	return withCORS(s.withLogging(gzhttp.GzipHandler(mux)))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg conc.WaitGroup
	errc := make(chan error, 1)
	wg.Go(func() {
		s.logger.Info("pdf merge service listening", "addr", addr)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errc <- err
	})

	select {
	case err := <-errc:
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := srv.Shutdown(sctx)

	wg.Wait()
	if err := <-errc; err != nil {
		return err
	}
	return shutdownErr
}
