package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"example.com/pdfmerge/internal/fetch"
	"example.com/pdfmerge/internal/filecache"
	"example.com/pdfmerge/internal/merge"
	"example.com/pdfmerge/internal/pdf"
	"example.com/pdfmerge/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP merge service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.Int("cache-capacity", filecache.DefaultCapacity, "maximum number of cached files")
	f.Duration("cache-ttl", filecache.DefaultTTL, "how long a cached file lives after upload")
	f.Duration("cache-sweep-interval", 0, "background expiry interval (0 disables)")
	f.Int("cache-compression", 0, "zstd level for cached files, 1-3 (0 disables)")
	f.Int64("max-upload-bytes", server.DefaultMaxBytes, "maximum request body size")
	f.Bool("enable-cache-url", false, "serve POST /api/pdf/cache-url, which downloads documents from public addresses")
	f.Duration("fetch-timeout", fetch.DefaultTimeout, "timeout for cache-url downloads")
	f.Bool("strict", false, "use strict PDF validation")

	viper.BindPFlag("addr", f.Lookup("addr"))
	viper.BindPFlag("cache.capacity", f.Lookup("cache-capacity"))
	viper.BindPFlag("cache.ttl", f.Lookup("cache-ttl"))
	viper.BindPFlag("cache.sweep_interval", f.Lookup("cache-sweep-interval"))
	viper.BindPFlag("cache.compression", f.Lookup("cache-compression"))
	viper.BindPFlag("max_upload_bytes", f.Lookup("max-upload-bytes"))
	viper.BindPFlag("fetch.enabled", f.Lookup("enable-cache-url"))
	viper.BindPFlag("fetch.timeout", f.Lookup("fetch-timeout"))
	viper.BindPFlag("pdf.strict", f.Lookup("strict"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cache, err := filecache.New(
		filecache.WithCapacity(viper.GetInt("cache.capacity")),
		filecache.WithTTL(viper.GetDuration("cache.ttl")),
		filecache.WithSweepInterval(viper.GetDuration("cache.sweep_interval")),
		filecache.WithCompression(viper.GetInt("cache.compression")),
		filecache.WithLogger(logger.With("component", "filecache")),
	)
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	defer cache.Close()

	engine := merge.New(pdf.NewBackend(viper.GetBool("pdf.strict")), logger.With("component", "merge"))
	maxBytes := viper.GetInt64("max_upload_bytes")

	fetcher := newFetcher(maxBytes, logger.With("component", "fetch"))
	srv := server.New(cache, engine, fetcher, logger.With("component", "server"), maxBytes)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		"cache_capacity", cache.Capacity(),
		"cache_ttl", cache.TTL(),
		"cache_compressed", cache.Compressed(),
		"cache_url", fetcher != nil)
	return srv.ListenAndServe(ctx, viper.GetString("addr"))
}

// newFetcher returns nil unless fetch.enabled is set, which leaves the
// cache-url route unregistered.
func newFetcher(maxBytes int64, logger *slog.Logger) *fetch.Fetcher {
	if !viper.GetBool("fetch.enabled") {
		return nil
	}
	timeout := viper.GetDuration("fetch.timeout")
	if timeout <= 0 {
		timeout = fetch.DefaultTimeout
	}
	return fetch.New(fetch.NewClient(timeout), maxBytes, logger)
}
