package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/damacus/r2-dashboard/internal/browser"
	"github.com/damacus/r2-dashboard/internal/config"
	"github.com/damacus/r2-dashboard/internal/handlers"
	customMiddleware "github.com/damacus/r2-dashboard/internal/middleware"
	"github.com/damacus/r2-dashboard/internal/renderer"
	"github.com/damacus/r2-dashboard/internal/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Overrides
	)

	cmd := &cobra.Command{
		Use:          "r2-dashboard",
		Short:        "Browse, upload and download files in an R2 or S3-compatible bucket",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg.Merge(overrides)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := services.NewObjectStore(ctx, cfg.StoreConfig())
			if err != nil {
				return fmt.Errorf("connecting to storage: %w", err)
			}

			var usage services.UsageReporter
			if cfg.UsageFromAdmin {
				adminUsage, err := services.NewAdminUsage(cfg.StoreConfig())
				if err != nil {
					return fmt.Errorf("connecting to admin API: %w", err)
				}
				usage = adminUsage
			}

			return run(ctx, newServer(cfg, store, usage), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().IntVarP(&overrides.Port, "port", "p", 0, "port to listen on (default 9002)")
	cmd.Flags().StringVar(&overrides.Backend, "backend", "", "storage backend: s3, minio or memory")
	cmd.Flags().StringVar(&overrides.Bucket, "bucket", "", "bucket name")
	cmd.Flags().StringVar(&overrides.Endpoint, "endpoint", "", "S3 endpoint, e.g. https://<account>.r2.cloudflarestorage.com")

	return cmd
}

// run serves until ctx is cancelled, then drains in-flight requests
func run(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Serving bucket %q (%s backend) on %s", cfg.BucketName, cfg.Backend, addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newServer(cfg *config.Config, store services.ObjectStore, usage services.UsageReporter) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Services
	b := browser.New(store, browser.Options{
		BucketName:    cfg.BucketName,
		PublicDomain:  cfg.PublicDomain,
		Concurrency:   cfg.Concurrency,
		PreviewExpiry: cfg.PreviewExpiry(),
		Usage:         usage,
	})
	apiHandler := handlers.NewAPIHandler(b, cfg.Endpoint, handlers.UploadLimits{
		MaxFiles:     cfg.MaxUploadFiles,
		MaxFileBytes: cfg.MaxUploadBytes(),
	})
	pagesHandler := handlers.NewPagesHandler(b, cfg.MaxUploadFiles)

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("REQUEST: %s %v, status: %v, latency: %v\n", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(customMiddleware.CORS())
	e.Use(customMiddleware.SecurityHeaders())
	// Room for a full batch of maximum-size files plus multipart overhead
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.MaxUploadFiles*cfg.MaxUploadMB+1)))
	if cfg.AuthEnabled() {
		// Applied globally - it skips /health internally
		e.Use(customMiddleware.BasicAuth(cfg.AuthUser, cfg.AuthPassword))
	}

	// Template Renderer
	e.Renderer = renderer.New()

	// Public Routes
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	// Pages
	e.GET("/", pagesHandler.Browse)
	e.GET("/partials/listing", pagesHandler.Listing)

	// API
	api := e.Group("/api")
	api.GET("/list", apiHandler.List)
	api.POST("/upload", apiHandler.Upload)
	api.DELETE("/delete/*", apiHandler.DeleteFile)
	api.DELETE("/delete-folder", apiHandler.DeleteFolder)
	api.POST("/create-folder", apiHandler.CreateFolder)
	api.GET("/download-folder/*", apiHandler.DownloadFolder)
	api.GET("/preview/*", apiHandler.Preview)
	api.GET("/bucket-info", apiHandler.BucketInfo)
	api.GET("/test-connection", apiHandler.TestConnection)

	return e
}
