package cli

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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/codyseavey/manga-translator/internal/api"
	"github.com/codyseavey/manga-translator/internal/config"
	"github.com/codyseavey/manga-translator/internal/metrics"
	"github.com/codyseavey/manga-translator/internal/services"
)

// NewServeCmd creates the 'serve' command running the HTTP API
func NewServeCmd() *cobra.Command {
	var port string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the translation API server",
		Long: `Start the HTTP API used by reader front-ends.

Sessions track the page a reader is looking at and run OCR, translation and
burn-in in the background. The translation cache is shared by all sessions and
cleaned up periodically.`,
		Example: `  mangatl serve
  mangatl serve --port 9000 --db ./data/cache.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (overrides PORT)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DB_PATH)")

	return cmd
}

// runServe starts the server and shuts it down gracefully on SIGINT/SIGTERM
func runServe(cfg *config.Config) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions := services.NewSessionManager(a.pipeline, a.sessionDefaults())

	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker := services.NewCacheCleanupWorker(a.cache, cfg.CacheCleanupInterval)
	go worker.Start(workerCtx)

	// Deferred after a.Close so it runs first: nothing may write once the database is closed
	defer drain(sessions, worker, stopWorker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.UpdateCacheMetrics(a.db)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Cache:         a.cache,
		Sessions:      sessions,
		Storage:       a.storage,
		Pipeline:      a.pipeline,
		AdminKey:      cfg.AdminKey,
		CORSOrigins:   cfg.CORSOrigins,
		AutoTranslate: cfg.AutoTranslate,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s (backend=%s, burn-in=%v)", server.Addr, a.backend.Name(), a.pipeline.CanRender())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	// Ends open event streams before Shutdown waits on connections
	sessions.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// drain stops the cleanup worker and waits for session runs to finish their cache writes
func drain(sessions *services.SessionManager, worker *services.CacheCleanupWorker, stopWorker context.CancelFunc) {
	stopWorker()
	<-worker.Done()

	sessions.CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sessions.Wait(ctx); err != nil {
		log.Printf("Gave up waiting for in-flight translations: %v", err)
	}
}
