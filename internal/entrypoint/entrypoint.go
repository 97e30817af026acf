package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mrlokans/lending/internal/config"
	http_controllers "github.com/mrlokans/lending/internal/http"
	"github.com/mrlokans/lending/internal/logging"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Dur("timeout", timeout).Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown")
	}

	// Background work stops after the server so in-flight requests can still enqueue.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Info().Msg("Server exiting")
}

func Run(cfg *config.Config, version string) {
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", version).Msg("Starting lending service")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer app.Close()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if app.Tasks != nil {
		app.Tasks.Start(bgCtx)
	}

	if cfg.Scan.Enabled {
		if err := app.Scans.Start(bgCtx); err != nil {
			log.Error().Err(err).Msg("Failed to start scan scheduler")
		}
	} else {
		log.Info().Msg("Scan scheduler disabled")
	}

	if cfg.Log.Level != "debug" && cfg.Log.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Borrows:      app.Borrows,
		Reservations: app.Reservations,
		Catalog:      app.Borrows,
		Database:     app.Database,
		Pool:         app.Pool,
		Scans:        app.Scans,
		Tasks:        taskStatus(app),
		Audit:        app.Audit,
		Version:      version,
	})

	Serve(router, cfg, func(ctx context.Context) {
		app.Scans.Stop()
		if app.Tasks != nil {
			app.Tasks.Stop(ctx)
		}
		bgCancel()
	})
}

// taskStatus avoids handing the router a typed nil interface.
func taskStatus(app *App) http_controllers.TaskStatus {
	if app.Tasks == nil {
		return nil
	}
	return app.Tasks
}
