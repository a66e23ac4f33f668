package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sayu-ops/internal/config"
	"sayu-ops/internal/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

var ErrMissingSecret = errors.New("OPS_TOKEN_SECRET is required to serve the ops API")

// NewServer builds the ops API. Every /api/v1 route requires a bearer token signed
// with cfg.TokenSecret.
func NewServer(cfg config.ServerConfig, h routes.Handlers) (*http.Server, error) {
	if cfg.TokenSecret == "" {
		return nil, ErrMissingSecret
	}

	router := NewRouter(cfg, h)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	return server, nil
}

func NewRouter(cfg config.ServerConfig, h routes.Handlers) *gin.Engine {
	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowCredentials = true
	}

	router := gin.Default()
	router.Use(cors.New(corsConfig))

	routes.RegisterRoutes(router, []byte(cfg.TokenSecret), h)
	return router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, srv *http.Server, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}
