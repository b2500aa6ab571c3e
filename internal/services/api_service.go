package services

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benmeehan/proximity-agent/internal/api"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// APIService serves the local HTTP API.
type APIService struct {
	address string
	handler *api.Handler
	logger  zerolog.Logger

	server *http.Server
	wg     sync.WaitGroup
}

// NewAPIService creates a new APIService listening on address.
func NewAPIService(address string, handler *api.Handler, logger zerolog.Logger) *APIService {
	return &APIService{
		address: address,
		handler: handler,
		logger:  logger,
	}
}

// Router builds the gin engine with every route registered.
func (a *APIService) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLogger())
	a.handler.Register(&r.RouterGroup)
	return r
}

// Start binds the listener and serves in the background.
func (a *APIService) Start() error {
	if a.server != nil {
		a.logger.Warn().Msg("APIService is already running")
		return errors.New("api service is already running")
	}

	ln, err := net.Listen("tcp", a.address)
	if err != nil {
		return err
	}

	a.server = &http.Server{
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("API server stopped unexpectedly")
		}
	}()

	a.logger.Info().Str("address", ln.Addr().String()).Msg("APIService started")
	return nil
}

// Stop shuts the server down gracefully.
func (a *APIService) Stop() error {
	if a.server == nil {
		a.logger.Warn().Msg("APIService is not running")
		return errors.New("api service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(ctx)
	a.wg.Wait()
	a.server = nil

	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to shut down API server")
		return err
	}
	a.logger.Info().Msg("APIService stopped")
	return nil
}

func (a *APIService) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
