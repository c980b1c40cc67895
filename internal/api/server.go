package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/cache"
	"github.com/grussorusso/serverledge-estimator/internal/config"
	"github.com/grussorusso/serverledge-estimator/internal/logging"
	"github.com/grussorusso/serverledge-estimator/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RegisterRoutes installs the handlers of s on e.
func RegisterRoutes(e *echo.Echo, s *Server) {
	e.Use(middleware.Recover())

	e.POST("/estimate/:method", s.Estimate)
	e.GET("/poll/:reqId", s.PollAsyncResult)
	e.GET("/status", s.GetServerStatus)
}

// StartAPIServer serves the estimation API until the server is shut down.
func StartAPIServer(ctx context.Context, e *echo.Echo) error {
	st, err := store.Default()
	if err != nil {
		return err
	}
	RegisterRoutes(e, NewServer(ctx, st, cache.FromConfig[Response]()))

	portNumber := config.GetInt(config.API_PORT, 1323)
	e.HideBanner = true

	if err := e.Start(fmt.Sprintf(":%d", portNumber)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RegisterTerminationHandler shuts e down on interrupt and cancels the
// pending asynchronous estimations.
func RegisterTerminationHandler(e *echo.Echo, cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		sig := <-c
		logging.GetLogger().Infof("Got %s signal. Terminating...", sig)
		cancel()

		ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := e.Shutdown(ctx); err != nil {
			e.Logger.Fatal(err)
		}
	}()
}
