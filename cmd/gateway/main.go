package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/gin-gonic/gin"
	"github.com/jrsteele09/go-cookie-auth/gateway"
	"github.com/jrsteele09/go-cookie-auth/internal/config"
	"github.com/jrsteele09/go-cookie-auth/internal/logging"
	"github.com/rs/zerolog"
)

func main() {
	c := config.New()
	logger := logging.New(c.GetAppName()+" gateway", c.GetEnv(), c.GetLogLevel())

	if err := run(c, logger); err != nil {
		logger.Fatal().Err(err).Msg("Error running gateway")
	}
	logger.Info().Msg("Gateway stopped")
}

func run(c config.Config, logger zerolog.Logger) error {
	displayAppname("Gateway")

	if c.GetEnv() == "DEV" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	g, err := gateway.New(c, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetGatewayPort(),
		Handler:           g,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("auth", c.GetAuthServiceURL()).
			Str("products", c.GetProductServiceURL()).
			Msg("Gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server.ListenAndServe %w", err)
			return
		}
		errCh <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
