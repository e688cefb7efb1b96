package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdouchement/modelshuttle/internal/scheduler"
	"github.com/mdouchement/modelshuttle/internal/webserver"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func serverCmd() *cobra.Command {
	var listen string

	c := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP API and the sweeper",
		Args:  cobra.ExactArgs(0),
		RunE: func(c *cobra.Command, _ []string) error {
			if listen == "" {
				listen = cfg.Server.Listen
			}

			log := newLeveledLogger(logrus.InfoLevel)

			engine, release := setup(log)
			defer release()

			//

			cron, err := scheduler.Start(scheduler.Controller{
				Logger:        log,
				Engine:        engine,
				Specification: cfg.Sweep.Specification,
				MaxAge:        cfg.Sweep.MaxAge.Duration,
			})
			if err != nil {
				return errors.Wrap(err, "could not start scheduler")
			}
			defer cron.Stop()

			//

			server := webserver.EchoEngine(webserver.Controller{
				Version: c.Root().Version,
				Logger:  log,
				Engine:  engine,
				Token:   cfg.Server.Token,
				Debug:   cfg.Verbose,
			})
			webserver.PrintRoutes(server)

			go func() {
				signals := make(chan os.Signal, 1)
				signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
				<-signals

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				server.Shutdown(ctx)
			}()

			log.Infof("Server listening on %s (store %s)", listen, cfg.Store)
			err = server.Start(listen)
			if err == http.ErrServerClosed {
				return nil
			}
			return errors.Wrap(err, "could not run server")
		},
	}
	c.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default from configuration, localhost:11500)")
	return c
}
