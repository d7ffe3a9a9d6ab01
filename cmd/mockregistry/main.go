// Package main (cmd/mockregistry) serves the in-memory fake RENTRI
// registry for local development. It pre-seeds one block so a client
// pointed at it with --base-url can exercise the full surface without
// touching the production service.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ecotrace-srl/rentri-client/cmd/flags"
	"github.com/ecotrace-srl/rentri-client/registrytest"
)

func main() {
	app := &cli.App{
		Name:  "mockregistry",
		Usage: "Serve a fake RENTRI vidimazione-formulari API",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "listen-addr",
				Value: "127.0.0.1:8080",
				Usage: "address to listen on",
			},
			&cli.StringFlag{
				Name:  "block",
				Value: "AB12",
				Usage: "code of the pre-seeded block",
			},
			&cli.IntFlag{
				Name:  "seed-documents",
				Value: 3,
				Usage: "number of pre-registered documents in the seeded block",
			},
			&cli.DurationFlag{
				Name:  "registration-delay",
				Value: 2 * time.Second,
				Usage: "delay before a submitted document becomes visible",
			},
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			fake := registrytest.New(logger)
			fake.AddBlock(cCtx.String("block"), "Blocco di test", 1, 500)
			fake.SeedDocuments(cCtx.String("block"), cCtx.Int("seed-documents"))
			fake.SetRegistrationDelay(cCtx.Duration("registration-delay"))

			srv := &http.Server{
				Addr:         cCtx.String("listen-addr"),
				Handler:      fake.Router(),
				ReadTimeout:  60 * time.Second,
				WriteTimeout: 30 * time.Second,
			}

			go func() {
				logger.Info("Starting fake registry", "listenAddress", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server failed", "err", err)
				}
			}()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Graceful shutdown failed", "err", err)
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
