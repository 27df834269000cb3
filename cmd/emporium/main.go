package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/emporium-dao/emporium/internal/api/rest"
	"github.com/emporium-dao/emporium/internal/config"
	"github.com/emporium-dao/emporium/internal/logger"
)

func main() {
	wg := &sync.WaitGroup{}

	log := logger.InitLog()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// get configuration
	cfg, err := config.NewConfiguration()
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
	cfg.ParseFlags()

	// initialize server
	server, snapshotMgr, err := rest.InitServer(ctx, cfg, log, wg)
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}

	// restore state from the latest snapshot before serving any request
	ctxRestore, cancelRestore := context.WithTimeout(ctx, 30*time.Second)
	if err := snapshotMgr.Restore(ctxRestore); err != nil {
		log.Fatal().Err(err).Msg("state restore failed")
	}
	cancelRestore()

	// set a listener for graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-done
		log.Info().Msg("server shutdown attempted")
		ctxTO, cancelTO := context.WithTimeout(ctx, 5*time.Second)
		defer cancelTO()
		if err := server.Shutdown(ctxTO); err != nil {
			log.Fatal().Err(err).Msg("server shutdown failed")
		}
		// snapshot state while the storage connection is still alive
		ctxSnap, cancelSnap := context.WithTimeout(ctx, 10*time.Second)
		defer cancelSnap()
		if err := snapshotMgr.Snapshot(ctxSnap); err != nil {
			log.Error().Err(err).Msg("state snapshot failed")
		}
		cancel()
	}()

	// start up the server
	log.Info().Msg("server start attempted")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("")
	}
	wg.Wait()
	log.Info().Msg("server shutdown succeeded")
}
