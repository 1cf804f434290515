// Package main запускает HTTP-сервер аукционного сервиса.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/vehicle-auction/internal/auction"
	"github.com/mmeshcher/vehicle-auction/internal/clock"
	"github.com/mmeshcher/vehicle-auction/internal/config"
	"github.com/mmeshcher/vehicle-auction/internal/events"
	"github.com/mmeshcher/vehicle-auction/internal/handler"
	"github.com/mmeshcher/vehicle-auction/internal/listing"
	"github.com/mmeshcher/vehicle-auction/internal/middleware"
	"github.com/mmeshcher/vehicle-auction/internal/registry"
	"github.com/mmeshcher/vehicle-auction/internal/repository"
	"github.com/mmeshcher/vehicle-auction/internal/scheduler"
	"github.com/mmeshcher/vehicle-auction/internal/service"
	"github.com/mmeshcher/vehicle-auction/internal/writebehind"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var publisher registry.Publisher
	if cfg.RedisAddress != "" {
		client, err := events.NewRedisClient(cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		redisPublisher := events.NewRedisPublisher(client)
		defer redisPublisher.Close()
		publisher = redisPublisher
	} else {
		sugar.Info("redis address not set, auction events go to the log")
		publisher = events.NewLogPublisher(logger)
	}

	// Интерфейс должен остаться nil, если адрес не задан.
	var listingClient service.Listing
	if cfg.ListingServiceAddress != "" {
		listingClient = listing.NewClient(cfg.ListingServiceAddress, logger)
	} else {
		sugar.Info("listing service address not set, item ownership is not checked")
	}

	clk := clock.Real{}
	engine := auction.NewEngine()

	worker := writebehind.NewWorker(repo, logger, cfg.FlushInterval,
		writebehind.WithRetryable(repository.IsRetryable))

	reg, err := registry.NewRegistry(engine, clk, worker, publisher, logger, cfg.RetiredCacheSize)
	if err != nil {
		sugar.Fatalw("registry initialization error", "error", err.Error())
	}

	sched := scheduler.New(reg, clk, logger, cfg.SweepInterval)

	svc := service.NewService(engine, reg, repo, listingClient, sched, clk, logger)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret, cfg.OperatorIDs)
	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	restoreCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if _, err := svc.Restore(restoreCtx); err != nil {
		cancel()
		sugar.Fatalw("restore auctions error", "error", err.Error())
	}
	cancel()

	// Воркер останавливается последним, чтобы записать снимки запросов,
	// завершившихся во время остановки сервера.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- worker.Run(workerCtx)
	}()

	g, ctx := errgroup.WithContext(ctx)

	// Таймеры начала и окончания торгов
	g.Go(func() error {
		return sched.Run(ctx)
	})

	g.Go(func() error {
		sugar.Infow("starting auction server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	err = g.Wait()

	stopWorker()
	if werr := <-workerDone; werr != nil {
		sugar.Errorw("write-behind worker error", "error", werr)
	}
	sugar.Info("write-behind queue flushed")

	if err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
