package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"limit-venue/src/config"
	"limit-venue/src/handlers"
	"limit-venue/src/ledger"
	"limit-venue/src/logger"
	"limit-venue/src/publisher"
	"limit-venue/src/routes"
	"limit-venue/src/server"
)

func main() {
	cfg := config.MustLoad("appsettings.json")

	logger.InitLogger(logger.Options{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Format: cfg.LogFormat,
	})
	log := logger.GetLogger()

	log.Info().
		Str("addr", cfg.Addr()).
		Dur("match_interval", cfg.MatchInterval).
		Msg("Initializing limit venue")

	var consumers []server.TradeConsumer

	var journal *ledger.Ledger
	if cfg.Ledger.Path != "" {
		var err error
		journal, err = ledger.New(cfg.Ledger.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Ledger.Path).Msg("Failed to open trade ledger")
		}
		consumers = append(consumers, journal)
		log.Info().Str("path", cfg.Ledger.Path).Msg("Trade ledger enabled")
	}

	var pub *publisher.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		pub = publisher.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		consumers = append(consumers, pub)
		log.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("Trade publisher enabled")
	}

	srv := server.New(server.Options{
		MaxOrderSize:  cfg.MaxOrderSize,
		MinPrice:      cfg.MinPrice,
		MatchInterval: cfg.MatchInterval,
		LatencyWindow: cfg.LatencyWindow,
		VerifyBook:    cfg.VerifyBook,
	}, consumers...)

	if err := srv.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start matching loop")
	}

	orderHandler := handlers.NewOrderHandler(srv, cfg.DefaultDepth, cfg.MaxDepth)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, orderHandler, cfg)

	serverError := make(chan error, 1)

	go func() {
		if err := app.Listen(cfg.Addr()); err != nil {
			serverError <- err
		}
	}()

	log.Info().
		Str("addr", cfg.Addr()).
		Strs("endpoints", routes.Endpoints).
		Msg("Limit venue started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case err := <-serverError:
		log.Error().
			Err(err).
			Str("addr", cfg.Addr()).
			Msg("Server failed to start")
	case <-quit:
		log.Info().Msg("Received shutdown signal, shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", cfg.ShutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during HTTP shutdown")
		}
	}

	// stop matching before closing consumers so the last pass is delivered
	if err := srv.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("Matching loop did not stop in time")
	}

	if pub != nil {
		if err := pub.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing trade publisher")
		}
	}
	if journal != nil {
		if err := journal.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing trade ledger")
		}
	}

	log.Info().Msg("Shutdown complete")
	logger.CloseLogger()
}
