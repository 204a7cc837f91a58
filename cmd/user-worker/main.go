package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/example/user-registration/internal/config"
	"github.com/example/user-registration/internal/kafka/consumer"
	"github.com/example/user-registration/internal/kafka/producer"
	kafkapublisher "github.com/example/user-registration/internal/kafka/publisher"
	"github.com/example/user-registration/internal/logger"
	"github.com/example/user-registration/internal/models"
	"github.com/example/user-registration/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "user-worker").Logger()

	prod, err := producer.New(cfg.Kafka.Brokers, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer func() {
		if err := prod.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, log, cfg.Recovery.CommitOnSuccessOnly)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer")
	}
	defer func() {
		if err := cons.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	dltPublisher := kafkapublisher.NewDeadLetterPublisher(prod, cfg.Events.DeadLetterSuffix, log)
	if dltPublisher == nil {
		log.Fatal().Msg("failed to create dead-letter publisher")
	}

	engine, err := worker.NewEngine(worker.Config{
		RetryAttempts: cfg.Recovery.RetryAttempts,
		RetryDelay:    cfg.Recovery.RetryDelay,
		MaxInFlight:   cfg.Recovery.MaxInFlight,
	}, worker.Dependencies{
		Processor:  userCreatedProcessor(log),
		DeadLetter: dltPublisher,
		Logger:     log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise recovery engine")
	}

	handler := worker.KafkaHandler(engine, cons)

	errCh := make(chan error, 1)
	go func() {
		if err := cons.Consume(ctx, cfg.Events.ConsumeTopics, handler); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Strs("topics", cfg.Events.ConsumeTopics).Msg("user worker started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("consumer terminated with error")
		}
	}
}

// userCreatedProcessor applies a delivered user.created fact. The projection
// here is a structured log line; real read models plug in the same way.
func userCreatedProcessor(log zerolog.Logger) worker.Processor {
	return worker.ProcessFunc(func(_ context.Context, record *worker.Record) error {
		var fact models.UserCreated
		if err := json.Unmarshal(record.Value, &fact); err != nil {
			return fmt.Errorf("decode %s: %w", record.Topic, err)
		}

		log.Info().
			Str("topic", record.Topic).
			Int32("partition", record.Partition).
			Int64("offset", record.Offset).
			Str("user_id", fact.UserID).
			Str("email", fact.Email).
			Msg("user.created consumed")
		return nil
	})
}

func fail(stage string, err error) {
	lg := zerolog.New(os.Stdout).With().Timestamp().Logger()
	lg.Fatal().Err(err).Str("stage", stage).Msg("user worker init failed")
}
