package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fixit/internal/config"
	"fixit/internal/events"
	"fixit/internal/logging"
	"fixit/internal/repository"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// relay forwards room events published by API instances to Telegram chats.
func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "relay-main").Logger()

	if cfg.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required")
	}
	if len(cfg.Telegram.Links) == 0 {
		return errors.New("telegram.links is empty, nothing to relay")
	}
	if cfg.Redis.Address == "" {
		return errors.New("redis.address is required to receive room events")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := repository.NewRedisClient(cfg.Redis)
	defer repository.Close(redisClient)
	if err := repository.Ping(ctx, redisClient); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("telegram bot: %w", err)
	}
	botAPI.Debug = cfg.Telegram.Debug
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("telegram bot authorized")

	router := events.NewRouter(events.DefaultBufferSize, logging.Component(&logger, "rooms"))
	defer router.Close()

	broker := events.NewRedisBroker(redisClient, router, cfg.Redis.Channel, logging.Component(&logger, "broker"))
	if err := broker.Start(ctx); err != nil {
		return err
	}

	relay := events.NewTelegramRelay(botAPI, router, cfg.Telegram.Links, logging.Component(&logger, "telegram"))
	relay.Run(ctx)
	broker.Wait()

	logger.Info().Msg("relay stopped")
	return nil
}
