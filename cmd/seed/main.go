package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"fixit/internal/database"
	"fixit/internal/models"
	"fixit/internal/service"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		servicesPath = flag.String("services", "configs/services.yaml", "path to services.yaml")
		dbPath       = flag.String("db", "./data/fixit.db", "path to sqlite db")
	)
	flag.Parse()

	services, err := models.LoadServices(*servicesPath)
	if err != nil {
		return fmt.Errorf("load services: %w", err)
	}
	if len(services) == 0 {
		logger.Warn().Str("path", *servicesPath).Msg("no services in yaml, using defaults")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	catalog := service.NewCatalogService(db, &logger)
	added, err := catalog.Seed(ctx, services)
	if err != nil {
		return err
	}

	counts, err := catalog.CountByCategory(ctx)
	if err != nil {
		return err
	}
	for _, c := range counts {
		logger.Info().Str("category", c.Category).Int64("services", c.Count).Msg("catalog")
	}
	logger.Info().Int("added", added).Msg("Seed finished")
	return nil
}
