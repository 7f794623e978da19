package main

import (
	"flag"
	"fmt"
	"os"

	"example.com/recommendation/internal/config"
	"example.com/recommendation/internal/db/migrate"
	"example.com/recommendation/internal/observability"
)

func main() {
	direction := flag.String("direction", migrate.Up, "migration direction: up or down")
	flag.Parse()
	if flag.NArg() > 0 {
		*direction = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.LogConfig(), cfg.ServiceName+"-migrate", os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}

	if err := migrate.Run(cfg.PostgresURL, *direction); err != nil {
		logger.Error("migration failed", "direction", *direction, "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied", "direction", *direction)
}
