package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
)

func main() {
	configPath := flag.StringP("config", "c", "launcher.yaml", "path to the launcher configuration file")
	resourceDir := flag.String("resource-dir", "", "override the bundled resource directory")
	flag.Parse()

	fmt.Println("Starting backend launcher...")

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *resourceDir != "" {
		cfg.ResourceDir = *resourceDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg)
	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}

	fmt.Println("Backend launcher stopped")
}
