// Command server runs the file browser from a JSON or TOML configuration file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"example.com/fileshare/internal/config"
	"example.com/fileshare/internal/handlers/filebrowser"
	"example.com/fileshare/internal/logger"
	"example.com/fileshare/internal/router"
	"example.com/fileshare/internal/server"
)

func main() {
	configFilePath := flag.String("config", "", "Path to the configuration file (JSON or TOML)")
	flag.Parse()

	if *configFilePath == "" {
		fmt.Fprintln(os.Stderr, "Error: Configuration file path must be provided via -config flag.")
		flag.Usage()
		os.Exit(1)
	}

	absConfigPath, err := filepath.Abs(*configFilePath)
	if err != nil {
		log.Fatalf("Error getting absolute path for config file %s: %v", *configFilePath, err)
	}

	cfg, err := config.LoadConfig(absConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", absConfigPath, err)
	}

	appLogger, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	exit := func(code int) {
		appLogger.CloseLogFiles()
		os.Exit(code)
	}

	registry := server.NewHandlerRegistry()
	if err := filebrowser.Register(registry); err != nil {
		appLogger.Error("Failed to register handler factories", logger.LogFields{"error": err.Error()})
		exit(1)
	}

	appRouter, err := router.NewRouter(cfg, registry, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize router", logger.LogFields{"error": err.Error()})
		exit(1)
	}

	srv, err := server.NewServer(cfg, appLogger, appRouter)
	if err != nil {
		appLogger.Error("Failed to initialize server", logger.LogFields{"error": err.Error()})
		exit(1)
	}

	appLogger.Info("Starting server...", logger.LogFields{
		"address": *cfg.Server.Address,
		"config":  cfg.OriginalFilePath(),
	})
	if err := srv.Start(); err != nil {
		appLogger.Error("Server exited with an error", logger.LogFields{"error": err.Error()})
		exit(1)
	}
	appLogger.Info("Server has shut down gracefully.", nil)
	exit(0)
}
