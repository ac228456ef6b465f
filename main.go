// Command fileshare serves one or more directories (or the whole host with
// -allow-all) for browsing, previewing and downloading over plain HTTP.
//
//	fileshare [-addr host:port] [-allow-all] [-max-connections n] [root ...]
//
// Without roots the current directory is shared.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
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
	cfg, err := buildConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Invalid arguments: %v", err)
	}

	lg, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.CloseLogFiles()

	srv, err := newServer(cfg, lg)
	if err != nil {
		lg.Error("Failed to set up server", logger.LogFields{"error": err.Error()})
		lg.CloseLogFiles()
		os.Exit(1)
	}

	lg.Info("Starting server...", logger.LogFields{
		"address":   *cfg.Server.Address,
		"roots":     cfg.Browser.AllowedRoots,
		"allow_all": *cfg.Browser.AllowAllPaths,
	})
	if err := srv.Start(); err != nil {
		lg.Error("Server stopped with error", logger.LogFields{"error": err.Error()})
		lg.CloseLogFiles()
		os.Exit(1)
	}
	lg.Info("Server shut down gracefully", nil)
}

// buildConfig turns the command line into a validated configuration.
func buildConfig(args []string, output io.Writer) (*config.Config, error) {
	fs := flag.NewFlagSet("fileshare", flag.ContinueOnError)
	fs.SetOutput(output)
	addr := fs.String("addr", "0.0.0.0:8080", "Address to listen on")
	allowAll := fs.Bool("allow-all", false, "Serve every path on the host instead of the given roots")
	maxConns := fs.Int("max-connections", 128, "Maximum number of connections served at once (0 for no limit)")
	logLevel := fs.String("log-level", string(config.LogLevelInfo), "DEBUG, INFO, WARNING or ERROR")
	logFormat := fs.String("log-format", "json", "Log format: json or console")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] [root ...]\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	roots := fs.Args()
	if len(roots) == 0 && !*allowAll {
		roots = []string{"."}
	}
	absRoots := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("resolving root %q: %w", r, err)
		}
		fi, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", r, err)
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("root %q is not a directory", r)
		}
		absRoots = append(absRoots, abs)
	}

	cfg := &config.Config{
		Server: &config.ServerConfig{
			Address:        addr,
			MaxConnections: maxConns,
		},
		Browser: &config.BrowserConfig{
			AllowedRoots:  absRoots,
			AllowAllPaths: allowAll,
		},
		Logging: &config.LoggingConfig{
			LogLevel:  config.LogLevel(*logLevel),
			AccessLog: &config.AccessLogConfig{Format: *logFormat},
			ErrorLog:  &config.ErrorLogConfig{Format: *logFormat},
		},
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newServer wires the file browser handlers, the router and the server.
func newServer(cfg *config.Config, lg *logger.Logger) (*server.Server, error) {
	registry := server.NewHandlerRegistry()
	if err := filebrowser.Register(registry); err != nil {
		return nil, fmt.Errorf("registering handlers: %w", err)
	}
	rtr, err := router.NewRouter(cfg, registry, lg)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}
	return server.NewServer(cfg, lg, rtr)
}
