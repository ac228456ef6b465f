package filebrowser

import (
	"example.com/fileshare/internal/config"
	"example.com/fileshare/internal/logger"
	"example.com/fileshare/internal/server"
)

// NewHandler is the server.HandlerFactory for config.HandlerTypeFileBrowser.
func NewHandler(cfg *config.Config, lg *logger.Logger) (server.Handler, error) {
	b, err := NewFromConfig(browserSection(cfg), lg)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewArchiveHandler is the server.HandlerFactory for config.HandlerTypeArchiveDownload.
func NewArchiveHandler(cfg *config.Config, lg *logger.Logger) (server.Handler, error) {
	a, err := NewArchiverFromConfig(browserSection(cfg), lg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Register adds both handler types of this package to reg.
func Register(reg *server.HandlerRegistry) error {
	if err := reg.Register(config.HandlerTypeFileBrowser, NewHandler); err != nil {
		return err
	}
	return reg.Register(config.HandlerTypeArchiveDownload, NewArchiveHandler)
}

func browserSection(cfg *config.Config) *config.BrowserConfig {
	if cfg == nil {
		return nil
	}
	return cfg.Browser
}
