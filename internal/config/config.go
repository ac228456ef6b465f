package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// MatchType defines how a path pattern is interpreted.
type MatchType string

const (
	// MatchTypeExact matches the path exactly.
	MatchTypeExact MatchType = "Exact"
	// MatchTypePrefix matches any path starting with the prefix.
	MatchTypePrefix MatchType = "Prefix"
)

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Handler type names understood by the server binaries.
const (
	HandlerTypeFileBrowser     = "FileBrowser"
	HandlerTypeArchiveDownload = "ArchiveDownload"
)

const (
	defaultServerAddress           = "0.0.0.0:8080"
	defaultMaxConnections          = 128
	defaultReadBufferSize          = 8192
	defaultGracefulShutdownTimeout = 10 * time.Second

	defaultPreviewTextMaxBytes int64 = 1 << 20

	defaultLogLevel              = LogLevelInfo
	defaultAccessLogEnabled      = true
	defaultAccessLogTarget       = "stdout"
	defaultAccessLogFormat       = "json"
	defaultAccessLogRealIPHeader = "X-Forwarded-For"
	defaultErrorLogTarget        = "stderr"
	defaultErrorLogFormat        = "json"

	// DefaultArchiveRoute is the path prefix that receives multi-file download forms.
	DefaultArchiveRoute = "/download"
)

// Config is the top-level configuration structure for the server.
type Config struct {
	Server  *ServerConfig  `json:"server,omitempty" toml:"server,omitempty"`
	Routing *RoutingConfig `json:"routing,omitempty" toml:"routing,omitempty"`
	Browser *BrowserConfig `json:"browser,omitempty" toml:"browser,omitempty"`
	Logging *LoggingConfig `json:"logging,omitempty" toml:"logging,omitempty"`

	originalFilePath string
}

// OriginalFilePath returns the absolute path of the file the config was loaded from.
func (c *Config) OriginalFilePath() string {
	if c == nil {
		return ""
	}
	return c.originalFilePath
}

// ServerConfig holds general server settings.
type ServerConfig struct {
	Address *string `json:"address,omitempty" toml:"address,omitempty"`
	// MaxConnections bounds the number of connections served at once.
	// Zero disables the bound.
	MaxConnections *int `json:"max_connections,omitempty" toml:"max_connections,omitempty"`
	// ReadBufferSize is the size of the single read that must hold a whole request.
	ReadBufferSize          *int      `json:"read_buffer_size,omitempty" toml:"read_buffer_size,omitempty"`
	GracefulShutdownTimeout *Duration `json:"graceful_shutdown_timeout,omitempty" toml:"graceful_shutdown_timeout,omitempty"`
}

// RoutingConfig contains the list of routes.
type RoutingConfig struct {
	Routes []Route `json:"routes,omitempty" toml:"routes,omitempty"`
}

// Route defines a single routing rule. An empty Method matches any method.
type Route struct {
	PathPattern string    `json:"path_pattern" toml:"path_pattern"`
	MatchType   MatchType `json:"match_type" toml:"match_type"`
	Method      string    `json:"method,omitempty" toml:"method,omitempty"`
	HandlerType string    `json:"handler_type" toml:"handler_type"`
}

// BrowserConfig configures the filesystem browser and the archive builder.
type BrowserConfig struct {
	// AllowedRoots lists the directories clients may reach. Paths outside
	// every root are answered with 403 unless AllowAllPaths is set.
	AllowedRoots        []string          `json:"allowed_roots,omitempty" toml:"allowed_roots,omitempty"`
	AllowAllPaths       *bool             `json:"allow_all_paths,omitempty" toml:"allow_all_paths,omitempty"`
	MimeTypes           map[string]string `json:"mime_types,omitempty" toml:"mime_types,omitempty"`
	MimeTypesPath       *string           `json:"mime_types_path,omitempty" toml:"mime_types_path,omitempty"`
	PreviewTextMaxBytes *int64            `json:"preview_text_max_bytes,omitempty" toml:"preview_text_max_bytes,omitempty"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	LogLevel  LogLevel         `json:"log_level,omitempty" toml:"log_level,omitempty"`
	AccessLog *AccessLogConfig `json:"access_log,omitempty" toml:"access_log,omitempty"`
	ErrorLog  *ErrorLogConfig  `json:"error_log,omitempty" toml:"error_log,omitempty"`
}

// AccessLogConfig configures access logging.
type AccessLogConfig struct {
	Enabled        *bool    `json:"enabled,omitempty" toml:"enabled,omitempty"`
	Target         *string  `json:"target,omitempty" toml:"target,omitempty"`
	Format         string   `json:"format,omitempty" toml:"format,omitempty"`
	TrustedProxies []string `json:"trusted_proxies,omitempty" toml:"trusted_proxies,omitempty"`
	RealIPHeader   *string  `json:"real_ip_header,omitempty" toml:"real_ip_header,omitempty"`
}

// ErrorLogConfig configures error logging.
type ErrorLogConfig struct {
	Target *string `json:"target,omitempty" toml:"target,omitempty"`
	Format string  `json:"format,omitempty" toml:"format,omitempty"`
}

// ConfigError reports a problem with a configuration file or one of its sub-files.
type ConfigError struct {
	FilePath string
	Message  string
	Err      error
}

func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("config error")
	if e.FilePath != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.FilePath)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Duration is a time.Duration that decodes from strings such as "10s".
// Only positive durations are accepted.
type Duration struct {
	d time.Duration
}

// NewDuration wraps d.
func NewDuration(d time.Duration) *Duration { return &Duration{d: d} }

// Value returns the wrapped time.Duration.
func (d Duration) Value() time.Duration { return d.d }

func (d Duration) String() string { return d.d.String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler; TOML decoding goes through here.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		return fmt.Errorf("duration string cannot be empty")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration string %q: %w", s, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("duration must be positive, got %q", s)
	}
	d.d = parsed
	return nil
}

// UnmarshalJSON accepts only JSON strings.
func (d *Duration) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return d.UnmarshalText(nil)
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return fmt.Errorf("duration should be a string, got %s", string(trimmed))
	}
	return d.UnmarshalText([]byte(s))
}

// IsFilePath reports whether a log target names a file rather than a standard stream.
func IsFilePath(target string) bool {
	return target != "stdout" && target != "stderr"
}

// DefaultRoutes returns the routing table used when a config declares none:
// multi-file archive downloads on POST /download, everything else to the browser.
func DefaultRoutes() []Route {
	return []Route{
		{PathPattern: DefaultArchiveRoute, MatchType: MatchTypePrefix, Method: "POST", HandlerType: HandlerTypeArchiveDownload},
		{PathPattern: "/", MatchType: MatchTypePrefix, HandlerType: HandlerTypeFileBrowser},
	}
}

// LoadConfig reads, parses, defaults and validates the configuration at path.
// Files ending in .json or .toml are parsed accordingly; any other extension
// is tried as JSON first, then TOML.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration file path cannot be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	case ".toml":
		if err := decodeTOML(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	default:
		jsonErr := json.Unmarshal(data, cfg)
		if jsonErr != nil {
			cfg = &Config{}
			if tomlErr := decodeTOML(data, cfg); tomlErr != nil {
				return nil, fmt.Errorf("failed to auto-detect and parse config %s: JSON error: %v; TOML error: %v", path, jsonErr, tomlErr)
			}
		}
	}

	if abs, err := filepath.Abs(path); err == nil {
		cfg.originalFilePath = abs
	} else {
		cfg.originalFilePath = path
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeTOML(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("toml: empty input")
	}
	_, err := toml.Decode(string(data), cfg)
	return err
}

// ApplyDefaults fills every unset optional field.
func ApplyDefaults(cfg *Config) {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Server.Address == nil {
		cfg.Server.Address = strPtr(defaultServerAddress)
	}
	if cfg.Server.MaxConnections == nil {
		cfg.Server.MaxConnections = intPtr(defaultMaxConnections)
	}
	if cfg.Server.ReadBufferSize == nil {
		cfg.Server.ReadBufferSize = intPtr(defaultReadBufferSize)
	}
	if cfg.Server.GracefulShutdownTimeout == nil {
		cfg.Server.GracefulShutdownTimeout = NewDuration(defaultGracefulShutdownTimeout)
	}

	if cfg.Routing == nil {
		cfg.Routing = &RoutingConfig{}
	}
	if len(cfg.Routing.Routes) == 0 {
		cfg.Routing.Routes = DefaultRoutes()
	}

	if cfg.Browser == nil {
		cfg.Browser = &BrowserConfig{}
	}
	if cfg.Browser.AllowedRoots == nil {
		cfg.Browser.AllowedRoots = []string{}
	}
	if cfg.Browser.AllowAllPaths == nil {
		cfg.Browser.AllowAllPaths = boolPtr(false)
	}
	if cfg.Browser.PreviewTextMaxBytes == nil {
		v := defaultPreviewTextMaxBytes
		cfg.Browser.PreviewTextMaxBytes = &v
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.LogLevel == "" {
		cfg.Logging.LogLevel = defaultLogLevel
	}
	if cfg.Logging.AccessLog == nil {
		cfg.Logging.AccessLog = &AccessLogConfig{}
	}
	al := cfg.Logging.AccessLog
	if al.Enabled == nil {
		al.Enabled = boolPtr(defaultAccessLogEnabled)
	}
	if al.Target == nil {
		al.Target = strPtr(defaultAccessLogTarget)
	}
	if al.Format == "" {
		al.Format = defaultAccessLogFormat
	}
	if al.TrustedProxies == nil {
		al.TrustedProxies = []string{}
	}
	if al.RealIPHeader == nil {
		al.RealIPHeader = strPtr(defaultAccessLogRealIPHeader)
	}
	if cfg.Logging.ErrorLog == nil {
		cfg.Logging.ErrorLog = &ErrorLogConfig{}
	}
	if cfg.Logging.ErrorLog.Target == nil {
		cfg.Logging.ErrorLog.Target = strPtr(defaultErrorLogTarget)
	}
	if cfg.Logging.ErrorLog.Format == "" {
		cfg.Logging.ErrorLog.Format = defaultErrorLogFormat
	}
}

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	if err := validateServer(cfg.Server); err != nil {
		return err
	}
	if err := validateRouting(cfg.Routing); err != nil {
		return err
	}
	if err := validateBrowser(cfg.Browser, cfg.originalFilePath); err != nil {
		return err
	}
	return validateLogging(cfg.Logging)
}

func validateServer(s *ServerConfig) error {
	if s.Address != nil && *s.Address == "" {
		return fmt.Errorf("server.address cannot be an empty string")
	}
	if s.MaxConnections != nil && *s.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections cannot be negative, got %d", *s.MaxConnections)
	}
	if s.ReadBufferSize != nil && *s.ReadBufferSize < 512 {
		return fmt.Errorf("server.read_buffer_size must be at least 512 bytes, got %d", *s.ReadBufferSize)
	}
	return nil
}

func validateRouting(r *RoutingConfig) error {
	seen := make(map[string]bool)
	for i, route := range r.Routes {
		if route.PathPattern == "" {
			return fmt.Errorf("routing.routes[%d].path_pattern cannot be empty", i)
		}
		if !strings.HasPrefix(route.PathPattern, "/") {
			return fmt.Errorf("routing.routes[%d].path_pattern '%s' must start with '/'", i, route.PathPattern)
		}
		if route.HandlerType == "" {
			return fmt.Errorf("routing.routes[%d].handler_type cannot be empty for path_pattern '%s'", i, route.PathPattern)
		}
		switch route.MatchType {
		case MatchTypeExact, MatchTypePrefix:
		case "":
			return fmt.Errorf("routing.routes[%d].match_type is missing for path_pattern '%s'; must be 'Exact' or 'Prefix'", i, route.PathPattern)
		default:
			return fmt.Errorf("routing.routes[%d].match_type '%s' is invalid for path_pattern '%s'; must be 'Exact' or 'Prefix'", i, route.MatchType, route.PathPattern)
		}
		switch route.Method {
		case "", "GET", "POST":
		default:
			return fmt.Errorf("routing.routes[%d].method '%s' is invalid; must be empty, 'GET' or 'POST'", i, route.Method)
		}
		key := string(route.MatchType) + "|" + route.Method + "|" + route.PathPattern
		if seen[key] {
			return fmt.Errorf("ambiguous route: duplicate PathPattern '%s' and MatchType '%s' found", route.PathPattern, route.MatchType)
		}
		seen[key] = true
	}
	return nil
}

func validateBrowser(b *BrowserConfig, mainConfigPath string) error {
	for i, root := range b.AllowedRoots {
		if root == "" {
			return fmt.Errorf("browser.allowed_roots[%d] cannot be empty", i)
		}
		if !filepath.IsAbs(root) {
			return fmt.Errorf("browser.allowed_roots[%d] '%s' must be an absolute path", i, root)
		}
	}
	if b.MimeTypesPath != nil {
		if *b.MimeTypesPath == "" {
			return fmt.Errorf("browser.mime_types_path cannot be empty if specified")
		}
		if !filepath.IsAbs(*b.MimeTypesPath) && mainConfigPath != "" {
			resolved := filepath.Join(filepath.Dir(mainConfigPath), *b.MimeTypesPath)
			b.MimeTypesPath = &resolved
		}
	}
	for ext, mimeType := range b.MimeTypes {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("browser.mime_types key '%s' must start with a '.'", ext)
		}
		if mimeType == "" {
			return fmt.Errorf("browser.mime_types value for key '%s' cannot be empty", ext)
		}
	}
	if b.PreviewTextMaxBytes != nil && *b.PreviewTextMaxBytes <= 0 {
		return fmt.Errorf("browser.preview_text_max_bytes must be positive, got %d", *b.PreviewTextMaxBytes)
	}
	return nil
}

func validateLogging(l *LoggingConfig) error {
	switch l.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("logging.log_level '%s' is invalid; must be one of 'DEBUG', 'INFO', 'WARNING', 'ERROR'", l.LogLevel)
	}

	al := l.AccessLog
	if err := validateTarget("logging.access_log.target", al.Target); err != nil {
		return err
	}
	if err := validateFormat("logging.access_log.format", al.Format); err != nil {
		return err
	}
	if al.RealIPHeader != nil && *al.RealIPHeader == "" {
		return fmt.Errorf("logging.access_log.real_ip_header, if provided, cannot be empty")
	}
	for _, p := range al.TrustedProxies {
		p = strings.TrimSpace(p)
		if _, _, err := net.ParseCIDR(p); err == nil {
			continue
		}
		if net.ParseIP(p) != nil {
			continue
		}
		return fmt.Errorf("logging.access_log.trusted_proxies entry '%s' is not a valid CIDR or IP address", p)
	}

	if err := validateTarget("logging.error_log.target", l.ErrorLog.Target); err != nil {
		return err
	}
	return validateFormat("logging.error_log.format", l.ErrorLog.Format)
}

func validateTarget(field string, target *string) error {
	if target == nil || *target == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if IsFilePath(*target) && !filepath.IsAbs(*target) {
		return fmt.Errorf("%s path '%s' must be absolute", field, *target)
	}
	return nil
}

func validateFormat(field, format string) error {
	switch format {
	case "json", "console":
		return nil
	}
	return fmt.Errorf("%s '%s' is invalid; must be 'json' or 'console'", field, format)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }
