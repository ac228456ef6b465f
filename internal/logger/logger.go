package logger

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/fileshare/internal/config"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.TimeFieldFormat = timestampFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

// LogFields carries structured context for a log line.
type LogFields map[string]interface{}

// HeaderLookup is the subset of a parsed request the access log needs to
// resolve the real client address.
type HeaderLookup interface {
	Header(name string) (string, bool)
}

// AccessEntry describes one served connection.
type AccessEntry struct {
	RemoteAddr    string
	Method        string
	URI           string
	Protocol      string
	Status        int
	ResponseBytes int64
	Duration      time.Duration
	// Headers is optional; when set it supplies User-Agent, Referer and
	// the configured real-IP header.
	Headers HeaderLookup
}

// parsedProxiesContainer holds pre-parsed trusted proxy IP addresses and CIDR blocks.
type parsedProxiesContainer struct {
	cidrs []*net.IPNet
	ips   []net.IP
}

// Logger writes error/diagnostic logs and access logs.
type Logger struct {
	errorLog     zerolog.Logger
	accessLog    *zerolog.Logger
	realIPHeader string
	proxies      parsedProxiesContainer

	mu      sync.Mutex
	closers []io.Closer
}

// NewLogger creates a Logger from a defaulted logging configuration.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}

	l := &Logger{}

	errTarget, errFormat := "stderr", "json"
	if cfg.ErrorLog != nil {
		if cfg.ErrorLog.Target != nil {
			errTarget = *cfg.ErrorLog.Target
		}
		if cfg.ErrorLog.Format != "" {
			errFormat = cfg.ErrorLog.Format
		}
	}
	errOut, err := l.openTarget(errTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log %s: %w", errTarget, err)
	}
	l.errorLog = newZerolog(errOut, errFormat, isTerminal(errTarget)).Level(zerologLevel(cfg.LogLevel))

	if al := cfg.AccessLog; al != nil && (al.Enabled == nil || *al.Enabled) {
		target := "stdout"
		if al.Target != nil {
			target = *al.Target
		}
		proxies, err := preParseTrustedProxies(al.TrustedProxies)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to parse trusted proxies for access log: %w", err)
		}
		out, err := l.openTarget(target)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to open access log %s: %w", target, err)
		}
		zl := newZerolog(out, al.Format, isTerminal(target))
		l.accessLog = &zl
		l.proxies = proxies
		if al.RealIPHeader != nil {
			l.realIPHeader = *al.RealIPHeader
		}
	}

	return l, nil
}

// NewDiscardLogger returns a Logger that drops everything.
func NewDiscardLogger() *Logger {
	return &Logger{errorLog: zerolog.Nop()}
}

// NewTestLogger returns a Logger writing JSON error and access lines at
// DEBUG level to w. Writes are serialized so w need not be goroutine safe.
func NewTestLogger(w io.Writer) *Logger {
	out := zerolog.SyncWriter(w)
	access := zerolog.New(out)
	return &Logger{
		errorLog:     zerolog.New(out).With().Timestamp().Logger().Level(zerolog.DebugLevel),
		accessLog:    &access,
		realIPHeader: "X-Forwarded-For",
	}
}

func newZerolog(w io.Writer, format string, colour bool) zerolog.Logger {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: !colour}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func (l *Logger) openTarget(target string) (io.Writer, error) {
	switch target {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.closers = append(l.closers, f)
	l.mu.Unlock()
	return f, nil
}

func isTerminal(target string) bool {
	return !config.IsFilePath(target)
}

func zerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// preParseTrustedProxies converts string representations of IPs and CIDRs
// into net.IP and *net.IPNet objects for efficient checking.
func preParseTrustedProxies(proxyStrings []string) (parsedProxiesContainer, error) {
	var container parsedProxiesContainer
	for _, pStr := range proxyStrings {
		pStr = strings.TrimSpace(pStr)
		if pStr == "" {
			continue
		}
		if strings.Contains(pStr, "/") {
			_, ipNet, err := net.ParseCIDR(pStr)
			if err != nil {
				return parsedProxiesContainer{}, fmt.Errorf("invalid CIDR string in trusted_proxies '%s': %w", pStr, err)
			}
			container.cidrs = append(container.cidrs, ipNet)
			continue
		}
		ip := net.ParseIP(pStr)
		if ip == nil {
			return parsedProxiesContainer{}, fmt.Errorf("invalid IP string in trusted_proxies '%s'", pStr)
		}
		container.ips = append(container.ips, ip)
	}
	return container, nil
}

func isIPTrusted(ip net.IP, trustedProxies parsedProxiesContainer) bool {
	if ip == nil {
		return false
	}
	for _, trustedCIDR := range trustedProxies.cidrs {
		if trustedCIDR.Contains(ip) {
			return true
		}
	}
	for _, trustedIP := range trustedProxies.ips {
		if trustedIP.Equal(ip) {
			return true
		}
	}
	return false
}

// getRealClientIP picks the client address for the access log. headerValue is
// the raw value of the real-IP header (for example "client, proxy1, proxy2");
// it is walked right to left and the first untrusted entry wins. A malformed
// entry makes the whole header unreliable and the direct peer is used.
func getRealClientIP(remoteAddr, headerValue string, trustedProxies parsedProxiesContainer) string {
	peer := remoteAddr
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		peer = host
	} else if ip := net.ParseIP(remoteAddr); ip != nil {
		peer = ip.String()
	}

	if headerValue == "" {
		return peer
	}

	ipsInHeader := strings.Split(headerValue, ",")
	for i := len(ipsInHeader) - 1; i >= 0; i-- {
		ipStr := strings.TrimSpace(ipsInHeader[i])
		if ipStr == "" {
			continue
		}
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return peer
		}
		if !isIPTrusted(ip, trustedProxies) {
			return ipStr
		}
	}
	return peer
}

// Access writes an access log line. It is a no-op when access logging is disabled.
func (l *Logger) Access(e AccessEntry) {
	if l == nil || l.accessLog == nil {
		return
	}

	port := "0"
	if _, p, err := net.SplitHostPort(e.RemoteAddr); err == nil {
		port = p
	}

	var forwarded, userAgent, referer string
	if e.Headers != nil {
		if l.realIPHeader != "" {
			forwarded, _ = e.Headers.Header(l.realIPHeader)
		}
		userAgent, _ = e.Headers.Header("User-Agent")
		referer, _ = e.Headers.Header("Referer")
	}

	ev := l.accessLog.Log().
		Str("remote_addr", getRealClientIP(e.RemoteAddr, forwarded, l.proxies)).
		Str("remote_port", port).
		Str("protocol", e.Protocol).
		Str("method", e.Method).
		Str("uri", e.URI).
		Int("status", e.Status).
		Int64("resp_bytes", e.ResponseBytes).
		Int64("duration_ms", e.Duration.Milliseconds())
	if userAgent != "" {
		ev = ev.Str("user_agent", userAgent)
	}
	if referer != "" {
		ev = ev.Str("referer", referer)
	}
	ev.Send()
}

func (l *Logger) log(ev *zerolog.Event, msg string, fields []LogFields) {
	if ev == nil {
		return
	}
	for _, f := range fields {
		if len(f) > 0 {
			ev = ev.Fields(map[string]interface{}(f))
		}
	}
	ev.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...LogFields) { l.log(l.errorLog.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...LogFields)  { l.log(l.errorLog.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...LogFields)  { l.log(l.errorLog.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...LogFields) { l.log(l.errorLog.Error(), msg, fields) }

// CloseLogFiles closes any file targets opened by NewLogger.
// This is called during server shutdown.
func (l *Logger) CloseLogFiles() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.closers {
		c.Close()
	}
	l.closers = nil
}
