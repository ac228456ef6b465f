package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"example.com/fileshare/internal/config"
	"example.com/fileshare/internal/http1"
	"example.com/fileshare/internal/logger"
	"example.com/fileshare/internal/util"
)

// ErrServerClosed is returned by Serve and Start after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// Server accepts connections and serves exactly one request on each.
type Server struct {
	cfg    *config.Config
	log    *logger.Logger
	router RouterInterface

	readBufferSize  int
	maxConnections  int
	shutdownTimeout time.Duration

	mu          sync.Mutex
	listener    net.Listener
	activeConns map[net.Conn]struct{}
	conns       sync.WaitGroup
	closing     bool

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewServer creates a new Server instance. cfg must have had defaults applied.
func NewServer(cfg *config.Config, lg *logger.Logger, router RouterInterface) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}

	s := &Server{
		cfg:             cfg,
		log:             lg,
		router:          router,
		readBufferSize:  http1.DefaultReadBufferSize,
		shutdownTimeout: 10 * time.Second,
		activeConns:     make(map[net.Conn]struct{}),
		shutdownChan:    make(chan struct{}),
	}
	if sc := cfg.Server; sc != nil {
		if sc.ReadBufferSize != nil && *sc.ReadBufferSize > 0 {
			s.readBufferSize = *sc.ReadBufferSize
		}
		if sc.MaxConnections != nil {
			s.maxConnections = *sc.MaxConnections
		}
		if sc.GracefulShutdownTimeout != nil {
			s.shutdownTimeout = sc.GracefulShutdownTimeout.Value()
		}
	}
	return s, nil
}

// Start listens on the configured address (or the socket handed over by
// the supervisor), serves until SIGINT or SIGTERM and then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	if s.cfg.Server == nil || s.cfg.Server.Address == nil || *s.cfg.Server.Address == "" {
		return fmt.Errorf("server listen address (server.address) is not configured")
	}
	address := *s.cfg.Server.Address

	l, inherited, err := util.Listen(address)
	if err != nil {
		if util.IsAddrInUse(err) {
			return fmt.Errorf("address %s is already in use: %w", address, err)
		}
		return err
	}
	s.log.Info("Listening", logger.LogFields{
		"address":         l.Addr().String(),
		"inherited":       inherited,
		"max_connections": s.maxConnections,
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(l) }()

	select {
	case err := <-serveErr:
		return err
	case sig := <-sigs:
		s.log.Info("Received signal, shutting down", logger.LogFields{"signal": sig.String(), "timeout": s.shutdownTimeout.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		return err
	}
	if err := <-serveErr; err != nil && !errors.Is(err, ErrServerClosed) {
		return err
	}
	return nil
}

// Serve accepts connections on l and handles each on its own goroutine,
// with at most server.max_connections open at once. It always returns a
// non-nil error; after Shutdown it is ErrServerClosed.
func (s *Server) Serve(l net.Listener) error {
	l = util.LimitListener(l, s.maxConnections)
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	var tempDelay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.shutdownChan:
				return ErrServerClosed
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else if tempDelay *= 2; tempDelay > time.Second {
					tempDelay = time.Second
				}
				s.log.Warn("Accept error, retrying", logger.LogFields{"error": err.Error(), "delay": tempDelay.String()})
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		tempDelay = 0

		if !s.trackConn(conn) {
			conn.Close()
			continue
		}
		go s.handleConnection(conn)
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting and waits for in-flight connections. When ctx
// expires first the remaining connections are closed and ctx's error is
// returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		s.mu.Lock()
		s.closing = true
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("All connections finished", nil)
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		n := len(s.activeConns)
		for c := range s.activeConns {
			c.Close()
		}
		s.mu.Unlock()
		s.log.Warn("Shutdown timed out, closed remaining connections", logger.LogFields{"connections": n})
		return ctx.Err()
	}
}

func (s *Server) trackConn(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.activeConns[c] = struct{}{}
	s.conns.Add(1)
	return true
}

func (s *Server) untrackConn(c net.Conn) {
	s.mu.Lock()
	delete(s.activeConns, c)
	s.mu.Unlock()
	s.conns.Done()
}

// handleConnection reads one request with a single read, dispatches it and
// closes the connection. The connection is closed on every path.
func (s *Server) handleConnection(conn net.Conn) {
	start := time.Now()
	remote := conn.RemoteAddr().String()
	defer s.untrackConn(conn)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Panic while serving connection", logger.LogFields{
				"remote_addr": remote,
				"panic":       fmt.Sprint(r),
				"stack":       string(debug.Stack()),
			})
		}
		conn.Close()
	}()

	buf := make([]byte, s.readBufferSize)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil {
			s.log.Debug("Connection closed before a request arrived", logger.LogFields{"remote_addr": remote, "error": err.Error()})
		}
		return
	}

	rw := http1.NewResponseWriter(conn)
	req, err := http1.ParseRequest(buf[:n])
	if err != nil {
		s.log.Debug("Rejecting malformed request", logger.LogFields{"remote_addr": remote, "error": err.Error()})
		if s.respondError(rw, nil, err) {
			s.logAccess(rw, &http1.Request{RemoteAddr: remote, Method: "-", Target: "-", Proto: "-"}, start)
		}
		return
	}
	req.RemoteAddr = remote

	if err := s.router.Dispatch(rw, req); err != nil {
		if !s.respondError(rw, req, err) {
			return
		}
	} else if err := rw.Flush(); err != nil {
		s.log.Debug("Failed to flush response", logger.LogFields{"remote_addr": remote, "error": err.Error()})
	}
	s.logAccess(rw, req, start)
}

// respondError turns err into an error response. It reports false when the
// response had already been committed; the connection is then abandoned.
func (s *Server) respondError(rw *http1.ResponseWriter, req *http1.Request, err error) bool {
	status := http1.StatusOf(err)
	fields := logger.LogFields{"status_code": status, "error": err.Error()}
	if req != nil {
		fields["method"] = req.Method
		fields["uri"] = req.Target
		fields["remote_addr"] = req.RemoteAddr
	}

	if rw.Committed() {
		s.log.Error("Request failed after the response was committed, abandoning connection", fields)
		return false
	}

	detail := ""
	if status >= 500 {
		s.log.Error("Request failed", fields)
	} else {
		s.log.Debug("Request rejected", fields)
		var he *http1.Error
		if errors.As(err, &he) {
			detail = he.Message
		}
	}

	accept := ""
	if req != nil {
		accept, _ = req.Header("Accept")
	}
	if werr := WriteErrorResponse(rw, status, accept, detail, http1.ExtraHeaders(err), s.log); werr != nil {
		s.log.Debug("Failed to write error response", logger.LogFields{"error": werr.Error()})
	}
	return true
}

func (s *Server) logAccess(rw *http1.ResponseWriter, req *http1.Request, start time.Time) {
	s.log.Access(logger.AccessEntry{
		RemoteAddr:    req.RemoteAddr,
		Method:        req.Method,
		URI:           req.Target,
		Protocol:      req.Proto,
		Status:        rw.Status(),
		ResponseBytes: rw.BytesWritten(),
		Duration:      time.Since(start),
		Headers:       req,
	})
}
