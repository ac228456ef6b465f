package server

import (
	"fmt"
	"sync"

	"example.com/fileshare/internal/config"
	"example.com/fileshare/internal/http1"
	"example.com/fileshare/internal/logger"
)

// Handler processes requests for a route. A handler either writes a complete
// response and returns nil, or returns an error without writing anything;
// the server then answers with the status of the error's kind. An error
// returned after the response was committed aborts the connection.
type Handler interface {
	ServeHTTP1(rw *http1.ResponseWriter, req *http1.Request) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(rw *http1.ResponseWriter, req *http1.Request) error

func (f HandlerFunc) ServeHTTP1(rw *http1.ResponseWriter, req *http1.Request) error {
	return f(rw, req)
}

// HandlerFactory creates a handler from the server configuration.
type HandlerFactory func(cfg *config.Config, lg *logger.Logger) (Handler, error)

// HandlerRegistry maps HandlerType strings from the configuration to factories.
type HandlerRegistry struct {
	mu        sync.RWMutex
	factories map[string]HandlerFactory
}

// NewHandlerRegistry creates and returns a new HandlerRegistry instance.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		factories: make(map[string]HandlerFactory),
	}
}

// Register associates a HandlerType string with a factory function.
// It returns an error if a HandlerType is registered more than once.
func (r *HandlerRegistry) Register(handlerType string, factory HandlerFactory) error {
	if factory == nil {
		return fmt.Errorf("factory for handler type '%s' cannot be nil", handlerType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[handlerType]; exists {
		return fmt.Errorf("handler type '%s' already registered", handlerType)
	}
	r.factories[handlerType] = factory
	return nil
}

// GetFactory retrieves a registered HandlerFactory for the given handlerType.
func (r *HandlerRegistry) GetFactory(handlerType string) (HandlerFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[handlerType]
	return factory, ok
}

// CreateHandler instantiates the handler registered under handlerType.
func (r *HandlerRegistry) CreateHandler(handlerType string, cfg *config.Config, lg *logger.Logger) (Handler, error) {
	factory, ok := r.GetFactory(handlerType)
	if !ok {
		return nil, fmt.Errorf("no handler factory registered for type '%s'", handlerType)
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil when creating handler type '%s'", handlerType)
	}
	return factory(cfg, lg)
}

// ClearFactories removes all registered factories.
func (r *HandlerRegistry) ClearFactories() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]HandlerFactory)
}

// RouterInterface dispatches a parsed request to the handler of its route.
// A request no route accepts yields a NotFound error.
type RouterInterface interface {
	Dispatch(rw *http1.ResponseWriter, req *http1.Request) error
}
