package router

import (
	"fmt"
	"sort"
	"strings"

	"example.com/fileshare/internal/config"
	"example.com/fileshare/internal/http1"
	"example.com/fileshare/internal/logger"
	"example.com/fileshare/internal/server"
)

// Router holds the routing table and dispatches requests.
type Router struct {
	// exactRoutes holds the routes with MatchType "Exact", keyed by PathPattern.
	// Several routes may share a pattern when they filter on different methods.
	exactRoutes map[string][]boundRoute

	// prefixRoutes is sorted by PathPattern length, longest first, so the most
	// specific prefix is matched first. Equal lengths keep configuration order.
	prefixRoutes []boundRoute

	log *logger.Logger
}

type boundRoute struct {
	route   config.Route
	handler server.Handler
}

// MatchedRouteInfo holds the matched route and its handler.
type MatchedRouteInfo struct {
	Handler server.Handler
	Route   config.Route
}

// NewRouter builds the routing table from cfg.Routing and creates every
// route's handler through registry up front. One handler instance is shared
// by all routes of the same HandlerType.
func NewRouter(cfg *config.Config, registry *server.HandlerRegistry, lg *logger.Logger) (*Router, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("handler registry cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	var routes []config.Route
	if cfg.Routing != nil {
		routes = cfg.Routing.Routes
	}

	r := &Router{
		exactRoutes: make(map[string][]boundRoute),
		log:         lg,
	}
	handlers := make(map[string]server.Handler)
	for _, route := range routes {
		h, ok := handlers[route.HandlerType]
		if !ok {
			var err error
			h, err = registry.CreateHandler(route.HandlerType, cfg, lg)
			if err != nil {
				return nil, fmt.Errorf("route %q: %w", route.PathPattern, err)
			}
			handlers[route.HandlerType] = h
		}

		b := boundRoute{route: route, handler: h}
		switch route.MatchType {
		case config.MatchTypeExact:
			r.exactRoutes[route.PathPattern] = append(r.exactRoutes[route.PathPattern], b)
		case config.MatchTypePrefix:
			r.prefixRoutes = append(r.prefixRoutes, b)
		default:
			return nil, fmt.Errorf("route %q: unknown match type %q", route.PathPattern, route.MatchType)
		}
		lg.Debug("Registered route", logger.LogFields{
			"path_pattern": route.PathPattern,
			"match_type":   string(route.MatchType),
			"method":       route.Method,
			"handler_type": route.HandlerType,
		})
	}

	sort.SliceStable(r.prefixRoutes, func(i, j int) bool {
		return len(r.prefixRoutes[i].route.PathPattern) > len(r.prefixRoutes[j].route.PathPattern)
	})
	return r, nil
}

// FindRoute matches method and path against the table. Exact matches take
// precedence over prefix matches; among prefixes the longest wins. Routes
// whose method filter rejects method are skipped.
func (r *Router) FindRoute(method, path string) *MatchedRouteInfo {
	for _, b := range r.exactRoutes[path] {
		if methodMatches(b.route.Method, method) {
			return &MatchedRouteInfo{Handler: b.handler, Route: b.route}
		}
	}
	for _, b := range r.prefixRoutes {
		if strings.HasPrefix(path, b.route.PathPattern) && methodMatches(b.route.Method, method) {
			return &MatchedRouteInfo{Handler: b.handler, Route: b.route}
		}
	}
	return nil
}

// Dispatch hands req to the handler of the matching route.
func (r *Router) Dispatch(rw *http1.ResponseWriter, req *http1.Request) error {
	matched := r.FindRoute(req.Method, req.Path)
	if matched == nil {
		r.log.Info("No route matched for request", logger.LogFields{"method": req.Method, "path": req.Path})
		return http1.NewError(http1.KindNotFound, "no route for %s %s", req.Method, req.Path)
	}
	return matched.Handler.ServeHTTP1(rw, req)
}

func methodMatches(filter, method string) bool {
	return filter == "" || strings.EqualFold(filter, method)
}
