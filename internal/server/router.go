package server

import "net/http"

type Router interface {
	// Handle registers a new route with the given pattern and handler on the router mux
	Handle(pattern string, handler http.Handler)
	// HandleFunc registers a new route with the given pattern and handler function on the router mux
	HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request))
	// ServeHTTP would dispatch the request to the default mux
	ServeHTTP(w http.ResponseWriter, r *http.Request)
	// Use adds middleware to the default router
	Use(middleware ...Middleware)
	// Group called on the router would create a group with the given prefix
	//and would inherit the middleware from the router and would be added to the root group of the router
	Group(prefix string) *RouterGroup
}

// DefaultRouter dispatches to an http.ServeMux and applies its middleware to every route.
type DefaultRouter struct {
	// mux is the default http.ServeMux
	mux *http.ServeMux
	// middleware is the list of middleware to be applied to default router and all groups inside it
	middleware []Middleware
	// rootGroup is the root RouterGroup
	rootGroup *RouterGroup
}

// NewDefaultRouter creates a new DefaultRouter with the given prefix
func NewDefaultRouter(prefix string) *DefaultRouter {
	dr := &DefaultRouter{mux: http.NewServeMux()}
	dr.rootGroup = &RouterGroup{prefix: prefix, router: dr}
	return dr
}

func (dr *DefaultRouter) Handle(pattern string, handler http.Handler) {
	for i := len(dr.middleware) - 1; i >= 0; i-- {
		handler = dr.middleware[i](handler)
	}
	dr.mux.Handle(pattern, handler)
}

func (dr *DefaultRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	dr.mux.ServeHTTP(w, req)
}

func (dr *DefaultRouter) HandleFunc(pattern string, handlerFunc func(http.ResponseWriter, *http.Request)) {
	dr.Handle(pattern, http.HandlerFunc(handlerFunc))
}

// Use adds middleware for routes registered afterwards.
func (dr *DefaultRouter) Use(middleware ...Middleware) {
	dr.middleware = append(dr.middleware, middleware...)
}

// Group creates a new RouterGroup under the rootGroup with the given prefix
func (dr *DefaultRouter) Group(prefix string) *RouterGroup {
	return dr.rootGroup.Group(prefix)
}
