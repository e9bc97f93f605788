package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

type RouteRegistrar interface {
	RegisterRoutes(router Router)
}

// App struct with middleware support
type App struct {
	router     Router
	registrars []RouteRegistrar
	server     *http.Server
}

func NewApp(addr string, router Router, registrars ...RouteRegistrar) *App {
	return &App{
		router:     router,
		registrars: registrars,
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (a *App) SetupRoutes() {
	for _, registrar := range a.registrars {
		registrar.RegisterRoutes(a.router)
	}
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Start serves until Shutdown is called. A clean shutdown returns nil.
func (a *App) Start() error {
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
