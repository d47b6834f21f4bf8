// Package server serves the read-only explorer API over the relay store.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type APIServer struct {
	store  core.Store
	router chi.Router
	logger *log.RelayLogger
}

func NewAPIServer(store core.Store) *APIServer {
	srv := &APIServer{
		store:  store,
		logger: log.GetLogger().WithModule("server"),
	}
	srv.router = srv.routes()
	return srv
}

func (srv *APIServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.healthz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/messages", srv.listMessages)
		r.Get("/messages/{id}", srv.getMessage)
		r.Get("/stats", srv.stats)
		r.Get("/cursors", srv.listCursors)
		r.Get("/deadletters", srv.listDeadLetters)
	})
	return r
}

func (srv *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.router.ServeHTTP(w, r)
}

// Start serves the API on listenAddress until ctx is done.
func (srv *APIServer) Start(ctx context.Context, listenAddress string) error {
	s := &http.Server{
		Addr:              listenAddress,
		Handler:           otelhttp.NewHandler(srv, "explorer"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info("explorer api listening", "address", listenAddress)
		errCh <- s.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
