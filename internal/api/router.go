package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yegors/metarboard/pkg/logger"
)

// Router wires the handlers to their routes
type Router struct {
	handler        *Handler
	wsHandler      http.HandlerFunc
	allowedOrigins []string
	logger         *logger.Logger
}

// NewRouter creates the API router. wsHandler may be nil to disable /ws.
func NewRouter(handler *Handler, wsHandler http.HandlerFunc, allowedOrigins []string, logger *logger.Logger) *Router {
	return &Router{
		handler:        handler,
		wsHandler:      wsHandler,
		allowedOrigins: allowedOrigins,
		logger:         logger.Named("router"),
	}
}

// Routes returns the root HTTP handler
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(rt.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(rt.cors)

	r.Get("/health", rt.handler.GetHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stations", rt.handler.GetStations)
		r.Get("/stations/{icao}", rt.handler.GetStation)
		r.Get("/display", rt.handler.GetDisplay)
		r.Get("/status", rt.handler.GetStatus)
		r.Post("/refresh/{feed}", rt.handler.TriggerRefresh)
	})

	if rt.wsHandler != nil {
		r.Get("/ws", rt.wsHandler)
	}

	return r
}

// requestLogger logs every request at debug level
func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		rt.logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// cors applies the configured allowed origins
func (rt *Router) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			switch {
			case slices.Contains(rt.allowedOrigins, "*"):
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case slices.Contains(rt.allowedOrigins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
