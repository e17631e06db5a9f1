// Package server exposes sessions, cleaning and forecasts as a JSON HTTP API
// for a dashboard front end.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/KaramelBytes/gradecast/internal/forecast"
	"github.com/KaramelBytes/gradecast/internal/logging"
	"github.com/KaramelBytes/gradecast/internal/metrics"
	"github.com/KaramelBytes/gradecast/internal/session"
)

// Options configures the HTTP service.
type Options struct {
	SampleDir        string
	MaxUploadBytes   int64
	DefaultThreshold float64
}

// Server wires the session store, forecast pipeline and metrics to HTTP routes.
type Server struct {
	opt      Options
	store    *session.Store
	pipeline *forecast.Pipeline
	metrics  *metrics.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// New builds a server. Nil metrics or logger get working defaults.
func New(opt Options, store *session.Store, pipeline *forecast.Pipeline, m *metrics.Metrics, logger *slog.Logger) *Server {
	if opt.MaxUploadBytes <= 0 {
		opt.MaxUploadBytes = 32 << 20
	}
	if opt.DefaultThreshold == 0 {
		opt.DefaultThreshold = 4.75
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		opt:      opt,
		store:    store,
		pipeline: pipeline,
		metrics:  m,
		logger:   logger.With(slog.String("component", "http")),
		validate: v,
	}
}

// Routes returns the full router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/samples", s.listSamples)
		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(s.sessionCtx)
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/upload", s.upload)
			r.Post("/sample", s.selectSample)
			r.Post("/reload", s.reload)
			r.Get("/table", s.describeTable)
			r.Post("/dtypes", s.changeDtypes)
			r.Post("/clean", s.cleanTable)
			r.Get("/export.csv", s.exportCSV)
			r.Post("/forecast", s.runForecast)
			r.Get("/forecast/recommendations.txt", s.recommendations)
			r.Get("/forecast/results.csv", s.resultsCSV)
		})
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// observe tags the context with the request id, then logs and counts the response.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.metrics.ObserveRequest(route, status)
		s.logger.DebugContext(ctx, "request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)))
	})
}

type sessionKey struct{}

// sessionCtx resolves {id} and stores the session on the context.
func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.store.Get(chi.URLParam(r, "id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(sessionKey{}).(*session.Session)
}

// fail renders err as an APIError, logging server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", slog.String("error", err.Error()))
	} else {
		s.logger.DebugContext(r.Context(), "request rejected",
			slog.String("code", apiErr.ErrorCode), slog.String("error", err.Error()))
	}
	_ = render.Render(w, r, apiErr)
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return s.validate.Struct(v)
}
