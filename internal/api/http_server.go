package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"rentacar/internal/config"
	"rentacar/internal/contract"
	"rentacar/internal/inspection"
	"rentacar/internal/metrics"
	"rentacar/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	galleryPrefix   = "/inspeccion/"
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 4 << 20
)

type ContractService interface {
	Get(ctx context.Context, bookingID int64) (*contract.Result, error)
	Regenerate(ctx context.Context, bookingID int64, reason, actor string) (*contract.Result, error)
	Sign(ctx context.Context, bookingID int64, req contract.SignRequest) (*contract.Result, error)
	History(ctx context.Context, bookingID int64) (*models.Contract, []models.ContractHistory, error)
}

type InspectionRecorder interface {
	Record(ctx context.Context, in *models.Inspection) error
}

type GalleryResolver interface {
	Resolve(ctx context.Context, token string) (*inspection.View, error)
}

type RegisterExporter interface {
	Write(ctx context.Context, w io.Writer, from, to time.Time) (int, error)
}

type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Deps are the services behind the HTTP routes. A nil member answers 503 on its routes.
type Deps struct {
	Contracts   ContractService
	Inspections InspectionRecorder
	Gallery     GalleryResolver
	Export      RegisterExporter
	Ready       ReadinessChecker
	Location    *time.Location
}

// HTTPServer exposes the contract API and the public inspection gallery.
type HTTPServer struct {
	cfg      config.APIConfig
	deps     Deps
	server   *http.Server
	auth     *HTTPAuth
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:      cfg,
		deps:     deps,
		auth:     NewHTTPAuth(cfg),
		validate: newValidator(),
		logger:   l,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/contracts", srv.handleContracts)
	mux.HandleFunc("/api/v1/contracts/history", srv.handleHistory)
	mux.HandleFunc("/api/v1/contracts/regenerate", srv.handleRegenerate)
	mux.HandleFunc("/api/v1/contracts/export", srv.handleExport)
	mux.HandleFunc("/api/v1/inspections", srv.handleInspections)
	mux.HandleFunc(galleryPrefix, srv.handleGallery)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/readyz", srv.handleReady)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready.Ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeServiceError maps domain errors to status codes. Anything unknown is logged and hidden.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, contract.ErrBookingNotFound), errors.Is(err, contract.ErrContractNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, contract.ErrMissingCustomer),
		errors.Is(err, contract.ErrMissingPickupDate),
		errors.Is(err, contract.ErrMissingSignature),
		errors.Is(err, inspection.ErrInvalidInspection):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, contract.ErrAlreadySigned), errors.Is(err, inspection.ErrDuplicateInspection):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, inspection.ErrLinkNotFound), errors.Is(err, inspection.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, inspection.ErrLinkExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error().Err(err).
			Str("request_id", w.Header().Get(requestIDHeader)).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *HTTPServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s exceeds the maximum of %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		metrics.IncHTTP(route, recorder.status)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", route).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// routeLabel keeps tokens out of logs and metric labels.
func routeLabel(path string) string {
	if strings.HasPrefix(path, galleryPrefix) {
		return galleryPrefix + "{token}"
	}
	switch path {
	case "/contracts", "/api/v1/contracts/history", "/api/v1/contracts/regenerate",
		"/api/v1/contracts/export", "/api/v1/inspections", "/healthz", "/readyz":
		return path
	}
	return "other"
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
