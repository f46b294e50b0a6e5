// Package fakeapi is an in-memory implementation of the entity admin API.
// It backs the repository tests and "entityctl serve".
package fakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fivetwenty-io/entity-client/internal/constants"
	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

// Server serves a Store over HTTP.
type Server struct {
	store    *Store
	logger   *zap.SugaredLogger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	router   *chi.Mux
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.SugaredLogger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server for store.
func NewServer(store *Store, opts ...ServerOption) *Server {
	s := &Server{
		store:    store,
		logger:   zap.NewNop().Sugar(),
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fakeapi_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fakeapi_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registry.MustRegister(s.requests, s.duration)
	s.router = s.routes()

	return s
}

// Registry exposes the server metrics registry.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: constants.ServerReadHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Infow("Starting fake API server", "addr", addr)

		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancel()

	s.logger.Infow("Shutting down fake API server")

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	return nil
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(middleware.Heartbeat("/_info/health"))

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Post(constants.APIPathSearch+"/*", s.handleSearch)
	r.Post(constants.APIPathSearchIDs+"/*", s.handleSearchIDs)
	r.Post(constants.APIPathSync, s.handleSync)
	r.Post(constants.APIPathToken, s.handleToken)

	r.Route("/{entity}", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
		r.Post("/{id}/{association}", s.handleCreateNested)
	})

	return r
}

// requestLogger logs each request and records metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			duration := time.Since(start)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			s.requests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
			s.duration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

			s.logger.Infow("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"size", ww.BytesWritten(),
				"duration", duration,
				"language", r.Header.Get(constants.HeaderLanguageID),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	entityName, sc, ok := s.resolveSource(w, chi.URLParam(r, "*"))
	if !ok {
		return
	}

	criteria, ok := s.decodeCriteria(w, r.Body)
	if !ok {
		return
	}

	result := s.store.Search(entityName, criteria, language(r), sc)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":         result.Records,
		"total":        result.Total,
		"aggregations": map[string]interface{}{},
	})
}

func (s *Server) handleSearchIDs(w http.ResponseWriter, r *http.Request) {
	entityName, sc, ok := s.resolveSource(w, chi.URLParam(r, "*"))
	if !ok {
		return
	}

	criteria, ok := s.decodeCriteria(w, r.Body)
	if !ok {
		return
	}

	result := s.store.Search(entityName, criteria, language(r), sc)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  result.IDs,
		"total": result.Total,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entityName, ok := s.entityParam(w, r)
	if !ok {
		return
	}

	criteria := entity.NewCriteria()

	if raw := r.URL.Query().Get(constants.QueryParamCriteria); raw != "" {
		criteria, ok = s.decodeCriteria(w, strings.NewReader(raw))
		if !ok {
			return
		}
	}

	id := chi.URLParam(r, "id")

	data := s.store.Get(entityName, id, criteria, language(r))
	if data == nil {
		writeErrorResponse(w, newWriteError(http.StatusNotFound, constants.ErrorCodeNotFound,
			"Not found", entityName+" "+strconv.Quote(id)+" not found", ""))

		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, nil, modeCreate)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, map[string]interface{}{fieldID: chi.URLParam(r, "id")}, modeUpdate)
}

func (s *Server) handleCreateNested(w http.ResponseWriter, r *http.Request) {
	entityName, ok := s.entityParam(w, r)
	if !ok {
		return
	}

	parentID := chi.URLParam(r, "id")
	field := camelCase(chi.URLParam(r, "association"))

	assoc, found := s.store.schemas[entityName].Associations[field]
	if !found || !assoc.ToMany {
		writeErrorResponse(w, newWriteError(http.StatusNotFound, constants.ErrorCodeNotFound,
			"Not found", entityName+" has no collection "+field, ""))

		return
	}

	if s.store.Get(entityName, parentID, nil, language(r)) == nil {
		writeErrorResponse(w, newWriteError(http.StatusNotFound, constants.ErrorCodeNotFound,
			"Not found", entityName+" "+strconv.Quote(parentID)+" not found", ""))

		return
	}

	payload, ok := decodePayload(w, r.Body)
	if !ok {
		return
	}

	payload[assoc.ForeignKey] = parentID

	s.persist(w, r, assoc.Entity, payload, modeCreate)
}

// write handles create and update. overrides are applied on top of the
// decoded payload.
func (s *Server) write(w http.ResponseWriter, r *http.Request, overrides map[string]interface{}, mode writeMode) {
	entityName, ok := s.entityParam(w, r)
	if !ok {
		return
	}

	payload, ok := decodePayload(w, r.Body)
	if !ok {
		return
	}

	for k, v := range overrides {
		payload[k] = v
	}

	s.persist(w, r, entityName, payload, mode)
}

func (s *Server) persist(
	w http.ResponseWriter,
	r *http.Request,
	entityName string,
	payload map[string]interface{},
	mode writeMode,
) {
	lang := language(r)

	id, err := s.store.Write(entityName, payload, lang, mode)
	if err != nil {
		writeErrorResponse(w, err)

		return
	}

	status := http.StatusOK
	if mode == modeCreate {
		status = http.StatusCreated
	}

	writeJSON(w, status, map[string]interface{}{"data": s.store.Get(entityName, id, nil, lang)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	entityName, ok := s.entityParam(w, r)
	if !ok {
		return
	}

	err := s.store.Delete(entityName, chi.URLParam(r, "id"))
	if err != nil {
		writeErrorResponse(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var items []entity.SyncItem

	err := json.NewDecoder(r.Body).Decode(&items)
	if err != nil {
		writeErrorResponse(w, newWriteError(http.StatusBadRequest, constants.ErrorCodeMalformedRequest,
			"Malformed request", "sync body must be a list of operations", ""))

		return
	}

	lang := language(r)
	outcomes := s.store.Sync(items, lang)
	results := make([]entity.SyncItemResult, len(items))

	for i, outcome := range outcomes {
		if outcome.Err != nil {
			var we *writeError
			if errors.As(outcome.Err, &we) {
				results[i].Errors = we.errors
			}

			continue
		}

		results[i].Success = true

		if items[i].Action == constants.SyncActionUpsert {
			results[i].Data = s.store.Get(items[i].Entity, outcome.ID, nil, lang)
		}
	}

	writeJSON(w, http.StatusOK, results)
}

// resolveSource parses "user" or "user/<id>/access-keys".
func (s *Server) resolveSource(w http.ResponseWriter, source string) (string, *scope, bool) {
	parts := strings.Split(strings.Trim(source, "/"), "/")

	entityName := snakeCase(parts[0])
	if !s.store.HasEntity(entityName) {
		writeErrorResponse(w, unknownEntity(parts[0]))

		return "", nil, false
	}

	switch len(parts) {
	case 1:
		return entityName, nil, true
	case 3:
		assoc, ok := s.store.schemas[entityName].Associations[camelCase(parts[2])]
		if ok && assoc.ToMany {
			return assoc.Entity, &scope{foreignKey: assoc.ForeignKey, parentID: parts[1]}, true
		}
	}

	writeErrorResponse(w, newWriteError(http.StatusNotFound, constants.ErrorCodeNotFound,
		"Not found", "unknown source /"+source, ""))

	return "", nil, false
}

func (s *Server) entityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "entity")

	entityName := snakeCase(raw)
	if !s.store.HasEntity(entityName) {
		writeErrorResponse(w, unknownEntity(raw))

		return "", false
	}

	return entityName, true
}

func (s *Server) decodeCriteria(w http.ResponseWriter, body io.Reader) (*entity.Criteria, bool) {
	criteria := entity.NewCriteria()

	data, err := io.ReadAll(body)
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		err = json.Unmarshal(data, criteria)
	}

	if err == nil {
		err = criteria.Validate()
	}

	if err != nil {
		writeErrorResponse(w, newWriteError(http.StatusBadRequest, constants.ErrorCodeMalformedRequest,
			"Malformed criteria", err.Error(), ""))

		return nil, false
	}

	return criteria, true
}

func decodePayload(w http.ResponseWriter, body io.Reader) (map[string]interface{}, bool) {
	var payload map[string]interface{}

	err := json.NewDecoder(body).Decode(&payload)
	if err != nil || payload == nil {
		writeErrorResponse(w, newWriteError(http.StatusBadRequest, constants.ErrorCodeMalformedRequest,
			"Malformed request", "body must be a JSON object", ""))

		return nil, false
	}

	return payload, true
}

// tokenLifetime is the expires_in of issued access tokens in seconds.
const tokenLifetime = 600

// handleToken issues access tokens for the client credentials, password and
// refresh token grants. Tokens are not checked on the other routes.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})

		return
	}

	clientID, _, _ := r.BasicAuth()
	if clientID == "" {
		clientID = r.PostForm.Get("client_id")
	}

	response := map[string]interface{}{
		"access_token": entity.NewID(),
		"token_type":   "Bearer",
		"expires_in":   tokenLifetime,
	}

	switch r.PostForm.Get("grant_type") {
	case "client_credentials":
		if clientID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":             "invalid_client",
				"error_description": "Client authentication failed",
			})

			return
		}
	case "password":
		if r.PostForm.Get("username") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})

			return
		}

		response["refresh_token"] = entity.NewID()
	case "refresh_token":
		response["refresh_token"] = r.PostForm.Get("refresh_token")
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})

		return
	}

	s.logger.Debugw("Issued access token", "grant_type", r.PostForm.Get("grant_type"), "client_id", clientID)
	writeJSON(w, http.StatusOK, response)
}

func unknownEntity(name string) *writeError {
	return newWriteError(http.StatusNotFound, constants.ErrorCodeUnknownEntity,
		"Unknown entity", "entity "+strconv.Quote(name)+" is not defined", "")
}

func language(r *http.Request) string {
	return r.Header.Get(constants.HeaderLanguageID)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorResponse(w http.ResponseWriter, err error) {
	var we *writeError
	if !errors.As(err, &we) {
		we = newWriteError(http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", err.Error(), "")
	}

	writeJSON(w, we.status, entity.ResponseError{Errors: we.errors})
}

// snakeCase maps a URL segment such as "user-access-key" to "user_access_key".
func snakeCase(segment string) string {
	return strings.ReplaceAll(segment, "-", "_")
}

// camelCase maps "access-keys" to "accessKeys".
func camelCase(segment string) string {
	parts := strings.Split(segment, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}

	return strings.Join(parts, "")
}
