package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"plantatlas/internal/ratelimit"
	"plantatlas/internal/usertoken"
	"plantatlas/internal/util"
	"plantatlas/pkg/classify"
	"plantatlas/pkg/domain"
	"plantatlas/services/api/internal/app"
	"plantatlas/services/api/internal/authclient"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App             *app.App
	Auth            *authclient.Client
	TokenVerifier   *usertoken.Verifier
	ListLimiter     *ratelimit.FixedWindowLimiter
	SignLimiter     *ratelimit.FixedWindowLimiter
	ClassifyLimiter *ratelimit.FixedWindowLimiter
	Proxies         *util.TrustedProxies
	MaxUploadBytes  int64
}

// Server exposes HTTP endpoints for the api service.
type Server struct {
	app             *app.App
	auth            *authclient.Client
	tokenVerifier   *usertoken.Verifier
	listLimiter     *ratelimit.FixedWindowLimiter
	signLimiter     *ratelimit.FixedWindowLimiter
	classifyLimiter *ratelimit.FixedWindowLimiter
	proxies         *util.TrustedProxies
	mux             *http.ServeMux
	maxUploadBytes  int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 * 1024 * 1024
	}
	s := &Server{
		app:             cfg.App,
		auth:            cfg.Auth,
		tokenVerifier:   cfg.TokenVerifier,
		listLimiter:     cfg.ListLimiter,
		signLimiter:     cfg.SignLimiter,
		classifyLimiter: cfg.ClassifyLimiter,
		proxies:         cfg.Proxies,
		mux:             http.NewServeMux(),
		maxUploadBytes:  maxUploadBytes,
	}
	s.routes()
	return s
}

// Router returns the configured handler wrapped in shared middleware.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("api", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/plants", s.handlePlants)
	s.mux.HandleFunc("/plants/", s.handlePlantByID)
	s.mux.HandleFunc("/dictionary", s.handleDictionary)
	s.mux.Handle("/storage/sign", s.withUser(s.handleSign))
	s.mux.Handle("/storage/upload", s.withUser(s.handleUpload))
	s.mux.Handle("/classify", s.withUser(s.handleClassify))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

// withUser checks the token signature locally, then resolves the user
// through the auth service so revoked sessions are rejected too.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.resolveUser(w, r)
		if !ok {
			return
		}
		next(w, r, user)
	})
}

// resolveUser authenticates the request, writing the error response
// itself on failure.
func (s *Server) resolveUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	if s.auth == nil {
		writeError(w, http.StatusInternalServerError, "internal", "auth client not configured")
		return domain.User{}, false
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return domain.User{}, false
	}
	if s.tokenVerifier != nil {
		if _, err := s.tokenVerifier.VerifySubject(token); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return domain.User{}, false
		}
	}
	user, err := s.auth.Me(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return domain.User{}, false
	}
	return user, true
}

// Reads are public: the map view shows everyone's records to signed-out
// users too. Only mutations need a user.
func (s *Server) handlePlants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListPlants(w, r)
	case http.MethodPost:
		user, ok := s.resolveUser(w, r)
		if !ok {
			return
		}
		s.handleCreatePlant(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListPlants(w http.ResponseWriter, r *http.Request) {
	// Public endpoint, so the limiter keys on client IP rather than a
	// user id.
	if s.listLimiter != nil && !s.listLimiter.Allow(util.ClientIP(r, s.proxies)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many list requests")
		return
	}
	plants, err := s.app.ListPlants(r.URL.Query().Get("owner"))
	if err != nil {
		slog.Error("list plants failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if plants == nil {
		plants = []domain.PlantRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plants": plants})
}

func (s *Server) handleCreatePlant(w http.ResponseWriter, r *http.Request, user domain.User) {
	var draft app.PlantDraft
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}
	rec, err := s.app.CreatePlant(r.Context(), user, draft)
	if err != nil {
		slog.Warn("create plant rejected", "err", err)
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"plant": rec})
}

// /plants/{id}
func (s *Server) handlePlantByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/plants/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		rec, found, err := s.app.GetPlant(id)
		if err != nil {
			slog.Error("get plant failed", "id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "not_found", "plant not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"plant": rec})
	case http.MethodPatch:
		user, ok := s.resolveUser(w, r)
		if !ok {
			return
		}
		var patch domain.PlantPatch
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
			return
		}
		s.writeMutationResult(w, s.app.UpdatePlant(r.Context(), user, id, patch))
	case http.MethodDelete:
		user, ok := s.resolveUser(w, r)
		if !ok {
			return
		}
		s.writeMutationResult(w, s.app.DeletePlant(r.Context(), user, id))
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) writeMutationResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "plant not found")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, app.ErrEmptyPatch):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		slog.Error("plant mutation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (s *Server) handleDictionary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	entries, err := s.app.Dictionary()
	if err != nil {
		slog.Error("list dictionary failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if entries == nil {
		entries = []domain.DictionaryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.signLimiter != nil && !s.signLimiter.Allow(user.ID) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many sign requests")
		return
	}
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}
	urls := s.app.SignURLs(r.Context(), req.Paths)
	writeJSON(w, http.StatusOK, map[string]any{"urls": urls})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "image file is required")
		return
	}
	defer file.Close()
	storagePath, err := s.app.UploadImage(r.Context(), user, header.Filename, file, header.Size)
	if err != nil {
		slog.Error("upload image failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"imagePath": storagePath})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.classifyLimiter != nil && !s.classifyLimiter.Allow(user.ID) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many classify requests")
		return
	}
	var req classify.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}
	if len(req.Image) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "image is required")
		return
	}
	result, err := s.app.Classify(r.Context(), req)
	if err != nil {
		slog.Error("classify failed", "err", err)
		writeError(w, http.StatusBadGateway, "classifier_unavailable", "classification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"classification": result})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}
