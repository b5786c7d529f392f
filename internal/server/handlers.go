package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hyperjump/kagami/internal/catalog"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/search"
	"github.com/hyperjump/kagami/internal/storage"
	"go.uber.org/zap"
)

const defaultMaxUploadBytes = 16 << 20

var errUnsupportedType = errors.New("unsupported image type")

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, models.ErrInvalidK):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrServiceNotReady), errors.Is(err, models.ErrServiceDegraded):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrEmbeddingTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrDecodeFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrModelFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readQuery accepts either a multipart form with an "image" file field or a raw
// image/* body. k comes from the form or the query string.
func (s *Server) readQuery(w http.ResponseWriter, r *http.Request) (*models.SearchQuery, error) {
	limit := s.config.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	q := &models.SearchQuery{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "image/") {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		q.Image = data
		q.Name = r.URL.Query().Get("name")
	} else {
		if err := r.ParseMultipartForm(limit); err != nil {
			return nil, err
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			return nil, errors.New("multipart field \"image\" is required")
		}
		defer file.Close()
		if !s.allowedName(header.Filename) {
			return nil, fmt.Errorf("%w: %s", errUnsupportedType, header.Filename)
		}
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}
		q.Image = data
		q.Name = header.Filename
	}

	if q.Name == "" {
		q.Name = "upload-" + uuid.NewString()
	}
	if raw := r.FormValue("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", models.ErrInvalidK, raw)
		}
		q.K = k
	}
	return q, nil
}

func (s *Server) allowedName(name string) bool {
	if len(s.exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, err := s.readQuery(w, r)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("name", query.Name), zap.Int("k", query.K), zap.Int("bytes", len(query.Image)))
	response, err := s.service.Search(r.Context(), query)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("search failed", zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.service.Stats())
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.respondError(w, http.StatusNotImplemented, "catalog not enabled")
		return
	}
	q := catalog.Query{
		Text:  r.URL.Query().Get("q"),
		Class: r.URL.Query().Get("class"),
	}
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	q.Fuzziness, _ = strconv.Atoi(r.URL.Query().Get("fuzzy"))
	entries, err := s.catalog.Search(r.Context(), q)
	if err != nil {
		s.logger.Error("catalog search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": entries, "total": len(entries)})
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	store := s.service.Store()
	if store == nil {
		s.respondError(w, http.StatusServiceUnavailable, models.ErrServiceNotReady.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"classes": catalog.Classes(store, s.root)})
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusNotImplemented, "history not enabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}
	records, err := s.history.ListSearches(r.Context(), limit)
	if err != nil {
		s.logger.Error("history list failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []*models.HistoryRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"searches": records})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusNotImplemented, "history not enabled")
		return
	}
	rec, err := s.history.GetSearch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

// handleArtifact serves the image behind a store row through the same fallback chain
// used for search results.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil || row < 0 {
		s.respondError(w, http.StatusBadRequest, "row must be a non-negative integer")
		return
	}
	store := s.service.Store()
	if store == nil {
		s.respondError(w, http.StatusServiceUnavailable, models.ErrServiceNotReady.Error())
		return
	}
	if row >= store.Len() || store.Source(row).Placeholder {
		s.respondError(w, http.StatusNotFound, "row not found")
		return
	}
	path, ok := s.service.Resolver().ResolvePath(store.Source(row))
	if !ok {
		s.respondError(w, http.StatusNotFound, "image not available on this host")
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.storePath == "" {
		s.respondError(w, http.StatusNotImplemented, "reload not enabled")
		return
	}
	if err := s.service.Load(s.storePath); err != nil {
		s.logger.Error("reload failed", zap.String("path", s.storePath), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	if s.catalog != nil {
		if err := s.catalog.Rebuild(r.Context(), s.service.Store()); err != nil {
			s.logger.Warn("catalog rebuild after reload failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, s.service.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.service.State()
	status := http.StatusOK
	if state.State == search.StateNotReady {
		status = http.StatusServiceUnavailable
	}
	body := map[string]string{"status": "ok", "state": state.State.String()}
	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	if state.Reason != "" {
		body["reason"] = state.Reason
	}
	s.respondJSON(w, status, body)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
