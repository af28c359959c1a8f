package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/models"
)

const (
	maxBodyBytes     = 32 << 20 // base64 query images
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if !s.decode(w, r, &query) {
		return
	}
	s.search(w, r, &query)
}

// decode reads a JSON body into v, answering 400 or 413 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	s.respondError(w, http.StatusBadRequest, "invalid request body")
	return false
}

func (s *Server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.NewTextQuery(q.Get("query"))
	query.Index = q.Get("index")
	s.search(w, r, query)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, query *models.SearchQuery) {
	s.logger.Debug("search request", zap.String("type", string(query.Kind)), zap.Int("query_len", len(query.Query)))
	response, err := s.engine.Search(r.Context(), query)
	if err != nil {
		s.fail(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.respondError(w, http.StatusNotImplemented, "ingest not enabled")
		return
	}
	var m models.Manifest
	if !s.decode(w, r, &m) {
		return
	}
	job, err := s.jobs.Start(r.Context(), &m)
	if err != nil {
		s.fail(w, "job submission failed", err)
		return
	}
	s.logger.Debug("job accepted", zap.String("job_id", job.ID))
	s.respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit < 1 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxPageLimit)

	ctx := r.Context()
	jobs, err := s.catalog.ListJobs(ctx, offset, limit)
	if err != nil {
		s.fail(w, "list jobs failed", err)
		return
	}
	total, err := s.catalog.CountJobs(ctx)
	if err != nil {
		s.fail(w, "count jobs failed", err)
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   jobs,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.catalog.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get job failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sentences, err := s.catalog.GetTranscript(r.Context(), id)
	if err != nil {
		s.fail(w, "get transcript failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobId":     id,
		"sentences": sentences,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.catalog.CountJobs(r.Context())
	if err != nil {
		s.fail(w, "status: count jobs failed", err)
		return
	}
	resp := map[string]interface{}{
		"version": s.version,
		"jobs":    jobs,
	}
	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"store_backend":    s.config.Storage.Backend,
			"catalog_backend":  s.config.Catalog.Backend,
			"shots_index":      s.config.Index.Shots,
			"audio_index":      s.config.Index.Audio,
			"text_model":       s.config.Embedding.TextModel,
			"image_model":      s.config.Embedding.ImageModel,
			"rerank_enabled":   s.config.Rerank.Enabled,
			"max_results":      s.config.Search.MaxResults,
			"relevance_cutoff": s.config.Search.RelevanceThreshold,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case apperr.IsParse(err), apperr.IsConfig(err):
		return http.StatusBadRequest
	case apperr.IsNotFound(err):
		return http.StatusNotFound
	case apperr.IsProvider(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
