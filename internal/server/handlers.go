package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/mirip/internal/catalog"
	"github.com/hyperjump/mirip/internal/lifecycle"
	"github.com/hyperjump/mirip/internal/models"
	"github.com/hyperjump/mirip/internal/storage"
)

const (
	defaultBuildsLimit = 20
	maxBuildsLimit     = 200
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.search(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleLegacySearch answers with the product rows themselves, each carrying
// its score under "_similarity".
func (s *Server) handleLegacySearch(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.search(w, r)
	if !ok {
		return
	}
	rows := make([]map[string]any, 0, len(resp.Results))
	for _, res := range resp.Results {
		row := make(map[string]any, len(res.Product)+1)
		for k, v := range res.Product {
			row[k] = v
		}
		row["_similarity"] = res.Similarity
		rows = append(rows, row)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": rows, "count": len(rows)})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) (*models.SearchResponse, bool) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("top_k", query.TopK))
	resp, err := s.catalog.Search(r.Context(), &query)
	if err != nil {
		s.respondFailure(w, "search", err)
		return nil, false
	}
	return resp, true
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	s.addProduct(w, r, http.StatusCreated)
}

func (s *Server) handleLegacyAddProduct(w http.ResponseWriter, r *http.Request) {
	s.addProduct(w, r, http.StatusOK)
}

func (s *Server) addProduct(w http.ResponseWriter, r *http.Request, status int) {
	id, ok := s.productID(w, r)
	if !ok {
		return
	}
	s.logger.Debug("add product request", zap.Int64("id", id))
	row, err := s.catalog.AddProduct(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "add product", err)
		return
	}
	s.respondJSON(w, status, map[string]any{"status": "added", "product_id": id, "product": row})
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := s.productID(w, r)
	if !ok {
		return
	}
	s.logger.Debug("delete product request", zap.Int64("id", id))
	if err := s.catalog.DeleteProduct(r.Context(), id); err != nil {
		s.respondFailure(w, "delete product", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "deleted", "product_id": id})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.RebuildInBackground(r.Context()); err != nil {
		s.respondFailure(w, "rebuild", err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "rebuilding"})
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	lifecycle.Status
	DiskUsageBytes int64          `json:"disk_usage_bytes"`
	Config         map[string]any `json:"config"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Status: s.manager.Status()}
	if s.persister != nil {
		if n, err := s.persister.DiskUsage(); err == nil {
			resp.DiskUsageBytes = n
		} else {
			s.logger.Warn("status: disk usage failed", zap.Error(err))
		}
	}

	resp.Config = s.config.Summary()
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusNotImplemented, "build history not enabled")
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultBuildsLimit)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxBuildsLimit {
		limit = defaultBuildsLimit
	}

	ctx := r.Context()
	builds, err := s.history.ListBuilds(ctx, offset, limit)
	if err != nil {
		s.respondFailure(w, "list builds", err)
		return
	}
	total, err := s.history.CountBuilds(ctx)
	if err != nil {
		s.respondFailure(w, "count builds", err)
		return
	}
	if builds == nil {
		builds = []*lifecycle.BuildReport{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"builds": builds, "total": total})
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusNotImplemented, "build history not enabled")
		return
	}
	build, err := s.history.GetBuild(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, "get build", err)
		return
	}
	s.respondJSON(w, http.StatusOK, build)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// respondFailure maps service errors to status codes.
func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrNotReady):
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "index not ready",
			"state": s.manager.Status().State,
		})
	case errors.Is(err, catalog.ErrEmptyQuery):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrProductNotFound):
		s.respondError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, storage.ErrBuildNotFound):
		s.respondError(w, http.StatusNotFound, "build not found")
	case errors.Is(err, lifecycle.ErrDuplicateID), errors.Is(err, lifecycle.ErrRebuildInProgress):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
