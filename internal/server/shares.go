package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/michaelbrown/javarena/internal/storage"
)

type createShareRequest struct {
	Code   string `json:"code"`
	Output string `json:"output"`
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	var req createShareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeFailure(w, http.StatusBadRequest, "Code cannot be empty")
		return
	}
	if limit := s.cfg.Shares.MaxSize; limit > 0 && len(req.Code) > limit {
		writeFailure(w, http.StatusBadRequest, fmt.Sprintf("Code too large (max %dKB)", limit/1000))
		return
	}

	sh := &storage.Share{
		ID:        storage.NewShareID(),
		Code:      req.Code,
		Output:    req.Output,
		ExpiresAt: time.Now().UTC().Add(s.cfg.Shares.TTL).Truncate(time.Second),
	}
	if err := s.deps.Store.CreateShare(r.Context(), sh); err != nil {
		s.log.Error("creating share", "err", err)
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"id":         sh.ID,
		"expires_at": sh.ExpiresAt,
	})
}

// handleGetShare returns a share as JSON, or as a markdown document with
// ?format=markdown.
func (s *Server) handleGetShare(w http.ResponseWriter, r *http.Request) {
	sh, err := s.deps.Store.GetShare(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "Share not found")
		return
	case errors.Is(err, storage.ErrExpired):
		writeFailure(w, http.StatusGone, "Share has expired")
		return
	case err != nil:
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(storage.ExportMarkdown(sh)))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"code":       sh.Code,
		"output":     sh.Output,
		"views":      sh.Views,
		"created_at": sh.CreatedAt,
		"expires_at": sh.ExpiresAt,
	})
}
