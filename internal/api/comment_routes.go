package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mkaplon/foresight-backend/internal/models"
	"github.com/mkaplon/foresight-backend/internal/repository"
)

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	if s.comments == nil {
		writeError(w, http.StatusServiceUnavailable, "comments are not enabled")
		return
	}

	marketID := r.PathValue("id")
	limit := parseLimit(r, 50)

	list, err := s.comments.ListByMarket(r.Context(), marketID, limit)
	if err != nil {
		fmt.Printf("[API] List comments failed for market %s: %v\n", marketID, err)
		writeError(w, http.StatusInternalServerError, "failed to fetch comments")
		return
	}
	if list == nil {
		list = []models.Comment{}
	}
	writeJSON(w, http.StatusOK, list)
}

type createCommentRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	if s.comments == nil {
		writeError(w, http.StatusServiceUnavailable, "comments are not enabled")
		return
	}

	marketID := r.PathValue("id")

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !common.IsHexAddress(req.Author) {
		writeError(w, http.StatusBadRequest, "invalid author address")
		return
	}

	c, err := s.comments.Create(r.Context(), marketID, req.Author, req.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	if s.comments == nil {
		writeError(w, http.StatusServiceUnavailable, "comments are not enabled")
		return
	}

	id := r.PathValue("id")
	author := r.URL.Query().Get("author")
	if !common.IsHexAddress(author) {
		writeError(w, http.StatusBadRequest, "invalid author address")
		return
	}

	err := s.comments.Delete(r.Context(), id, author)
	switch {
	case errors.Is(err, repository.ErrCommentNotFound):
		writeError(w, http.StatusNotFound, "comment not found")
	case errors.Is(err, repository.ErrNotCommentOwner):
		writeError(w, http.StatusForbidden, "not the comment author")
	case err != nil:
		fmt.Printf("[API] Delete comment %s failed: %v\n", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete comment")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
