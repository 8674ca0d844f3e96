package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mkaplon/foresight-backend/internal/models"
)

func (s *Server) handleUserPortfolio(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	p := s.portfolios.GetUserPortfolio(r.Context(), address)
	if p == nil {
		writeError(w, http.StatusNotFound, "no portfolio for address")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUserTrades(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	limit := parseLimit(r, 100)
	skip := parseSkip(r)

	trades := s.portfolios.GetUserTrades(r.Context(), address, limit, skip)
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleUserPositions(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	positions := s.portfolios.GetUserPositions(r.Context(), address)
	if positions == nil {
		positions = []models.MarketPosition{}
	}
	writeJSON(w, http.StatusOK, positions)
}
