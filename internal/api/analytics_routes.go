package api

import (
	"fmt"
	"net/http"

	"github.com/mkaplon/foresight-backend/internal/models"
)

type analyticsJSON struct {
	*models.MarketAnalytics
	CommentCount *int `json:"commentCount,omitempty"`
}

func (s *Server) handleMarketAnalytics(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	snap := s.markets.GetMarketAnalytics(r.Context(), marketID)
	out := analyticsJSON{MarketAnalytics: snap}

	// social decoration is best-effort; analytics still render without it
	if s.comments != nil {
		if n, err := s.comments.CountByMarket(r.Context(), marketID); err == nil {
			out.CommentCount = &n
		} else {
			fmt.Printf("[API] Comment count failed for market %s: %v\n", marketID, err)
		}
	}

	writeJSON(w, http.StatusOK, out)
}

// handleAnalyticsRefresh drops the cached snapshot, recomputes it from a
// fresh event window and pushes the result to websocket subscribers.
func (s *Server) handleAnalyticsRefresh(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	s.markets.ClearCache(marketID)
	snap := s.markets.GetMarketAnalytics(r.Context(), marketID)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastAnalytics(snap)
	}
	writeJSON(w, http.StatusOK, snap)
}
