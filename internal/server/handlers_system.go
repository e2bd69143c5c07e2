package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bobmcallan/sharesrus/internal/common"
)

// HealthResponse reports the live dependencies of the service.
type HealthResponse struct {
	Status          string `json:"status"`
	PriceStream     string `json:"price_stream"`
	HistoryCache    string `json:"history_cache"`
	Views           int    `json:"views"`
	EventClients    int    `json:"event_clients"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	SubscribedCount int    `json:"subscribed_symbols"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// handleHealth handles GET /api/health. A dropped price stream or cache
// degrades the service but never fails the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:          "ok",
		PriceStream:     "connected",
		HistoryCache:    "disabled",
		Views:           s.app.Views.Count(),
		EventClients:    s.app.Hub.ClientCount(),
		UptimeSeconds:   int64(time.Since(s.app.StartupTime).Seconds()),
		SubscribedCount: len(s.app.Reconciler.Counts()),
	}

	if !s.app.StreamConnected() {
		resp.Status = "degraded"
		resp.PriceStream = "disconnected"
	}

	if s.app.HistoryCache != nil {
		resp.HistoryCache = "ok"
		if p, ok := s.app.HistoryCache.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				resp.Status = "degraded"
				resp.HistoryCache = "unreachable"
			}
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}

// handleSubscriptions handles GET /api/subscriptions.
func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subscriptions": s.app.Reconciler.Counts(),
		"listeners":     s.app.Dispatcher.Listeners(),
	})
}

// handlePortfolioList handles GET /api/portfolios.
func (s *Server) handlePortfolioList(w http.ResponseWriter, r *http.Request) {
	portfolios, err := s.app.Views.Portfolios(r.Context())
	if err != nil {
		common.LoggerFromContext(r.Context(), s.logger).Warn().Err(err).Msg("Portfolio list failed")
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"portfolios": portfolios})
}
