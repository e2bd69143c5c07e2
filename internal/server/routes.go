package server

import (
	"net/http"
	"time"
)

// registerRoutes sets up all REST API routes on the router.
func (s *Server) registerRoutes() {
	r := s.router

	// System
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/version", s.handleVersion).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/subscriptions", s.handleSubscriptions).Methods(http.MethodGet)
	r.HandleFunc("/api/shutdown", s.handleShutdown).Methods(http.MethodPost)

	// Live events
	r.HandleFunc("/api/ws", s.app.Hub.ServeWS).Methods(http.MethodGet)

	// Comparison candidates
	r.HandleFunc("/api/portfolios", s.handlePortfolioList).Methods(http.MethodGet)

	// Views
	r.HandleFunc("/api/views", s.handleViewList).Methods(http.MethodGet)
	r.HandleFunc("/api/views", s.handleViewOpen).Methods(http.MethodPost)

	v := r.PathPrefix("/api/views/{view}").Subrouter()
	v.HandleFunc("", s.handleViewGet).Methods(http.MethodGet)
	v.HandleFunc("", s.handleViewClose).Methods(http.MethodDelete)
	v.HandleFunc("/portfolio", s.handleViewPortfolio).Methods(http.MethodPut)
	v.HandleFunc("/portfolio", s.handlePortfolioEdit).Methods(http.MethodPatch)
	v.HandleFunc("/portfolio", s.handlePortfolioDelete).Methods(http.MethodDelete)
	v.HandleFunc("/range", s.handleViewRange).Methods(http.MethodPut)
	v.HandleFunc("/comparison", s.handleViewComparison).Methods(http.MethodPut)
	v.HandleFunc("/refresh", s.handleViewRefresh).Methods(http.MethodPost)
	v.HandleFunc("/chart", s.handleViewChart).Methods(http.MethodGet)
	v.HandleFunc("/chart.png", s.handleViewChartPNG).Methods(http.MethodGet)
	v.HandleFunc("/assets", s.handleAssetAdd).Methods(http.MethodPost)
	v.HandleFunc("/assets/{asset}", s.handleAssetRemove).Methods(http.MethodDelete)
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}
