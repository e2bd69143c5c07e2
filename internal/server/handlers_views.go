package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	apperrors "github.com/bobmcallan/sharesrus/internal/errors"
	"github.com/bobmcallan/sharesrus/internal/models"
	"github.com/bobmcallan/sharesrus/internal/services/chart"
	"github.com/bobmcallan/sharesrus/internal/services/view"
)

// maxChartDimension bounds PNG width/height query overrides.
const maxChartDimension = 4000

type portfolioRequest struct {
	PortfolioID string `json:"portfolio_id"`
}

type rangeRequest struct {
	Range string `json:"range"`
}

// lookupView resolves the {view} route variable, writing 404 when unknown.
func (s *Server) lookupView(w http.ResponseWriter, r *http.Request) (*view.View, bool) {
	v, err := s.app.Views.Get(mux.Vars(r)["view"])
	if err != nil {
		WriteAppError(w, err)
		return nil, false
	}
	return v, true
}

// writeSnapshot returns a writer for the (snapshot, error) result of a view
// operation, so calls read as writeSnapshot(w)(v.Refresh(ctx)).
func writeSnapshot(w http.ResponseWriter) func(*models.ViewSnapshot, error) {
	return func(snap *models.ViewSnapshot, err error) {
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}

// handleViewOpen handles POST /api/views.
func (s *Server) handleViewOpen(w http.ResponseWriter, r *http.Request) {
	v := s.app.Views.Open()
	WriteJSON(w, http.StatusCreated, v.Snapshot())
}

// handleViewList handles GET /api/views.
func (s *Server) handleViewList(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{"views": s.app.Views.List()})
}

func (s *Server) handleViewGet(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, v.Snapshot())
}

// handleViewClose handles DELETE /api/views/{view}.
func (s *Server) handleViewClose(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Views.Close(mux.Vars(r)["view"]); err != nil {
		WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleViewPortfolio handles PUT /api/views/{view}/portfolio.
func (s *Server) handleViewPortfolio(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	var req portfolioRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	writeSnapshot(w)(v.ViewPortfolio(r.Context(), req.PortfolioID))
}

// handleViewRange handles PUT /api/views/{view}/range.
func (s *Server) handleViewRange(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	var req rangeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	rng, err := models.ParseTimeRange(req.Range)
	if err != nil {
		WriteAppError(w, apperrors.NewInvalidInputError("range", "must be one of 1W, 1M, 3M, 1Y"))
		return
	}
	writeSnapshot(w)(v.SetTimeRange(r.Context(), rng))
}

// handleViewComparison handles PUT /api/views/{view}/comparison. An empty
// portfolio_id clears the comparison.
func (s *Server) handleViewComparison(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	var req portfolioRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	writeSnapshot(w)(v.SetComparison(r.Context(), req.PortfolioID))
}

func (s *Server) handleViewRefresh(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	writeSnapshot(w)(v.Refresh(r.Context()))
}

// handleViewChart handles GET /api/views/{view}/chart.
func (s *Server) handleViewChart(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	ds := v.Chart()
	if ds == nil {
		WriteErrorWithCode(w, http.StatusNotFound, "No chart loaded for this view", "NO_CHART")
		return
	}
	WriteJSON(w, http.StatusOK, ds)
}

// handleViewChartPNG handles GET /api/views/{view}/chart.png. Optional
// width and height query parameters override the configured size.
func (s *Server) handleViewChartPNG(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	ds := v.Chart()
	if ds == nil {
		WriteErrorWithCode(w, http.StatusNotFound, "No chart loaded for this view", "NO_CHART")
		return
	}

	width, valid := dimensionParam(r, "width", s.app.Config.Chart.Width)
	if !valid {
		WriteAppError(w, apperrors.NewInvalidInputError("width", "must be a positive integer"))
		return
	}
	height, valid := dimensionParam(r, "height", s.app.Config.Chart.Height)
	if !valid {
		WriteAppError(w, apperrors.NewInvalidInputError("height", "must be a positive integer"))
		return
	}
	opts := chart.RenderOptions{Width: width, Height: height}

	png, err := chart.RenderPNG(ds, opts)
	if err != nil {
		WriteErrorWithCode(w, http.StatusUnprocessableEntity, err.Error(), "CHART_RENDER")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func dimensionParam(r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxChartDimension {
		return 0, false
	}
	return n, true
}

// handleAssetAdd handles POST /api/views/{view}/assets.
func (s *Server) handleAssetAdd(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	var req models.NewAsset
	if !DecodeJSON(w, r, &req) {
		return
	}
	snap, err := v.AddAsset(r.Context(), req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, snap)
}

// handleAssetRemove handles DELETE /api/views/{view}/assets/{asset}?confirm=.
func (s *Server) handleAssetRemove(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	confirmed, valid := parseConfirm(r)
	if !valid {
		WriteAppError(w, apperrors.NewInvalidInputError("confirm", "must be true or false"))
		return
	}
	writeSnapshot(w)(v.RemoveAsset(r.Context(), mux.Vars(r)["asset"], models.DecisionFromBool(confirmed)))
}

// handlePortfolioEdit handles PATCH /api/views/{view}/portfolio.
func (s *Server) handlePortfolioEdit(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	var req models.PortfolioEdit
	if !DecodeJSON(w, r, &req) {
		return
	}
	writeSnapshot(w)(v.EditPortfolio(r.Context(), req))
}

// handlePortfolioDelete handles DELETE /api/views/{view}/portfolio?confirm=.
func (s *Server) handlePortfolioDelete(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	confirmed, valid := parseConfirm(r)
	if !valid {
		WriteAppError(w, apperrors.NewInvalidInputError("confirm", "must be true or false"))
		return
	}
	writeSnapshot(w)(v.DeletePortfolio(r.Context(), models.DecisionFromBool(confirmed)))
}
