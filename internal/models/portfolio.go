// Package models defines data structures for the sharesrus service
package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Asset is a single holding inside a portfolio.
type Asset struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Quantity       float64   `json:"quantity"`
	PurchasePrice  float64   `json:"purchase_price"`
	CurrentPrice   float64   `json:"current_price"`
	TotalValue     float64   `json:"total_value"`                // Quantity × CurrentPrice
	PriceUpdatedAt time.Time `json:"price_updated_at,omitempty"` // local arrival time of the last streamed price
}

// Portfolio is the viewed portfolio with its assets and derived total.
type Portfolio struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Assets      []Asset `json:"assets"`
	TotalValue  float64 `json:"total_value"` // sum of asset TotalValue
}

// NewAsset carries the fields accepted when adding an asset.
type NewAsset struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	PurchasePrice float64 `json:"purchase_price"`
}

// PortfolioEdit carries an optional name/description change. Nil fields are left untouched.
type PortfolioEdit struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// AssetValue returns quantity × price computed in decimal to avoid float drift
// accumulating across repeated price merges.
func AssetValue(quantity, price float64) float64 {
	v, _ := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price)).Round(8).Float64()
	return v
}

// Recompute refreshes every asset total and the portfolio total.
func (p *Portfolio) Recompute() {
	total := decimal.Zero
	for i := range p.Assets {
		a := &p.Assets[i]
		a.TotalValue = AssetValue(a.Quantity, a.CurrentPrice)
		total = total.Add(decimal.NewFromFloat(a.TotalValue))
	}
	p.TotalValue, _ = total.Round(8).Float64()
}

// ApplyPrice sets the current price of every asset holding symbol and
// recomputes totals. Returns the number of assets changed.
func (p *Portfolio) ApplyPrice(symbol string, price float64, at time.Time) int {
	changed := 0
	for i := range p.Assets {
		if p.Assets[i].Symbol != symbol {
			continue
		}
		p.Assets[i].CurrentPrice = price
		p.Assets[i].PriceUpdatedAt = at
		changed++
	}
	if changed > 0 {
		p.Recompute()
	}
	return changed
}

// Symbols returns the unique asset symbols, sorted.
func (p *Portfolio) Symbols() []string {
	seen := make(map[string]struct{}, len(p.Assets))
	out := make([]string, 0, len(p.Assets))
	for _, a := range p.Assets {
		if a.Symbol == "" {
			continue
		}
		if _, ok := seen[a.Symbol]; ok {
			continue
		}
		seen[a.Symbol] = struct{}{}
		out = append(out, a.Symbol)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy safe to hand to readers.
func (p *Portfolio) Clone() *Portfolio {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Assets = make([]Asset, len(p.Assets))
	copy(cp.Assets, p.Assets)
	return &cp
}

// FindAsset returns the asset with the given id, or nil.
func (p *Portfolio) FindAsset(assetID string) *Asset {
	for i := range p.Assets {
		if p.Assets[i].ID == assetID {
			return &p.Assets[i]
		}
	}
	return nil
}

// PortfolioSummary is the lightweight entry used by the comparison picker.
type PortfolioSummary struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	TotalValue float64 `json:"total_value"`
}
