package models

import (
	"testing"
	"time"
)

func samplePortfolio() *Portfolio {
	p := &Portfolio{ID: "P1", Assets: []Asset{
		{ID: "a1", Symbol: "AAPL", Quantity: 10, CurrentPrice: 140},
		{ID: "a2", Symbol: "MSFT", Quantity: 5, CurrentPrice: 310},
		{ID: "a3", Symbol: "AAPL", Quantity: 1, CurrentPrice: 140},
	}}
	p.Recompute()
	return p
}

func TestRecompute(t *testing.T) {
	p := samplePortfolio()
	if p.TotalValue != 3090 {
		t.Errorf("TotalValue = %v, want 3090", p.TotalValue)
	}
	if p.Assets[1].TotalValue != 1550 {
		t.Errorf("MSFT TotalValue = %v, want 1550", p.Assets[1].TotalValue)
	}
}

func TestAssetValue_NoFloatDrift(t *testing.T) {
	// 0.1 * 3 is 0.30000000000000004 in float64
	if got := AssetValue(3, 0.1); got != 0.3 {
		t.Errorf("AssetValue(3, 0.1) = %v, want 0.3", got)
	}
}

func TestApplyPrice(t *testing.T) {
	p := samplePortfolio()
	at := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

	if n := p.ApplyPrice("AAPL", 150, at); n != 2 {
		t.Fatalf("ApplyPrice changed %d assets, want 2", n)
	}
	if p.Assets[0].TotalValue != 1500 {
		t.Errorf("AAPL TotalValue = %v, want 1500", p.Assets[0].TotalValue)
	}
	if !p.Assets[2].PriceUpdatedAt.Equal(at) {
		t.Errorf("PriceUpdatedAt = %v, want %v", p.Assets[2].PriceUpdatedAt, at)
	}
	if p.TotalValue != 3200 {
		t.Errorf("TotalValue = %v, want 3200", p.TotalValue)
	}

	if n := p.ApplyPrice("TSLA", 1, at); n != 0 {
		t.Errorf("unheld symbol changed %d assets", n)
	}
	if p.TotalValue != 3200 {
		t.Errorf("TotalValue changed by unheld symbol: %v", p.TotalValue)
	}
}

func TestSymbols_UniqueSorted(t *testing.T) {
	got := samplePortfolio().Symbols()
	if len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Errorf("Symbols() = %v, want [AAPL MSFT]", got)
	}
}

func TestClone_IsDeep(t *testing.T) {
	p := samplePortfolio()
	cp := p.Clone()
	cp.Assets[0].CurrentPrice = 1
	if p.Assets[0].CurrentPrice != 140 {
		t.Error("mutating the clone changed the original")
	}
	if (*Portfolio)(nil).Clone() != nil {
		t.Error("nil Clone should be nil")
	}
}

func TestFindAsset(t *testing.T) {
	p := samplePortfolio()
	if a := p.FindAsset("a2"); a == nil || a.Symbol != "MSFT" {
		t.Errorf("FindAsset(a2) = %v", a)
	}
	if p.FindAsset("zz") != nil {
		t.Error("FindAsset(zz) should be nil")
	}
}

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeRange
		wantErr bool
	}{
		{"1W", Range1W, false},
		{" 1m ", Range1M, false},
		{"3M", Range3M, false},
		{"1y", Range1Y, false},
		{"5Y", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTimeRange(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeRange(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeRange(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestChartDatasetClone(t *testing.T) {
	ds := &ChartDataset{
		Labels:   []string{"2024-01-01"},
		Datasets: []ChartSeries{{Label: PrimarySeriesLabel, Data: []float64{1}}},
	}
	cp := ds.Clone()
	cp.Labels[0] = "x"
	cp.Datasets[0].Data[0] = 2
	if ds.Labels[0] != "2024-01-01" || ds.Datasets[0].Data[0] != 1 {
		t.Error("mutating the clone changed the original")
	}
}

func TestDecisionFromBool(t *testing.T) {
	if DecisionFromBool(true) != DecisionConfirmed || DecisionFromBool(false) != DecisionCancelled {
		t.Error("DecisionFromBool mapping wrong")
	}
	if DecisionConfirmed.String() != "confirmed" {
		t.Errorf("String() = %q", DecisionConfirmed.String())
	}
}
