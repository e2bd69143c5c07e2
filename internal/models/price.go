package models

import "time"

// PriceUpdate is one streamed price for a symbol. The source supplies no
// sequence number; ReceivedAt is stamped locally on arrival.
type PriceUpdate struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	ReceivedAt time.Time `json:"received_at"`
}

// PriceHandler receives streamed price updates.
type PriceHandler func(PriceUpdate)

// SubscriptionCount reports the reference count held for a symbol.
type SubscriptionCount struct {
	Symbol string `json:"symbol"`
	Count  int    `json:"count"`
}
