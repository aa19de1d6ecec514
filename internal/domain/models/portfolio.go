package models

import "time"

// TradeEventKind is the type of a trade event.
type TradeEventKind string

const (
	TradeBuy  TradeEventKind = "buy"
	TradeSell TradeEventKind = "sell"
)

// TradeEvent records a single executed buy or sell.
// Profit is set on sells only.
type TradeEvent struct {
	Kind      TradeEventKind `json:"kind"`
	Units     float64        `json:"units"`
	Price     float64        `json:"price"`
	Amount    float64        `json:"amount"`
	Timestamp time.Time      `json:"timestamp"`
	Profit    *float64       `json:"profit,omitempty"`
}

// ProfitPoint is one mark-to-market sample of an open position.
type ProfitPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Profit    float64   `json:"profit"`
}

// PortfolioState is the published view of the simulated account.
type PortfolioState struct {
	Units          float64       `json:"units"`
	InvestedAmount float64       `json:"invested_amount"`
	LastBuyPrice   float64       `json:"last_buy_price,omitempty"`
	PortfolioValue float64       `json:"portfolio_value"`
	Profit         float64       `json:"profit"`
	ProfitPoints   []ProfitPoint `json:"profit_points"`
	Events         []TradeEvent  `json:"events"`
}

// Holding reports whether a position is open.
func (p PortfolioState) Holding() bool { return p.Units > 0 }
