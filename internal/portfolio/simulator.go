package portfolio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
)

const maxEvents = 200

// Simulator is a single-position paper trading account. At most one
// position is open at any time; a second buy is rejected rather than
// averaged in. All mutations go through the internal mutex so a manual
// trade can never interleave with the refresh cycle's mark.
type Simulator struct {
	mu sync.Mutex

	units          float64
	investedAmount float64
	lastBuyPrice   float64
	lastPrice      float64

	profitPoints []models.ProfitPoint
	events       []models.TradeEvent

	maxProfitPoints int
}

func New(maxProfitPoints int) *Simulator {
	return &Simulator{maxProfitPoints: maxProfitPoints}
}

// SetMaxProfitPoints adjusts the mark history cap, trimming oldest
// samples when the cap shrinks below the current length.
func (s *Simulator) SetMaxProfitPoints(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxProfitPoints = n
	if n > 0 && len(s.profitPoints) > n {
		s.profitPoints = append([]models.ProfitPoint(nil), s.profitPoints[len(s.profitPoints)-n:]...)
	}
}

// Buy opens a position of amount/price units. Rejected while a position
// is already open, or when amount or price is not a finite positive
// number.
func (s *Simulator) Buy(amount, price float64) (models.TradeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.units > 0 {
		return models.TradeEvent{}, fmt.Errorf("%w: already holding a position", models.ErrInvalidOperation)
	}
	if !(amount > 0) || math.IsInf(amount, 0) {
		return models.TradeEvent{}, fmt.Errorf("%w: buy amount must be a positive number, got %v", models.ErrInvalidOperation, amount)
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return models.TradeEvent{}, fmt.Errorf("%w: live price %v is not tradable", models.ErrInvalidOperation, price)
	}

	now := time.Now().UTC()
	s.units = amount / price
	s.investedAmount = amount
	s.lastBuyPrice = price
	s.lastPrice = price
	s.profitPoints = []models.ProfitPoint{{Timestamp: now, Profit: 0}}

	ev := models.TradeEvent{
		Kind:      models.TradeBuy,
		Units:     s.units,
		Price:     price,
		Amount:    amount,
		Timestamp: now,
	}
	s.appendEvent(ev)
	return ev, nil
}

// Sell closes the open position at the given price. Rejected when no
// position is open. The mark history survives the sell; the next buy
// resets it.
func (s *Simulator) Sell(price float64) (models.TradeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.units <= 0 {
		return models.TradeEvent{}, fmt.Errorf("%w: no open position to sell", models.ErrInvalidOperation)
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return models.TradeEvent{}, fmt.Errorf("%w: live price %v is not tradable", models.ErrInvalidOperation, price)
	}

	revenue := s.units * price
	profit := revenue - s.investedAmount

	ev := models.TradeEvent{
		Kind:      models.TradeSell,
		Units:     s.units,
		Price:     price,
		Amount:    revenue,
		Timestamp: time.Now().UTC(),
		Profit:    &profit,
	}
	s.appendEvent(ev)

	s.units = 0
	s.investedAmount = 0
	s.lastBuyPrice = 0
	s.lastPrice = price
	return ev, nil
}

// Mark records a mark-to-market sample for an open position and updates
// the remembered price. No-op when idle beyond tracking the price.
func (s *Simulator) Mark(price float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if price > 0 && !math.IsInf(price, 0) {
		s.lastPrice = price
	}
	if s.units <= 0 {
		return
	}
	s.profitPoints = append(s.profitPoints, models.ProfitPoint{
		Timestamp: ts,
		Profit:    s.units*s.lastPrice - s.investedAmount,
	})
	if s.maxProfitPoints > 0 && len(s.profitPoints) > s.maxProfitPoints {
		s.profitPoints = s.profitPoints[len(s.profitPoints)-s.maxProfitPoints:]
	}
}

// State returns a detached copy of the current account view.
func (s *Simulator) State() models.PortfolioState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := models.PortfolioState{
		Units:          s.units,
		InvestedAmount: s.investedAmount,
		LastBuyPrice:   s.lastBuyPrice,
		ProfitPoints:   append([]models.ProfitPoint(nil), s.profitPoints...),
		Events:         append([]models.TradeEvent(nil), s.events...),
	}
	if s.units > 0 {
		st.PortfolioValue = s.units * s.lastPrice
		st.Profit = st.PortfolioValue - s.investedAmount
	}
	return st
}

func (s *Simulator) appendEvent(ev models.TradeEvent) {
	s.events = append(s.events, ev)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
}
