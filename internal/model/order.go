package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the order-lifecycle finite-state enumeration. The executor
// creates each state; the monitor makes the later transitions, except the
// cancellation of a pending entry on DISARM, which the router persists.
type OrderStatus string

const (
	StatusPending           OrderStatus = "pending"
	StatusFilled            OrderStatus = "filled"
	StatusArmed             OrderStatus = "armed"
	StatusClosed            OrderStatus = "closed"
	StatusCancelled         OrderStatus = "cancelled"
	StatusFailed            OrderStatus = "failed"
	StatusSkippedLowBalance OrderStatus = "skipped_low_balance"
)

// Terminal reports whether no further monitor transitions are expected.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusClosed, StatusCancelled, StatusFailed, StatusSkippedLowBalance:
		return true
	default:
		return false
	}
}

// HasExchangeOrder reports whether the invariant "order_id must be non-null"
// applies to this status.
func (s OrderStatus) HasExchangeOrder() bool {
	switch s {
	case StatusPending, StatusArmed, StatusFilled:
		return true
	default:
		return false
	}
}

// OrderState is the authoritative lifecycle record for one signal dispatched
// to one bot. (bot_id, signal_id) is unique.
type OrderState struct {
	ID                string
	BotID             string
	SignalID          string
	Status            OrderStatus
	Side              Side
	Symbol            string
	TriggerPrice      decimal.Decimal
	StopPrice         decimal.Decimal
	Quantity          decimal.Decimal
	FilledQuantity    decimal.Decimal
	AvgFillPrice      *decimal.Decimal
	OrderID           *int64
	StopOrderID       *int64
	TakeProfitOrderID *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Position is the in-memory record the Monitor owns for a filled entry.
type Position struct {
	BotID        string
	Symbol       string
	Side         Side
	EntryPrice   decimal.Decimal
	Quantity     decimal.Decimal
	StopLoss     decimal.Decimal
	TakeProfit   decimal.Decimal
	OpenedAt     time.Time
}
