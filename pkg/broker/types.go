package broker

import "time"

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Opposes reports whether a signal side would close out this position side.
func (p PositionSide) Opposes(s Side) bool {
	return (p == PositionLong && s == SideSell) || (p == PositionShort && s == SideBuy)
}

// OrderType enumerates supported order types.
type OrderType string

const (
	OrderMarket    OrderType = "MARKET"
	OrderLimit     OrderType = "LIMIT"
	OrderStop      OrderType = "STOP"
	OrderStopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus enumerates the order lifecycle. FILLED, CANCELED and REJECTED
// are terminal.
type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusOpen     OrderStatus = "OPEN"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
)

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// Order is a broker order as seen by the engine. Mutated only by broker
// acknowledgment and fill events.
type Order struct {
	ID        string      `json:"dealId"`
	Epic      string      `json:"epic"`
	Type      OrderType   `json:"type"`
	Side      Side        `json:"direction"`
	Quantity  float64     `json:"size"`
	Price     float64     `json:"level,omitempty"`
	StopPrice float64     `json:"stopLevel,omitempty"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"createdDate"`
	UpdatedAt time.Time   `json:"updatedDate"`
}

// Position is an open position reported by the broker.
type Position struct {
	ID            string       `json:"dealId"`
	Epic          string       `json:"epic"`
	Side          PositionSide `json:"direction"`
	EntryPrice    float64      `json:"level"`
	CurrentPrice  float64      `json:"currentLevel"`
	Quantity      float64      `json:"size"`
	UnrealizedPnL float64      `json:"upl"`
	RealizedPnL   float64      `json:"rpl"`
	StopLoss      float64      `json:"stopLevel"`
	TakeProfit    float64      `json:"profitLevel"`
	OpenedAt      time.Time    `json:"createdDate"`
}

// Balance is the account balance snapshot.
type Balance struct {
	Total     float64 `json:"balance"`
	Available float64 `json:"available"`
	Deposit   float64 `json:"deposit"`
	PnL       float64 `json:"profitLoss"`
}

// MarketInfo describes a tradable instrument.
type MarketInfo struct {
	Epic         string  `json:"epic"`
	Bid          float64 `json:"bid"`
	Offer        float64 `json:"offer"`
	MinDealSize  float64 `json:"minDealSize"`
	MaxLeverage  float64 `json:"maxLeverage"`
	MarginFactor float64 `json:"marginFactor"`
}

// OrderRequest is the payload for submitting a new order.
type OrderRequest struct {
	Epic       string    `json:"epic"`
	Side       Side      `json:"direction"`
	Type       OrderType `json:"type"`
	Quantity   float64   `json:"size"`
	Price      float64   `json:"level,omitempty"`
	StopLoss   float64   `json:"stopLevel,omitempty"`
	TakeProfit float64   `json:"profitLevel,omitempty"`
	ClientID   string    `json:"clientRef,omitempty"`
}

// OrderConfirmation is the broker's acknowledgment of a submitted order.
type OrderConfirmation struct {
	DealReference string      `json:"dealReference"`
	DealID        string      `json:"dealId"`
	Status        OrderStatus `json:"status"`
	Reason        string      `json:"reason,omitempty"`
}
