package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a price move.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Alert is emitted when a symbol moves at least the detector threshold away
// from its last alerted baseline.
type Alert struct {
	Symbol        string          `json:"symbol"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	ChangePercent float64         `json:"change_percent"`
	Direction     Direction       `json:"direction"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
}
