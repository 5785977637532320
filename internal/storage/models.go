package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/token"
)

// PriceSample is one immutable observation of a token price.
type PriceSample struct {
	ID        int64
	Token     token.Token
	Price     decimal.Decimal
	Timestamp time.Time
}

// Alert is a user defined one-shot target price alert.
type Alert struct {
	ID          uuid.UUID
	Token       token.Token
	TargetPrice decimal.Decimal
	Email       string
	Triggered   bool
	CreatedAt   time.Time
}
