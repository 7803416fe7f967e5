package domain

import (
	"context"
	"time"
)

type PricePoint struct {
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Timestamp     time.Time `json:"timestamp"`
}

type PriceHistory interface {
	Append(ctx context.Context, point PricePoint) error
	Latest(ctx context.Context) (PricePoint, bool, error)
	// Since returns points at or after t, oldest first, at most limit of them.
	Since(ctx context.Context, t time.Time, limit int) ([]PricePoint, error)
}
