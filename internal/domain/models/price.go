package models

import "time"

// PriceBar represents one OHLCV record for a symbol and timeframe.
// Volume and MarketCap are nullable: some ingestion sources omit them.
type PriceBar struct {
	Timestamp time.Time
	Symbol    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    *float64
	MarketCap *float64
}
