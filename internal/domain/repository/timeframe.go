package repository

// Timeframe represents bar resolution buckets.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF1h Timeframe = "1h"
	TF1d Timeframe = "1d"
)
