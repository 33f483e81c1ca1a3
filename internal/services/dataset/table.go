package dataset

import (
	"math"
	"sort"
	"time"

	"CoinSage/internal/domain/models"
)

// Table is a column-oriented frame of aligned time series. Missing values are
// represented as NaN so fill passes can run in place over plain slices.
type Table struct {
	Timestamps []time.Time
	columns    map[string][]float64
	order      []string
}

func NewTable(timestamps []time.Time) *Table {
	return &Table{
		Timestamps: timestamps,
		columns:    make(map[string][]float64),
	}
}

// AddColumn registers a named series. The slice length must match the
// timestamp axis; mismatches are silently skipped so partial feeds cannot
// corrupt alignment.
func (t *Table) AddColumn(name string, values []float64) {
	if len(values) != len(t.Timestamps) {
		return
	}
	if _, ok := t.columns[name]; !ok {
		t.order = append(t.order, name)
	}
	t.columns[name] = values
}

func (t *Table) Column(name string) ([]float64, bool) {
	col, ok := t.columns[name]
	return col, ok
}

func (t *Table) Columns() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *Table) Len() int {
	return len(t.Timestamps)
}

// SortByTimestamp orders all rows ascending in time. Stable so equal
// timestamps keep their arrival order.
func (t *Table) SortByTimestamp() {
	idx := make([]int, t.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return t.Timestamps[idx[a]].Before(t.Timestamps[idx[b]])
	})
	t.Timestamps = reorderTimes(t.Timestamps, idx)
	for name, col := range t.columns {
		t.columns[name] = reorderFloats(col, idx)
	}
}

func reorderTimes(in []time.Time, idx []int) []time.Time {
	out := make([]time.Time, len(in))
	for i, j := range idx {
		out[i] = in[j]
	}
	return out
}

func reorderFloats(in []float64, idx []int) []float64 {
	out := make([]float64, len(in))
	for i, j := range idx {
		out[i] = in[j]
	}
	return out
}

// TableFromBars flattens OHLCV bars into a Table. Optional fields (volume,
// market cap) become columns only when at least one bar carries them; absent
// readings within such a column are NaN.
func TableFromBars(bars []models.PriceBar) *Table {
	n := len(bars)
	timestamps := make([]time.Time, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closeCol := make([]float64, n)
	volume := make([]float64, n)
	marketCap := make([]float64, n)
	hasVolume, hasMarketCap := false, false

	for i, bar := range bars {
		timestamps[i] = bar.Timestamp
		open[i] = bar.Open
		high[i] = bar.High
		low[i] = bar.Low
		closeCol[i] = bar.Close
		volume[i] = math.NaN()
		marketCap[i] = math.NaN()
		if bar.Volume != nil {
			volume[i] = *bar.Volume
			hasVolume = true
		}
		if bar.MarketCap != nil {
			marketCap[i] = *bar.MarketCap
			hasMarketCap = true
		}
	}

	t := NewTable(timestamps)
	t.AddColumn("open", open)
	t.AddColumn("high", high)
	t.AddColumn("low", low)
	t.AddColumn("close", closeCol)
	if hasVolume {
		t.AddColumn("volume", volume)
	}
	if hasMarketCap {
		t.AddColumn("market_cap", marketCap)
	}
	return t
}
