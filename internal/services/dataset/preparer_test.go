package dataset

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinSage/internal/domain/models"
)

func makeTable(n int) *Table {
	timestamps := make([]time.Time, n)
	closeCol := make([]float64, n)
	volume := make([]float64, n)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		timestamps[i] = base.Add(time.Duration(i) * time.Minute)
		closeCol[i] = 100 + float64(i)
		volume[i] = 1000 + float64(i)*10
	}
	t := NewTable(timestamps)
	t.AddColumn("close", closeCol)
	t.AddColumn("volume", volume)
	return t
}

func TestPrepareWindowCount(t *testing.T) {
	p := NewPreparer(PreparerConfig{SequenceLength: 10, MaxFeatures: 5, MinFeatures: 1})
	table := makeTable(50)

	prepared, err := p.Prepare(table, "close", nil)
	require.NoError(t, err)

	assert.Len(t, prepared.X, 40)
	assert.Len(t, prepared.Y, 40)
	assert.Len(t, prepared.X[0], 10)
	assert.Equal(t, []string{"close", "volume"}, prepared.FeatureColumns)
}

func TestPrepareCloseOnlyTable(t *testing.T) {
	timestamps := make([]time.Time, 30)
	closeCol := make([]float64, 30)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := range timestamps {
		timestamps[i] = base.Add(time.Duration(i) * time.Minute)
		closeCol[i] = 100 + float64(i)
	}
	table := NewTable(timestamps)
	table.AddColumn("close", closeCol)

	p := NewPreparer(PreparerConfig{SequenceLength: 5, MaxFeatures: 5, MinFeatures: 1})
	prepared, err := p.Prepare(table, "close", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"close"}, prepared.FeatureColumns)

	strict := NewPreparer(PreparerConfig{SequenceLength: 5, MaxFeatures: 5, MinFeatures: 2})
	_, err = strict.Prepare(table, "close", nil)
	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, ErrCodeNoFeatures, dataErr.Code)
}

func TestPrepareScalesIntoUnitRange(t *testing.T) {
	p := NewPreparer(PreparerConfig{SequenceLength: 5, MaxFeatures: 5, MinFeatures: 1})
	table := makeTable(30)

	prepared, err := p.Prepare(table, "close", nil)
	require.NoError(t, err)

	for _, window := range prepared.X {
		for _, step := range window {
			for _, v := range step {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		}
	}
	for _, y := range prepared.Y {
		assert.GreaterOrEqual(t, y, 0.0)
		assert.LessOrEqual(t, y, 1.0)
	}
}

func TestPrepareTargetAlignment(t *testing.T) {
	p := NewPreparer(PreparerConfig{SequenceLength: 3, MaxFeatures: 1, MinFeatures: 1})
	table := makeTable(10)

	prepared, err := p.Prepare(table, "close", []string{"close"})
	require.NoError(t, err)

	// Target for the first window is the close right after it, row index 3.
	inv, err := InverseTarget(prepared.TargetScaler, []float64{prepared.Y[0]})
	require.NoError(t, err)
	assert.InDelta(t, 103.0, inv[0], 1e-9)
}

func TestPrepareSortsUnorderedRows(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	timestamps := []time.Time{
		base.Add(4 * time.Minute), base.Add(1 * time.Minute), base,
		base.Add(3 * time.Minute), base.Add(2 * time.Minute),
		base.Add(5 * time.Minute), base.Add(6 * time.Minute), base.Add(7 * time.Minute),
	}
	closeCol := []float64{104, 101, 100, 103, 102, 105, 106, 107}
	table := NewTable(timestamps)
	table.AddColumn("close", closeCol)

	p := NewPreparer(PreparerConfig{SequenceLength: 5, MaxFeatures: 1, MinFeatures: 1})
	prepared, err := p.Prepare(table, "close", []string{"close"})
	require.NoError(t, err)

	inv, err := InverseTarget(prepared.TargetScaler, prepared.Y)
	require.NoError(t, err)
	assert.InDelta(t, 105.0, inv[0], 1e-9)
}

func TestPrepareFillsGaps(t *testing.T) {
	table := makeTable(20)
	closeCol, _ := table.Column("close")
	closeCol[0] = math.NaN()  // leading gap, back-filled
	closeCol[7] = math.NaN()  // interior gap, forward-filled
	closeCol[19] = math.NaN() // trailing gap, forward-filled

	p := NewPreparer(PreparerConfig{SequenceLength: 5, MaxFeatures: 1, MinFeatures: 1})
	prepared, err := p.Prepare(table, "close", []string{"close"})
	require.NoError(t, err)

	// No rows dropped, so the window count is unchanged.
	assert.Len(t, prepared.X, 15)
}

func TestPrepareInsufficientRows(t *testing.T) {
	p := NewPreparer(PreparerConfig{SequenceLength: 60, MaxFeatures: 5, MinFeatures: 1})
	table := makeTable(30)

	_, err := p.Prepare(table, "close", nil)
	require.Error(t, err)

	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, ErrCodeInsufficientData, dataErr.Code)
}

func TestPrepareMissingTarget(t *testing.T) {
	p := NewPreparer(PreparerConfig{SequenceLength: 5, MaxFeatures: 5, MinFeatures: 1})
	table := makeTable(30)

	_, err := p.Prepare(table, "not_a_column", nil)

	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, ErrCodeMissingColumn, dataErr.Code)
}

func TestPrepareResolvesAliases(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	n := 20
	timestamps := make([]time.Time, n)
	price := make([]float64, n)
	vol := make([]float64, n)
	for i := 0; i < n; i++ {
		timestamps[i] = base.Add(time.Duration(i) * time.Hour)
		price[i] = float64(i)
		vol[i] = float64(i * 2)
	}
	table := NewTable(timestamps)
	table.AddColumn("price", price)
	table.AddColumn("total_volume", vol)

	p := NewPreparer(PreparerConfig{SequenceLength: 5, MaxFeatures: 5, MinFeatures: 1})
	prepared, err := p.Prepare(table, "close", []string{"close", "volume"})
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "total_volume"}, prepared.FeatureColumns)
}

func TestPrepareInferenceWindow(t *testing.T) {
	p := NewPreparer(PreparerConfig{SequenceLength: 8, MaxFeatures: 5, MinFeatures: 1})
	train := makeTable(40)

	prepared, err := p.Prepare(train, "close", nil)
	require.NoError(t, err)

	infer := makeTable(12)
	window, err := p.PrepareInference(infer, prepared.FeatureColumns, prepared.FeatureScaler)
	require.NoError(t, err)
	assert.Len(t, window, 8)
	assert.Len(t, window[0], len(prepared.FeatureColumns))
}

func TestPrepareInferenceRejectsUnfittedScaler(t *testing.T) {
	p := NewPreparer(PreparerConfig{SequenceLength: 8, MaxFeatures: 5, MinFeatures: 1})
	table := makeTable(12)

	_, err := p.PrepareInference(table, []string{"close"}, &MinMaxScaler{})

	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, ErrCodeScalerNotFitted, dataErr.Code)
}

func TestTableFromBarsOptionalColumns(t *testing.T) {
	vol := 123.0
	bars := []models.PriceBar{
		{Timestamp: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), Symbol: "BTC", Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Timestamp: time.Date(2026, 8, 1, 0, 1, 0, 0, time.UTC), Symbol: "BTC", Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: &vol},
	}
	table := TableFromBars(bars)

	assert.Equal(t, []string{"open", "high", "low", "close", "volume"}, table.Columns())
	volume, ok := table.Column("volume")
	require.True(t, ok)
	assert.True(t, math.IsNaN(volume[0]))
	assert.Equal(t, 123.0, volume[1])
}
