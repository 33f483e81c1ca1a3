package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinMaxRoundTrip(t *testing.T) {
	s := &MinMaxScaler{}
	rows := [][]float64{{10, 100}, {20, 200}, {30, 300}}
	require.NoError(t, s.Fit(rows))

	scaled, err := s.Transform([]float64{20, 200})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, scaled[0], 1e-9)
	assert.InDelta(t, 0.5, scaled[1], 1e-9)

	back, err := s.Inverse(scaled)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, back[0], 1e-9)
	assert.InDelta(t, 200.0, back[1], 1e-9)
}

func TestMinMaxConstantColumn(t *testing.T) {
	s := &MinMaxScaler{}
	require.NoError(t, s.Fit([][]float64{{5}, {5}, {5}}))

	scaled, err := s.Transform([]float64{5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, scaled[0])
}

func TestRobustCentersOnMedian(t *testing.T) {
	s := &RobustScaler{}
	rows := [][]float64{{1}, {2}, {3}, {4}, {100}}
	require.NoError(t, s.Fit(rows))

	scaled, err := s.Transform([]float64{3})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, scaled[0], 1e-9)

	back, err := s.Inverse(scaled)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, back[0], 1e-9)
}

func TestTransformBeforeFitFails(t *testing.T) {
	for _, s := range []Scaler{&MinMaxScaler{}, &RobustScaler{}} {
		_, err := s.Transform([]float64{1})
		var dataErr *DataError
		require.ErrorAs(t, err, &dataErr)
		assert.Equal(t, ErrCodeScalerNotFitted, dataErr.Code)
	}
}

func TestScalerEncodeDecode(t *testing.T) {
	s := NewScaler(ScalerRobust)
	require.NoError(t, s.Fit([][]float64{{1, 10}, {2, 20}, {3, 30}}))

	raw, err := EncodeScaler(s)
	require.NoError(t, err)

	decoded, err := DecodeScaler(raw)
	require.NoError(t, err)
	assert.Equal(t, ScalerRobust, decoded.Kind())
	assert.True(t, decoded.IsFitted())

	want, err := s.Transform([]float64{2, 20})
	require.NoError(t, err)
	got, err := decoded.Transform([]float64{2, 20})
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)
}
