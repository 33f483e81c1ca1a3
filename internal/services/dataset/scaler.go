package dataset

import (
	"encoding/json"
	"math"
	"sort"
)

// ScalerKind identifies a concrete scaler implementation for serialization.
type ScalerKind string

const (
	ScalerMinMax ScalerKind = "minmax"
	ScalerRobust ScalerKind = "robust"
)

// Scaler maps feature rows into a normalized space and back. Implementations
// are column-wise: Fit learns one set of statistics per column, Transform and
// Inverse apply the same column order.
type Scaler interface {
	Fit(rows [][]float64) error
	Transform(row []float64) ([]float64, error)
	Inverse(row []float64) ([]float64, error)
	IsFitted() bool
	Kind() ScalerKind
}

// NewScaler returns a fresh unfitted scaler of the given kind. Unknown kinds
// fall back to min-max.
func NewScaler(kind ScalerKind) Scaler {
	if kind == ScalerRobust {
		return &RobustScaler{}
	}
	return &MinMaxScaler{}
}

// MinMaxScaler rescales each column into [0, 1] using the fitted minimum and
// maximum. Constant columns transform to 0.
type MinMaxScaler struct {
	Min    []float64 `json:"min"`
	Max    []float64 `json:"max"`
	Fitted bool      `json:"fitted"`
}

func (s *MinMaxScaler) Kind() ScalerKind { return ScalerMinMax }
func (s *MinMaxScaler) IsFitted() bool   { return s.Fitted }

func (s *MinMaxScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return newDataError(ErrCodeInsufficientData, "cannot fit scaler on empty data")
	}
	cols := len(rows[0])
	s.Min = make([]float64, cols)
	s.Max = make([]float64, cols)
	for c := 0; c < cols; c++ {
		s.Min[c] = math.Inf(1)
		s.Max[c] = math.Inf(-1)
	}
	for _, row := range rows {
		if len(row) != cols {
			return newDataError(ErrCodeShape, "ragged row: got %d columns, want %d", len(row), cols)
		}
		for c, v := range row {
			if v < s.Min[c] {
				s.Min[c] = v
			}
			if v > s.Max[c] {
				s.Max[c] = v
			}
		}
	}
	s.Fitted = true
	return nil
}

func (s *MinMaxScaler) Transform(row []float64) ([]float64, error) {
	if !s.Fitted {
		return nil, newDataError(ErrCodeScalerNotFitted, "min-max scaler is not fitted")
	}
	if len(row) != len(s.Min) {
		return nil, newDataError(ErrCodeShape, "transform row has %d columns, scaler fitted on %d", len(row), len(s.Min))
	}
	out := make([]float64, len(row))
	for c, v := range row {
		span := s.Max[c] - s.Min[c]
		if span == 0 {
			out[c] = 0
			continue
		}
		out[c] = (v - s.Min[c]) / span
	}
	return out, nil
}

func (s *MinMaxScaler) Inverse(row []float64) ([]float64, error) {
	if !s.Fitted {
		return nil, newDataError(ErrCodeScalerNotFitted, "min-max scaler is not fitted")
	}
	if len(row) != len(s.Min) {
		return nil, newDataError(ErrCodeShape, "inverse row has %d columns, scaler fitted on %d", len(row), len(s.Min))
	}
	out := make([]float64, len(row))
	for c, v := range row {
		out[c] = v*(s.Max[c]-s.Min[c]) + s.Min[c]
	}
	return out, nil
}

// RobustScaler centers each column on its median and scales by the
// interquartile range, which keeps spikes from dominating the fit. Columns
// with a zero IQR transform to 0.
type RobustScaler struct {
	Median []float64 `json:"median"`
	IQR    []float64 `json:"iqr"`
	Fitted bool      `json:"fitted"`
}

func (s *RobustScaler) Kind() ScalerKind { return ScalerRobust }
func (s *RobustScaler) IsFitted() bool   { return s.Fitted }

func (s *RobustScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return newDataError(ErrCodeInsufficientData, "cannot fit scaler on empty data")
	}
	cols := len(rows[0])
	s.Median = make([]float64, cols)
	s.IQR = make([]float64, cols)
	col := make([]float64, len(rows))
	for c := 0; c < cols; c++ {
		for r, row := range rows {
			if len(row) != cols {
				return newDataError(ErrCodeShape, "ragged row: got %d columns, want %d", len(row), cols)
			}
			col[r] = row[c]
		}
		sorted := make([]float64, len(col))
		copy(sorted, col)
		sort.Float64s(sorted)
		s.Median[c] = quantile(sorted, 0.5)
		s.IQR[c] = quantile(sorted, 0.75) - quantile(sorted, 0.25)
	}
	s.Fitted = true
	return nil
}

func (s *RobustScaler) Transform(row []float64) ([]float64, error) {
	if !s.Fitted {
		return nil, newDataError(ErrCodeScalerNotFitted, "robust scaler is not fitted")
	}
	if len(row) != len(s.Median) {
		return nil, newDataError(ErrCodeShape, "transform row has %d columns, scaler fitted on %d", len(row), len(s.Median))
	}
	out := make([]float64, len(row))
	for c, v := range row {
		if s.IQR[c] == 0 {
			out[c] = 0
			continue
		}
		out[c] = (v - s.Median[c]) / s.IQR[c]
	}
	return out, nil
}

func (s *RobustScaler) Inverse(row []float64) ([]float64, error) {
	if !s.Fitted {
		return nil, newDataError(ErrCodeScalerNotFitted, "robust scaler is not fitted")
	}
	if len(row) != len(s.Median) {
		return nil, newDataError(ErrCodeShape, "inverse row has %d columns, scaler fitted on %d", len(row), len(s.Median))
	}
	out := make([]float64, len(row))
	for c, v := range row {
		out[c] = v*s.IQR[c] + s.Median[c]
	}
	return out, nil
}

// quantile interpolates linearly on an already sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

type scalerEnvelope struct {
	Kind   ScalerKind      `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// EncodeScaler serializes a fitted scaler together with its kind so that
// DecodeScaler can reconstruct the right implementation.
func EncodeScaler(s Scaler) (json.RawMessage, error) {
	params, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(scalerEnvelope{Kind: s.Kind(), Params: params})
}

// DecodeScaler is the inverse of EncodeScaler.
func DecodeScaler(raw json.RawMessage) (Scaler, error) {
	var env scalerEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	s := NewScaler(env.Kind)
	if err := json.Unmarshal(env.Params, s); err != nil {
		return nil, err
	}
	return s, nil
}
