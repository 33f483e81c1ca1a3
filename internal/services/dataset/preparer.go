package dataset

import (
	"math"
	"strings"
)

// columnAliases maps a canonical column name to the raw names a feed may use
// for it. Resolution is case-insensitive and first-match wins.
var columnAliases = map[string][]string{
	"close":      {"close", "price", "closing_price", "last"},
	"open":       {"open", "opening_price"},
	"high":       {"high", "high_24h"},
	"low":        {"low", "low_24h"},
	"volume":     {"volume", "vol", "total_volume", "volume_24h"},
	"market_cap": {"market_cap", "marketcap", "mcap", "total_market_cap"},
	"rsi":        {"rsi", "rsi_14"},
	"macd":       {"macd"},
	"ma_7":       {"ma_7", "sma_7"},
	"ma_14":      {"ma_14", "sma_14"},
	"ma_30":      {"ma_30", "sma_30"},
}

// featurePreference is the selection order when the caller does not pin an
// explicit feature set. Price action first, then liquidity, then indicators.
var featurePreference = []string{
	"close", "volume", "open", "high", "low",
	"rsi", "macd", "ma_7", "ma_14", "ma_30", "market_cap",
}

type PreparerConfig struct {
	SequenceLength int
	MaxFeatures    int
	MinFeatures    int
	ScalerKind     ScalerKind
}

// Preparer turns raw bar tables into scaled sliding-window training pairs.
// Scalers are fitted fresh on every Prepare call so stale statistics can never
// leak between symbols or runs.
type Preparer struct {
	cfg PreparerConfig
}

func NewPreparer(cfg PreparerConfig) *Preparer {
	if cfg.SequenceLength < 2 {
		cfg.SequenceLength = 60
	}
	if cfg.MaxFeatures < 1 {
		cfg.MaxFeatures = 5
	}
	if cfg.MinFeatures < 1 {
		cfg.MinFeatures = 1
	}
	if cfg.ScalerKind == "" {
		cfg.ScalerKind = ScalerMinMax
	}
	return &Preparer{cfg: cfg}
}

// Prepared is the output of a training preparation pass. X is window-major:
// X[i][t][f] is feature f at step t of window i, and Y[i] is the scaled
// target one step past window i.
type Prepared struct {
	X              [][][]float64
	Y              []float64
	FeatureColumns []string
	FeatureScaler  Scaler
	TargetScaler   Scaler
}

// Prepare sorts, fills, scales, and windows one symbol's table. An explicit
// featureColumns list must resolve fully; a nil list selects features by
// preference from whatever the table carries.
func (p *Preparer) Prepare(t *Table, targetColumn string, featureColumns []string) (*Prepared, error) {
	if t == nil || t.Len() == 0 {
		return nil, newDataError(ErrCodeInsufficientData, "empty input table")
	}
	t.SortByTimestamp()

	target, err := p.resolveColumn(t, targetColumn)
	if err != nil {
		return nil, err
	}
	features, err := p.resolveFeatures(t, featureColumns)
	if err != nil {
		return nil, err
	}

	clean := p.fillAndDrop(t, append([]string{target}, features...))
	minRows := p.cfg.SequenceLength + 1
	if len(clean.rows) < minRows {
		return nil, newDataError(ErrCodeInsufficientData,
			"have %d clean rows, need at least %d for sequence length %d",
			len(clean.rows), minRows, p.cfg.SequenceLength)
	}

	featureScaler := NewScaler(p.cfg.ScalerKind)
	featureRows := make([][]float64, len(clean.rows))
	for i, row := range clean.rows {
		featureRows[i] = row[1:]
	}
	if err := featureScaler.Fit(featureRows); err != nil {
		return nil, err
	}

	targetScaler := NewScaler(p.cfg.ScalerKind)
	targetRows := make([][]float64, len(clean.rows))
	for i, row := range clean.rows {
		targetRows[i] = row[:1]
	}
	if err := targetScaler.Fit(targetRows); err != nil {
		return nil, err
	}

	seq := p.cfg.SequenceLength
	pairs := len(clean.rows) - seq
	x := make([][][]float64, pairs)
	y := make([]float64, pairs)
	for i := 0; i < pairs; i++ {
		window := make([][]float64, seq)
		for s := 0; s < seq; s++ {
			scaled, err := featureScaler.Transform(featureRows[i+s])
			if err != nil {
				return nil, err
			}
			window[s] = scaled
		}
		x[i] = window
		scaledTarget, err := targetScaler.Transform(targetRows[i+seq])
		if err != nil {
			return nil, err
		}
		y[i] = scaledTarget[0]
	}

	return &Prepared{
		X:              x,
		Y:              y,
		FeatureColumns: features,
		FeatureScaler:  featureScaler,
		TargetScaler:   targetScaler,
	}, nil
}

// PrepareInference produces the single most recent scaled window using a
// scaler fitted at training time.
func (p *Preparer) PrepareInference(t *Table, featureColumns []string, featureScaler Scaler) ([][]float64, error) {
	if featureScaler == nil || !featureScaler.IsFitted() {
		return nil, newDataError(ErrCodeScalerNotFitted, "inference requires a fitted feature scaler")
	}
	if t == nil || t.Len() == 0 {
		return nil, newDataError(ErrCodeInsufficientData, "empty input table")
	}
	t.SortByTimestamp()

	resolved := make([]string, 0, len(featureColumns))
	for _, name := range featureColumns {
		col, err := p.resolveColumn(t, name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, col)
	}

	clean := p.fillAndDrop(t, resolved)
	seq := p.cfg.SequenceLength
	if len(clean.rows) < seq {
		return nil, newDataError(ErrCodeInsufficientData,
			"have %d clean rows, need at least %d for one inference window",
			len(clean.rows), seq)
	}

	window := make([][]float64, seq)
	start := len(clean.rows) - seq
	for s := 0; s < seq; s++ {
		scaled, err := featureScaler.Transform(clean.rows[start+s])
		if err != nil {
			return nil, err
		}
		window[s] = scaled
	}
	return window, nil
}

// InverseTarget maps scaled target values back to price space.
func InverseTarget(scaler Scaler, values []float64) ([]float64, error) {
	if scaler == nil || !scaler.IsFitted() {
		return nil, newDataError(ErrCodeScalerNotFitted, "target scaler is not fitted")
	}
	out := make([]float64, len(values))
	for i, v := range values {
		inv, err := scaler.Inverse([]float64{v})
		if err != nil {
			return nil, err
		}
		out[i] = inv[0]
	}
	return out, nil
}

// resolveColumn maps a requested name onto the table's actual column via the
// alias list. The raw name itself always counts as its own alias.
func (p *Preparer) resolveColumn(t *Table, name string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	candidates := columnAliases[lower]
	if len(candidates) == 0 {
		candidates = []string{lower}
	}
	available := make(map[string]string, len(t.Columns()))
	for _, col := range t.Columns() {
		available[strings.ToLower(col)] = col
	}
	for _, cand := range candidates {
		if actual, ok := available[cand]; ok {
			return actual, nil
		}
	}
	return "", newDataError(ErrCodeMissingColumn, "column %q not found (known columns: %s)",
		name, strings.Join(t.Columns(), ", "))
}

func (p *Preparer) resolveFeatures(t *Table, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		resolved := make([]string, 0, len(explicit))
		seen := make(map[string]bool, len(explicit))
		for _, name := range explicit {
			col, err := p.resolveColumn(t, name)
			if err != nil {
				return nil, err
			}
			if !seen[col] {
				seen[col] = true
				resolved = append(resolved, col)
			}
		}
		return resolved, nil
	}

	resolved := make([]string, 0, p.cfg.MaxFeatures)
	seen := make(map[string]bool)
	for _, pref := range featurePreference {
		if len(resolved) >= p.cfg.MaxFeatures {
			break
		}
		col, err := p.resolveColumn(t, pref)
		if err != nil {
			continue
		}
		if !seen[col] {
			seen[col] = true
			resolved = append(resolved, col)
		}
	}
	if len(resolved) == 0 {
		return nil, newDataError(ErrCodeNoFeatures, "no usable feature columns in table")
	}
	if len(resolved) < p.cfg.MinFeatures {
		return nil, newDataError(ErrCodeNoFeatures,
			"only %d feature columns available, need at least %d", len(resolved), p.cfg.MinFeatures)
	}
	return resolved, nil
}

type cleanFrame struct {
	rows [][]float64
}

// fillAndDrop forward-fills interior and trailing gaps, back-fills leading
// gaps, then drops any row still holding a NaN in the requested columns.
func (p *Preparer) fillAndDrop(t *Table, columns []string) cleanFrame {
	filled := make([][]float64, len(columns))
	for ci, name := range columns {
		src, _ := t.Column(name)
		col := make([]float64, len(src))
		copy(col, src)
		forwardFill(col)
		backwardFill(col)
		filled[ci] = col
	}

	rows := make([][]float64, 0, t.Len())
	for r := 0; r < t.Len(); r++ {
		row := make([]float64, len(columns))
		ok := true
		for ci := range columns {
			v := filled[ci][r]
			if math.IsNaN(v) {
				ok = false
				break
			}
			row[ci] = v
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return cleanFrame{rows: rows}
}

func forwardFill(col []float64) {
	last := math.NaN()
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = last
			continue
		}
		last = v
	}
}

func backwardFill(col []float64) {
	next := math.NaN()
	for i := len(col) - 1; i >= 0; i-- {
		if math.IsNaN(col[i]) {
			col[i] = next
			continue
		}
		next = col[i]
	}
}
