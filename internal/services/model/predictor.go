package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"CoinSage/internal/domain/models"
	"CoinSage/internal/services/dataset"
)

// State tracks the predictor lifecycle. Predictions are only served from
// StateTrained or StateLoaded.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateBuilt         State = "built"
	StateTrained       State = "trained"
	StateLoaded        State = "loaded"
)

const ModelType = "lstm"

// confidence bound half-width in validation residual standard deviations,
// the two-sided 95% normal quantile
const confidenceZ = 1.96

type Config struct {
	SequenceLength int
	HiddenSizes    []int
	Epochs         int
	BatchSize      int
	LearningRate   float64
	Patience       int
	ClipNorm       float64
	Seed           int64
}

func (c *Config) applyDefaults() {
	if c.SequenceLength < 2 {
		c.SequenceLength = 60
	}
	if len(c.HiddenSizes) == 0 {
		c.HiddenSizes = []int{64, 32}
	}
	if c.Epochs < 1 {
		c.Epochs = 50
	}
	if c.BatchSize < 1 {
		c.BatchSize = 32
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.001
	}
	if c.Patience < 1 {
		c.Patience = 5
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
}

// Predictor is a single-symbol price forecaster around a stacked LSTM.
// All state transitions and predictions are mutex-guarded, so one instance
// may be shared between a training worker and prediction callers.
type Predictor struct {
	mu sync.RWMutex

	cfg            Config
	state          State
	net            *lstmNetwork
	featureColumns []string
	featureScaler  dataset.Scaler
	targetScaler   dataset.Scaler
	residualStd    float64
	trainedAt      time.Time
	rng            *rand.Rand
}

func NewPredictor(cfg Config) *Predictor {
	cfg.applyDefaults()
	return &Predictor{
		cfg:   cfg,
		state: StateUninitialized,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (p *Predictor) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Predictor) SequenceLength() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.SequenceLength
}

func (p *Predictor) FeatureColumns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.featureColumns...)
}

func (p *Predictor) FeatureScaler() dataset.Scaler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.featureScaler
}

func (p *Predictor) ResidualStd() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.residualStd
}

// Build initializes fresh network weights for the given feature width.
// Calling Build again discards any trained weights.
func (p *Predictor) Build(numFeatures int) error {
	if numFeatures < 1 {
		return newTrainingError(ErrCodeBadInput, "cannot build network for %d features", numFeatures)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.net = newLSTMNetwork(numFeatures, p.cfg.HiddenSizes, p.rng)
	p.featureColumns = nil
	p.featureScaler = nil
	p.targetScaler = nil
	p.residualStd = 0
	p.state = StateBuilt
	return nil
}

// Train fits the network on prepared windows. The last fifth of the windows
// is held out as a time-causal validation set; the weights from the best
// validation epoch are the ones kept. Training stops early once validation
// loss has not improved for the configured patience, and a run whose loss
// goes non-finite fails with partial metrics attached.
func (p *Predictor) Train(ctx context.Context, prepared *dataset.Prepared) (*models.TrainingMetrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prepared == nil || len(prepared.X) == 0 {
		return nil, newTrainingError(ErrCodeBadInput, "no training windows")
	}
	if len(prepared.X) != len(prepared.Y) {
		return nil, newTrainingError(ErrCodeBadShape, "got %d windows but %d targets", len(prepared.X), len(prepared.Y))
	}
	if len(prepared.X[0]) == 0 || len(prepared.X[0][0]) == 0 {
		return nil, newTrainingError(ErrCodeBadInput, "training windows are empty")
	}
	if p.state == StateUninitialized || p.net == nil {
		// First train call builds the network from the window width.
		p.net = newLSTMNetwork(len(prepared.X[0][0]), p.cfg.HiddenSizes, p.rng)
		p.state = StateBuilt
	}
	if width := len(prepared.X[0][0]); width != p.net.InputSize {
		return nil, newTrainingError(ErrCodeBadShape, "windows have %d features, network built for %d", width, p.net.InputSize)
	}

	start := time.Now()
	valCount := len(prepared.X) / 5
	trainX := prepared.X[:len(prepared.X)-valCount]
	trainY := prepared.Y[:len(prepared.Y)-valCount]
	valX := prepared.X[len(prepared.X)-valCount:]
	valY := prepared.Y[len(prepared.Y)-valCount:]

	var (
		best        = p.net.clone()
		bestLoss    = math.Inf(1)
		bestEpoch   = 0
		sinceBest   = 0
		trainLoss   = math.NaN()
		valLoss     = math.NaN()
		epochsTrain = 0
	)

	indices := make([]int, len(trainX))
	for i := range indices {
		indices[i] = i
	}

	for epoch := 1; epoch <= p.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, &TrainingError{
				Code:    ErrCodeInterrupted,
				Message: "training interrupted",
				Err:     err,
				Metrics: p.partialMetrics(trainLoss, valLoss, bestEpoch, epochsTrain, start),
			}
		}

		p.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		var sumSq float64
		for lo := 0; lo < len(indices); lo += p.cfg.BatchSize {
			hi := lo + p.cfg.BatchSize
			if hi > len(indices) {
				hi = len(indices)
			}
			grads := newNetGrads(p.net)
			for _, idx := range indices[lo:hi] {
				yhat, cache := p.net.forward(trainX[idx])
				diff := yhat - trainY[idx]
				sumSq += diff * diff
				p.net.backward(cache, 2*diff, grads)
			}
			p.net.clipAndApply(grads, p.cfg.LearningRate, p.cfg.ClipNorm, hi-lo)
		}
		trainLoss = sumSq / float64(len(indices))
		epochsTrain = epoch

		if math.IsNaN(trainLoss) || math.IsInf(trainLoss, 0) {
			return nil, &TrainingError{
				Code:    ErrCodeDiverged,
				Message: fmt.Sprintf("training diverged at epoch %d", epoch),
				Metrics: p.partialMetrics(trainLoss, valLoss, bestEpoch, epochsTrain, start),
			}
		}

		monitored := trainLoss
		if valCount > 0 {
			valLoss = p.meanSquaredError(valX, valY)
			monitored = valLoss
			if math.IsNaN(valLoss) || math.IsInf(valLoss, 0) {
				return nil, &TrainingError{
					Code:    ErrCodeDiverged,
					Message: fmt.Sprintf("validation loss diverged at epoch %d", epoch),
					Metrics: p.partialMetrics(trainLoss, valLoss, bestEpoch, epochsTrain, start),
				}
			}
		}

		if monitored < bestLoss {
			bestLoss = monitored
			bestEpoch = epoch
			best = p.net.clone()
			sinceBest = 0
		} else {
			sinceBest++
			if sinceBest >= p.cfg.Patience {
				break
			}
		}
	}

	p.net = best
	p.cfg.SequenceLength = len(prepared.X[0])
	p.featureColumns = append([]string(nil), prepared.FeatureColumns...)
	p.featureScaler = prepared.FeatureScaler
	p.targetScaler = prepared.TargetScaler
	p.residualStd = p.priceResidualStd(valX, valY)
	p.trainedAt = time.Now()
	p.state = StateTrained

	metrics := &models.TrainingMetrics{
		FinalLoss:       trainLoss,
		BestEpoch:       bestEpoch,
		EpochsTrained:   epochsTrain,
		DurationSeconds: time.Since(start).Seconds(),
		ResidualStd:     p.residualStd,
	}
	if valCount > 0 {
		valLoss = p.meanSquaredError(valX, valY)
		metrics.FinalValLoss = &valLoss
	}
	return metrics, nil
}

// Prediction is one forecast in price space. Lower and Upper are nil when no
// confidence interval could be estimated.
type Prediction struct {
	Price float64
	Lower *float64
	Upper *float64
}

// Predict runs one already-scaled window through the network and maps the
// result back to price space.
func (p *Predictor) Predict(ctx context.Context, window [][]float64) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PredictionError{Code: ErrCodeInterrupted, Message: "prediction interrupted", Err: err}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.state != StateTrained && p.state != StateLoaded {
		return nil, newPredictionError(ErrCodeNotTrained, "predictor state is %s, need trained or loaded", p.state)
	}
	if len(window) != p.cfg.SequenceLength {
		return nil, newPredictionError(ErrCodeBadShape, "window has %d steps, need %d", len(window), p.cfg.SequenceLength)
	}
	for _, step := range window {
		if len(step) != p.net.InputSize {
			return nil, newPredictionError(ErrCodeBadShape, "window step has %d features, need %d", len(step), p.net.InputSize)
		}
	}

	scaled := p.net.Predict(window)
	prices, err := dataset.InverseTarget(p.targetScaler, []float64{scaled})
	if err != nil {
		return nil, &PredictionError{Code: ErrCodeBadInput, Message: "inverse transform failed", Err: err}
	}
	out := &Prediction{Price: prices[0]}
	if p.residualStd > 0 && !math.IsNaN(p.residualStd) {
		lower := out.Price - confidenceZ*p.residualStd
		upper := out.Price + confidenceZ*p.residualStd
		out.Lower = &lower
		out.Upper = &upper
	}
	return out, nil
}

type artifact struct {
	ModelType      string          `json:"model_type"`
	Config         Config          `json:"config"`
	FeatureColumns []string        `json:"feature_columns"`
	Network        *lstmNetwork    `json:"network"`
	FeatureScaler  json.RawMessage `json:"feature_scaler"`
	TargetScaler   json.RawMessage `json:"target_scaler"`
	ResidualStd    float64         `json:"residual_std"`
	TrainedAt      time.Time       `json:"trained_at"`
}

// Save writes the full trained state as a JSON artifact, atomically via a
// temp file and rename.
func (p *Predictor) Save(path string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.state != StateTrained && p.state != StateLoaded {
		return newTrainingError(ErrCodeNotTrained, "cannot save predictor in state %s", p.state)
	}

	featureRaw, err := dataset.EncodeScaler(p.featureScaler)
	if err != nil {
		return &TrainingError{Code: ErrCodeArtifact, Message: "encode feature scaler", Err: err}
	}
	targetRaw, err := dataset.EncodeScaler(p.targetScaler)
	if err != nil {
		return &TrainingError{Code: ErrCodeArtifact, Message: "encode target scaler", Err: err}
	}
	data, err := json.Marshal(artifact{
		ModelType:      ModelType,
		Config:         p.cfg,
		FeatureColumns: p.featureColumns,
		Network:        p.net,
		FeatureScaler:  featureRaw,
		TargetScaler:   targetRaw,
		ResidualStd:    p.residualStd,
		TrainedAt:      p.trainedAt,
	})
	if err != nil {
		return &TrainingError{Code: ErrCodeArtifact, Message: "marshal artifact", Err: err}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &TrainingError{Code: ErrCodeArtifact, Message: "create artifact dir", Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &TrainingError{Code: ErrCodeArtifact, Message: "create temp artifact", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &TrainingError{Code: ErrCodeArtifact, Message: "write artifact", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &TrainingError{Code: ErrCodeArtifact, Message: "close temp artifact", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &TrainingError{Code: ErrCodeArtifact, Message: "rename artifact", Err: err}
	}
	return nil
}

// Load restores a predictor from a Save artifact. The loaded instance serves
// predictions immediately; it must be rebuilt before it can be retrained.
func (p *Predictor) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &PredictionError{Code: ErrCodeArtifact, Message: "read artifact", Err: err}
	}
	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return &PredictionError{Code: ErrCodeArtifact, Message: "unmarshal artifact", Err: err}
	}
	if art.ModelType != ModelType {
		return newPredictionError(ErrCodeArtifact, "artifact model type %q is not %q", art.ModelType, ModelType)
	}
	if art.Network == nil || len(art.Network.Cells) == 0 {
		return newPredictionError(ErrCodeArtifact, "artifact has no network weights")
	}
	featureScaler, err := dataset.DecodeScaler(art.FeatureScaler)
	if err != nil {
		return &PredictionError{Code: ErrCodeArtifact, Message: "decode feature scaler", Err: err}
	}
	targetScaler, err := dataset.DecodeScaler(art.TargetScaler)
	if err != nil {
		return &PredictionError{Code: ErrCodeArtifact, Message: "decode target scaler", Err: err}
	}
	if !featureScaler.IsFitted() || !targetScaler.IsFitted() {
		return newPredictionError(ErrCodeArtifact, "artifact holds weights without fitted scalers")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = art.Config
	p.cfg.applyDefaults()
	p.net = art.Network
	p.featureColumns = art.FeatureColumns
	p.featureScaler = featureScaler
	p.targetScaler = targetScaler
	p.residualStd = art.ResidualStd
	p.trainedAt = art.TrainedAt
	p.state = StateLoaded
	return nil
}

func (p *Predictor) meanSquaredError(x [][][]float64, y []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	var sum float64
	for i := range x {
		diff := p.net.Predict(x[i]) - y[i]
		sum += diff * diff
	}
	return sum / float64(len(x))
}

// priceResidualStd measures validation residual spread in price space, which
// sizes the confidence band around predictions.
func (p *Predictor) priceResidualStd(valX [][][]float64, valY []float64) float64 {
	if len(valX) < 2 || p.targetScaler == nil {
		return 0
	}
	residuals := make([]float64, 0, len(valX))
	for i := range valX {
		pair, err := dataset.InverseTarget(p.targetScaler, []float64{p.net.Predict(valX[i]), valY[i]})
		if err != nil {
			return 0
		}
		residuals = append(residuals, pair[1]-pair[0])
	}
	var mean float64
	for _, r := range residuals {
		mean += r
	}
	mean /= float64(len(residuals))
	var sq float64
	for _, r := range residuals {
		sq += (r - mean) * (r - mean)
	}
	return math.Sqrt(sq / float64(len(residuals)))
}

func (p *Predictor) partialMetrics(trainLoss, valLoss float64, bestEpoch, epochs int, start time.Time) *models.TrainingMetrics {
	m := &models.TrainingMetrics{
		FinalLoss:       trainLoss,
		BestEpoch:       bestEpoch,
		EpochsTrained:   epochs,
		DurationSeconds: time.Since(start).Seconds(),
	}
	if !math.IsNaN(valLoss) && !math.IsInf(valLoss, 0) {
		m.FinalValLoss = &valLoss
	}
	return m
}
