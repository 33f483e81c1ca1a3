package models

import "time"

// TrainingMetrics summarizes a completed (or aborted) training run.
type TrainingMetrics struct {
	FinalLoss       float64  `json:"final_loss"`
	FinalValLoss    *float64 `json:"final_val_loss,omitempty"`
	BestEpoch       int      `json:"best_epoch"`
	EpochsTrained   int      `json:"epochs_trained"`
	DurationSeconds float64  `json:"training_duration_seconds"`
	ResidualStd     float64  `json:"residual_std"`
	ModelPath       string   `json:"model_path,omitempty"`
}

// Map flattens the metrics for registry storage. The validation loss is
// absent when the run had no validation split, never a placeholder.
func (m TrainingMetrics) Map() map[string]float64 {
	out := map[string]float64{
		"final_loss":                m.FinalLoss,
		"best_epoch":                float64(m.BestEpoch),
		"epochs_trained":            float64(m.EpochsTrained),
		"training_duration_seconds": m.DurationSeconds,
		"residual_std":              m.ResidualStd,
	}
	if m.FinalValLoss != nil {
		out["final_val_loss"] = *m.FinalValLoss
	}
	return out
}

// Forecast is a served next-bar price prediction. Lower/Upper bound the
// confidence band and are nil when the model carries no residual estimate.
type Forecast struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	ModelID   string    `json:"model_id"`
	Price     float64   `json:"price"`
	Lower     *float64  `json:"lower,omitempty"`
	Upper     *float64  `json:"upper,omitempty"`
}

// ModelRecord is an immutable registry catalog entry.
type ModelRecord struct {
	ModelID   string             `json:"model_id"`
	Symbol    string             `json:"crypto_symbol"`
	ModelType string             `json:"model_type"`
	ModelPath string             `json:"model_path"`
	Metrics   map[string]float64 `json:"performance_metrics,omitempty"`
	Metadata  map[string]string  `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}
