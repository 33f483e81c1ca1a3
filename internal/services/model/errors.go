package model

import (
	"fmt"

	"CoinSage/internal/domain/models"
)

const (
	ErrCodeNotTrained  = "ERR_NOT_TRAINED"
	ErrCodeDiverged    = "ERR_DIVERGED"
	ErrCodeBadInput    = "ERR_BAD_INPUT"
	ErrCodeArtifact    = "ERR_ARTIFACT"
	ErrCodeInterrupted = "ERR_INTERRUPTED"
	ErrCodeBadShape    = "ERR_BAD_SHAPE"
)

// TrainingError reports a failed or aborted training run. Metrics carries
// whatever partial measurements were collected before the failure, so callers
// can still log and inspect a diverged run.
type TrainingError struct {
	Code    string
	Message string
	Err     error
	Metrics *models.TrainingMetrics
}

func (e *TrainingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *TrainingError) Unwrap() error { return e.Err }

func newTrainingError(code, format string, a ...interface{}) *TrainingError {
	return &TrainingError{Code: code, Message: fmt.Sprintf(format, a...)}
}

// PredictionError reports a prediction attempt that could not produce a value.
type PredictionError struct {
	Code    string
	Message string
	Err     error
}

func (e *PredictionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PredictionError) Unwrap() error { return e.Err }

func newPredictionError(code, format string, a ...interface{}) *PredictionError {
	return &PredictionError{Code: code, Message: fmt.Sprintf(format, a...)}
}
