package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"CoinSage/pkg/queue"
)

const TrainJobType = "train_model"

type trainPayload struct {
	Symbol string `json:"symbol"`
}

// TrainJob is the queue binding for the training pipeline. Payloads carry a
// single symbol; retries are handled by the queue itself.
type TrainJob struct {
	trainer *TrainingService
}

func NewTrainJob(trainer *TrainingService) *TrainJob {
	return &TrainJob{trainer: trainer}
}

func (j *TrainJob) Name() string { return "train_model_job" }
func (j *TrainJob) Type() string { return TrainJobType }

func (j *TrainJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[trainPayload](payload)
	if err != nil {
		return err
	}
	if p.Symbol == "" {
		return fmt.Errorf("train job payload missing symbol")
	}
	_, err = j.trainer.TrainSymbol(ctx, p.Symbol)
	return err
}

var _ queue.Job = (*TrainJob)(nil)
