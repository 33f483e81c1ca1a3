package usecase

import (
	"context"
	"encoding/json"
	"time"

	"CoinSage/internal/domain/models"
	domrepo "CoinSage/internal/domain/repository"
	pkgkafka "CoinSage/pkg/kafka"
	"CoinSage/pkg/util"
)

// BarIngestHandler consumes price bar messages and writes them to the store.
type BarIngestHandler struct {
	topic     string
	store     domrepo.PriceStore
	metrics   domrepo.Metrics
	timeframe domrepo.Timeframe
}

func NewBarIngestHandler(topic string, store domrepo.PriceStore, metrics domrepo.Metrics, tf domrepo.Timeframe) *BarIngestHandler {
	return &BarIngestHandler{topic: topic, store: store, metrics: metrics, timeframe: tf}
}

func (h *BarIngestHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, o, h, l, c, v?, mc?}
func (h *BarIngestHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol    string   `json:"symbol"`
		T         int64    `json:"t"`
		O         float64  `json:"o"`
		H         float64  `json:"h"`
		L         float64  `json:"l"`
		C         float64  `json:"c"`
		V         *float64 `json:"v"`
		MarketCap *float64 `json:"mc"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	ts := util.NormalizeUnix(m.T)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(ts, 0)).Seconds())

	start := time.Now()
	err := h.store.InsertBars(ctx, []models.PriceBar{{
		Timestamp: time.Unix(ts, 0).UTC(),
		Symbol:    m.Symbol,
		Open:      m.O,
		High:      m.H,
		Low:       m.L,
		Close:     m.C,
		Volume:    m.V,
		MarketCap: m.MarketCap,
	}}, h.timeframe)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordBarsIngested(m.Symbol, 1)
	return nil
}

var _ pkgkafka.MessageHandler = (*BarIngestHandler)(nil)
