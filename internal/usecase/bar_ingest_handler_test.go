package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinSage/internal/domain/models"
	domrepo "CoinSage/internal/domain/repository"
)

func TestBarIngestHandlerStoresBar(t *testing.T) {
	store := &fakeStore{bars: map[string][]models.PriceBar{}}
	h := NewBarIngestHandler("price-bars", store, newFakeMetrics(), domrepo.TF1m)

	msg := []byte(`{"symbol":"BTC","t":1756300800000,"o":100,"h":102,"l":99,"c":101,"v":1234.5}`)
	require.NoError(t, h.Handle(context.Background(), msg))

	bars := store.bars["BTC"]
	require.Len(t, bars, 1)
	assert.Equal(t, 101.0, bars[0].Close)
	// Millisecond timestamps are folded down to seconds.
	assert.Equal(t, time.Unix(1756300800, 0).UTC(), bars[0].Timestamp)
	require.NotNil(t, bars[0].Volume)
	assert.Equal(t, 1234.5, *bars[0].Volume)
	assert.Nil(t, bars[0].MarketCap)
}

func TestBarIngestHandlerRejectsBadJSON(t *testing.T) {
	store := &fakeStore{bars: map[string][]models.PriceBar{}}
	metrics := newFakeMetrics()
	h := NewBarIngestHandler("price-bars", store, metrics, domrepo.TF1m)

	err := h.Handle(context.Background(), []byte("{nope"))
	require.Error(t, err)
	assert.Equal(t, 1, metrics.errors["consumer_unmarshal"])
	assert.Empty(t, store.bars)
}
