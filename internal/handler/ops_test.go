package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinSage/internal/domain/models"
	domrepo "CoinSage/internal/domain/repository"
	"CoinSage/internal/services/registry"
)

type stubStore struct {
	healthErr error
}

func (s *stubStore) GetBars(context.Context, string, time.Time, time.Time, domrepo.Timeframe) ([]models.PriceBar, error) {
	return nil, nil
}

func (s *stubStore) GetLatestNBars(context.Context, string, int, domrepo.Timeframe) ([]models.PriceBar, error) {
	return nil, nil
}

func (s *stubStore) InsertBars(context.Context, []models.PriceBar, domrepo.Timeframe) error {
	return nil
}

func (s *stubStore) Health(context.Context) error { return s.healthErr }
func (s *stubStore) Close() error                 { return nil }

func doRequest(t *testing.T, h *OpsHandler, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := NewOpsHandler(&stubStore{}, nil)
	rec := doRequest(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestReadyzReportsModelCount(t *testing.T) {
	reg, err := registry.New(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(models.ModelRecord{
		ModelID:   "btc_1",
		Symbol:    "BTC",
		CreatedAt: time.Now().UTC(),
	}))

	h := NewOpsHandler(&stubStore{}, reg)
	rec := doRequest(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"models":1`)
}

func TestReadyzUnavailableWhenStoreDown(t *testing.T) {
	h := NewOpsHandler(&stubStore{healthErr: assert.AnError}, nil)
	rec := doRequest(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
