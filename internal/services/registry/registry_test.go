package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinSage/internal/domain/models"
)

func record(id, symbol string) models.ModelRecord {
	return models.ModelRecord{
		ModelID:   id,
		Symbol:    symbol,
		ModelType: "lstm",
		ModelPath: "/models/" + id + ".json",
		Metrics:   map[string]float64{"final_val_loss": 0.01},
		CreatedAt: time.Now().UTC(),
	}
}

func TestRegisterAndGetActive(t *testing.T) {
	r, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	rec := record("btc_1", "BTC")
	require.NoError(t, r.Register(rec))
	assert.Nil(t, r.GetActive("BTC"))

	require.NoError(t, r.SetActive("BTC", "btc_1"))
	active := r.GetActive("BTC")
	require.NotNil(t, active)
	assert.Equal(t, "btc_1", active.ModelID)
}

func TestDuplicateIDLeavesCatalogUnchanged(t *testing.T) {
	r, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	first := record("btc_1", "BTC")
	first.Metrics["final_val_loss"] = 0.5
	require.NoError(t, r.Register(first))

	dup := record("btc_1", "ETH")
	err = r.Register(dup)
	var regErr *Error
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, ErrCodeDuplicateID, regErr.Code)

	got, err := r.Get("btc_1")
	require.NoError(t, err)
	assert.Equal(t, "BTC", got.Symbol)
	assert.Equal(t, 0.5, got.Metrics["final_val_loss"])
	assert.Len(t, r.List(), 1)
}

func TestSetActiveValidation(t *testing.T) {
	r, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(record("btc_1", "BTC")))

	var regErr *Error
	require.ErrorAs(t, r.SetActive("BTC", "missing"), &regErr)
	assert.Equal(t, ErrCodeUnknownModel, regErr.Code)

	require.ErrorAs(t, r.SetActive("ETH", "btc_1"), &regErr)
	assert.Equal(t, ErrCodeSymbolMismatch, regErr.Code)
}

func TestAtMostOneActivePerSymbol(t *testing.T) {
	r, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(record("btc_1", "BTC")))
	require.NoError(t, r.Register(record("btc_2", "BTC")))

	require.NoError(t, r.SetActive("BTC", "btc_1"))
	require.NoError(t, r.SetActive("BTC", "btc_2"))

	active := r.GetActive("BTC")
	require.NotNil(t, active)
	assert.Equal(t, "btc_2", active.ModelID)
	assert.Len(t, r.ListForSymbol("BTC"), 2)
}

func TestRestartDurability(t *testing.T) {
	dir := t.TempDir()

	r, err := New(dir, nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(record("btc_1", "BTC")))
	require.NoError(t, r.Register(record("eth_1", "ETH")))
	require.NoError(t, r.SetActive("BTC", "btc_1"))

	reopened, err := New(dir, nil)
	require.NoError(t, err)
	assert.Len(t, reopened.List(), 2)
	active := reopened.GetActive("BTC")
	require.NotNil(t, active)
	assert.Equal(t, "btc_1", active.ModelID)
	assert.Nil(t, reopened.GetActive("ETH"))
}

func TestCorruptCatalogStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalogFile), []byte("{broken"), 0o644))

	r, err := New(dir, nil)
	require.NoError(t, err)
	assert.Empty(t, r.List())

	// The registry must be writable again after recovering.
	require.NoError(t, r.Register(record("btc_1", "BTC")))
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	r, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(record("btc_1", "BTC")))
	require.NoError(t, r.SetActive("BTC", "btc_1"))

	active := r.GetActive("BTC")
	active.Metrics["final_val_loss"] = 999

	again := r.GetActive("BTC")
	assert.Equal(t, 0.01, again.Metrics["final_val_loss"])
}
