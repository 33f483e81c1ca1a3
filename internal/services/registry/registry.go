package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"CoinSage/internal/domain/models"
	applogger "CoinSage/pkg/logger"
)

const catalogFile = "registry.json"

const (
	ErrCodeDuplicateID    = "ERR_DUPLICATE_ID"
	ErrCodeUnknownModel   = "ERR_UNKNOWN_MODEL"
	ErrCodeSymbolMismatch = "ERR_SYMBOL_MISMATCH"
	ErrCodeInvalidRecord  = "ERR_INVALID_RECORD"
	ErrCodePersist        = "ERR_PERSIST"
)

// Error reports a registry operation failure.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code, format string, a ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, a...)}
}

// catalog is the on-disk shape of the registry.
type catalog struct {
	Models map[string]models.ModelRecord `json:"models"`
	Active map[string]string             `json:"active"`
}

// Registry is a durable catalog of trained model records with at most one
// active model per symbol. Every mutation is persisted before it becomes
// visible in memory, so a crash can never leave memory ahead of disk.
type Registry struct {
	mu     sync.RWMutex
	dir    string
	models map[string]models.ModelRecord
	active map[string]string
	l      *applogger.Logger
}

// New opens the registry at dir, creating it if needed. A catalog file that
// cannot be parsed is logged and treated as empty rather than blocking
// startup.
func New(dir string, l *applogger.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Code: ErrCodePersist, Message: "create registry dir", Err: err}
	}
	r := &Registry{
		dir:    dir,
		models: make(map[string]models.ModelRecord),
		active: make(map[string]string),
		l:      l,
	}

	path := filepath.Join(dir, catalogFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, &Error{Code: ErrCodePersist, Message: "read registry catalog", Err: err}
	}
	var cat catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		if l != nil {
			l.Warn("registry catalog corrupt, starting empty",
				applogger.String("path", path),
				applogger.Error(err),
			)
		}
		return r, nil
	}
	if cat.Models != nil {
		r.models = cat.Models
	}
	for symbol, id := range cat.Active {
		if _, ok := r.models[id]; ok {
			r.active[symbol] = id
		}
	}
	return r, nil
}

// Register adds a new immutable record. A duplicate model ID is rejected and
// leaves the catalog untouched.
func (r *Registry) Register(rec models.ModelRecord) error {
	if rec.ModelID == "" || rec.Symbol == "" {
		return newError(ErrCodeInvalidRecord, "record needs model_id and symbol")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[rec.ModelID]; exists {
		return newError(ErrCodeDuplicateID, "model %q is already registered", rec.ModelID)
	}

	next := r.snapshot()
	next.Models[rec.ModelID] = cloneRecord(rec)
	if err := r.persist(next); err != nil {
		return err
	}
	r.models[rec.ModelID] = cloneRecord(rec)
	if r.l != nil {
		r.l.Info("model registered",
			applogger.String("model_id", rec.ModelID),
			applogger.String("symbol", rec.Symbol),
		)
	}
	return nil
}

// SetActive marks one registered model as the active one for its symbol,
// replacing any previous choice.
func (r *Registry) SetActive(symbol, modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.models[modelID]
	if !ok {
		return newError(ErrCodeUnknownModel, "model %q is not registered", modelID)
	}
	if rec.Symbol != symbol {
		return newError(ErrCodeSymbolMismatch, "model %q belongs to %q, not %q", modelID, rec.Symbol, symbol)
	}

	next := r.snapshot()
	next.Active[symbol] = modelID
	if err := r.persist(next); err != nil {
		return err
	}
	r.active[symbol] = modelID
	if r.l != nil {
		r.l.Info("active model set",
			applogger.String("symbol", symbol),
			applogger.String("model_id", modelID),
		)
	}
	return nil
}

// GetActive returns a copy of the active record for symbol, or nil when the
// symbol has no active model.
func (r *Registry) GetActive(symbol string) *models.ModelRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[symbol]
	if !ok {
		return nil
	}
	rec, ok := r.models[id]
	if !ok {
		return nil
	}
	out := cloneRecord(rec)
	return &out
}

// Get returns a copy of the record with the given ID.
func (r *Registry) Get(modelID string) (*models.ModelRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.models[modelID]
	if !ok {
		return nil, newError(ErrCodeUnknownModel, "model %q is not registered", modelID)
	}
	out := cloneRecord(rec)
	return &out, nil
}

// List returns copies of all records, newest first.
func (r *Registry) List() []models.ModelRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ModelRecord, 0, len(r.models))
	for _, rec := range r.models {
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ModelID < out[j].ModelID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ListForSymbol returns copies of all records for one symbol, newest first.
func (r *Registry) ListForSymbol(symbol string) []models.ModelRecord {
	all := r.List()
	out := make([]models.ModelRecord, 0, len(all))
	for _, rec := range all {
		if rec.Symbol == symbol {
			out = append(out, rec)
		}
	}
	return out
}

// snapshot deep-copies current state as the mutation candidate.
func (r *Registry) snapshot() catalog {
	cat := catalog{
		Models: make(map[string]models.ModelRecord, len(r.models)),
		Active: make(map[string]string, len(r.active)),
	}
	for id, rec := range r.models {
		cat.Models[id] = cloneRecord(rec)
	}
	for symbol, id := range r.active {
		cat.Active[symbol] = id
	}
	return cat
}

// persist writes the candidate catalog atomically via temp file and rename.
func (r *Registry) persist(cat catalog) error {
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return &Error{Code: ErrCodePersist, Message: "marshal registry catalog", Err: err}
	}
	path := filepath.Join(r.dir, catalogFile)
	tmp, err := os.CreateTemp(r.dir, catalogFile+".tmp-*")
	if err != nil {
		return &Error{Code: ErrCodePersist, Message: "create temp catalog", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &Error{Code: ErrCodePersist, Message: "write catalog", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &Error{Code: ErrCodePersist, Message: "close temp catalog", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &Error{Code: ErrCodePersist, Message: "rename catalog", Err: err}
	}
	return nil
}

func cloneRecord(rec models.ModelRecord) models.ModelRecord {
	out := rec
	if rec.Metrics != nil {
		out.Metrics = make(map[string]float64, len(rec.Metrics))
		for k, v := range rec.Metrics {
			out.Metrics[k] = v
		}
	}
	if rec.Metadata != nil {
		out.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
