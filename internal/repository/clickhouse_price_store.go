package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CoinSage/internal/domain/models"
	domrepo "CoinSage/internal/domain/repository"
	pkgch "CoinSage/pkg/clickhouse"
	applogger "CoinSage/pkg/logger"
	"CoinSage/pkg/util"
)

// CHPriceStore implements PriceStore backed by ClickHouse.
type CHPriceStore struct {
	db *sql.DB
	ch *pkgch.Client
	l  *applogger.Logger
}

func NewCHPriceStore(ch *pkgch.Client) *CHPriceStore {
	return &CHPriceStore{db: ch.DB(), ch: ch}
}

// SetLogger injects a structured logger.
func (s *CHPriceStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHPriceStore) GetBars(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.PriceBar, error) {
	start := time.Now()
	table, err := tableForTF(tf)
	if err != nil {
		return nil, err
	}
	from, to = util.AlignFromTo(from, to, string(tf))
	const qtpl = `
        SELECT ts, symbol, open, high, low, close, volume, market_cap
        FROM %s
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	q := fmt.Sprintf(qtpl, table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_bars query error",
				applogger.String("table", table),
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.PriceBar, 0, 1024)
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			if s.l != nil {
				s.l.Error("clickhouse get_bars scan error",
					applogger.String("table", table),
					applogger.String("symbol", symbol),
					applogger.Error(err),
				)
			}
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse get_bars ok",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHPriceStore) GetLatestNBars(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.PriceBar, error) {
	start := time.Now()
	table, err := tableForTF(tf)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT ts, symbol, open, high, low, close, volume, market_cap
        FROM %s
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	q := fmt.Sprintf(qtpl, table)
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_bars query error",
				applogger.String("table", table),
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get latest bars: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.PriceBar, 0, n)
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		tmp = append(tmp, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Info("clickhouse latest_bars ok",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", n),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return tmp, nil
}

func (s *CHPriceStore) InsertBars(ctx context.Context, bars []models.PriceBar, tf domrepo.Timeframe) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()
	table, err := tableForTF(tf)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, open, high, low, close, volume, market_cap) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", table)
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx,
			bar.Timestamp, bar.Symbol,
			bar.Open, bar.High, bar.Low, bar.Close,
			nullable(bar.Volume), nullable(bar.MarketCap),
		); err != nil {
			_ = tx.Rollback()
			if s.l != nil {
				s.l.Error("clickhouse insert_bars exec error",
					applogger.String("table", table),
					applogger.String("symbol", bar.Symbol),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("insert bar: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse insert_bars ok",
			applogger.String("table", table),
			applogger.Int("rows", len(bars)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHPriceStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHPriceStore) Close() error {
	return s.ch.Close()
}

func scanBar(rows *sql.Rows) (models.PriceBar, error) {
	var bar models.PriceBar
	var volume, marketCap sql.NullFloat64
	if err := rows.Scan(&bar.Timestamp, &bar.Symbol, &bar.Open, &bar.High, &bar.Low, &bar.Close, &volume, &marketCap); err != nil {
		return bar, err
	}
	if volume.Valid {
		bar.Volume = &volume.Float64
	}
	if marketCap.Valid {
		bar.MarketCap = &marketCap.Float64
	}
	return bar, nil
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func tableForTF(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1m:
		return "coinsage.price_bars_1m", nil
	case domrepo.TF1h:
		return "coinsage.price_bars_1h", nil
	case domrepo.TF1d:
		return "coinsage.price_bars_1d", nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
}
