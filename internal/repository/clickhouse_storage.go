package repository

import (
	"context"
	"fmt"
	"sort"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/domain/repository"
	xlogger "EstateDesk/pkg/logger"
)

var (
	_ repository.UpdateStorage   = (*ClickHouseStorage)(nil)
	_ repository.SnapshotArchive = (*ClickHouseStorage)(nil)
)

const (
	updatesTable   = "market_updates"
	snapshotsTable = "market_snapshots"
)

// Schema is the DDL applied by Init.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS ` + updatesTable + ` (
		ts             DateTime64(3),
		kind           LowCardinality(String),
		key            String,
		value          Float64,
		change         Float64,
		change_percent Float64,
		trend          LowCardinality(String),
		market_index   Float64
	) ENGINE = MergeTree
	ORDER BY (key, ts)
	TTL toDateTime(ts) + INTERVAL 30 DAY`,
	`CREATE TABLE IF NOT EXISTS ` + snapshotsTable + ` (
		taken_at       DateTime64(3),
		kind           LowCardinality(String),
		key            String,
		value          Float64,
		original_value Float64,
		change_percent Float64,
		trend          LowCardinality(String),
		volatility     Float64,
		multiplier     Float64,
		paused         UInt8
	) ENGINE = MergeTree
	ORDER BY (taken_at, kind, key)`,
}

const (
	insertUpdate   = "INSERT INTO " + updatesTable + " (ts, kind, key, value, change, change_percent, trend, market_index) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	insertSnapshot = "INSERT INTO " + snapshotsTable + " (taken_at, kind, key, value, original_value, change_percent, trend, volatility, multiplier, paused) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
)

// batchInserter is the part of pkg/clickhouse.Client the storage needs.
type batchInserter interface {
	InitSchema(ctx context.Context, stmts []string) error
	InsertBatch(ctx context.Context, query string, rows [][]any) error
	Health(ctx context.Context) error
}

// ClickHouseStorage records market updates and archives snapshots. The
// client's lifecycle belongs to the caller.
type ClickHouseStorage struct {
	client batchInserter
	logger *xlogger.Logger
}

func NewClickHouseStorage(client batchInserter, logger *xlogger.Logger) *ClickHouseStorage {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ClickHouseStorage{client: client, logger: logger.With(xlogger.String("component", "clickhouse_storage"))}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	if err := s.client.InitSchema(ctx, Schema); err != nil {
		return err
	}
	return s.client.Health(ctx)
}

func (s *ClickHouseStorage) Store(ctx context.Context, u *models.MarketUpdate) error {
	return s.StoreBatch(ctx, []*models.MarketUpdate{u})
}

// StoreBatch skips nil and unkeyed updates.
func (s *ClickHouseStorage) StoreBatch(ctx context.Context, updates []*models.MarketUpdate) error {
	rows := make([][]any, 0, len(updates))
	for _, u := range updates {
		if u == nil || u.Key == "" {
			continue
		}
		rows = append(rows, updateRow(u))
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.client.InsertBatch(ctx, insertUpdate, rows); err != nil {
		s.logger.Error("store market updates failed", xlogger.Int("rows", len(rows)), xlogger.Error(err))
		return fmt.Errorf("store updates: %w", err)
	}
	return nil
}

func updateRow(u *models.MarketUpdate) []any {
	switch {
	case u.Data != nil:
		d := u.Data
		return []any{u.Timestamp, string(u.Kind), u.Key, d.CurrentPrice, d.PriceChange, d.PriceChangePercent, string(d.Trend), d.MarketIndex}
	case u.Ticker != nil:
		t := u.Ticker
		return []any{u.Timestamp, string(u.Kind), u.Key, t.Value, t.Change, t.ChangePercent, string(t.Trend), 0.0}
	}
	return []any{u.Timestamp, string(u.Kind), u.Key, 0.0, 0.0, 0.0, "", 0.0}
}

// Archive writes one row per tracked property and one per ticker.
func (s *ClickHouseStorage) Archive(ctx context.Context, snap models.MarketSnapshot) error {
	cfg := snap.Config
	paused := uint8(0)
	if cfg.IsPaused {
		paused = 1
	}
	rows := make([][]any, 0, len(snap.MarketData)+len(snap.Tickers))
	for _, id := range sortedKeys(snap.MarketData) {
		d := snap.MarketData[id]
		rows = append(rows, []any{snap.Timestamp, string(models.UpdateKindPrice), id, d.CurrentPrice, d.OriginalPrice,
			d.PriceChangePercent, string(d.Trend), cfg.Volatility, cfg.Multiplier, paused})
	}
	for _, t := range snap.Tickers {
		rows = append(rows, []any{snap.Timestamp, string(models.UpdateKindTicker), t.Symbol, t.Value, t.Value - t.Change,
			t.ChangePercent, string(t.Trend), cfg.Volatility, cfg.Multiplier, paused})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.client.InsertBatch(ctx, insertSnapshot, rows); err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}
	return nil
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
