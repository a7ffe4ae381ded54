package store

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tickscalper/internal/paper"
)

// Postgres persists closed positions and signal samples through gorm.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres opens a connection pool from a libpq-style DSN and migrates the
// schema.
func NewPostgres(dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: empty dsn")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.AutoMigrate(&ClosedPositionRow{}, &SignalSampleRow{}); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) InsertClosedPosition(rec paper.ClosedPosition) error {
	row := ClosedPositionRow{
		RecordID:    rec.ID,
		Symbol:      rec.Symbol,
		Side:        string(rec.Side),
		Qty:         rec.Qty,
		Entry:       rec.Entry,
		Exit:        rec.Exit,
		PnL:         rec.PnL,
		NetPnL:      rec.NetPnL,
		Leverage:    rec.Leverage,
		MarginUSD:   rec.MarginUSD,
		NotionalUSD: rec.NotionalUSD,
		LiqPrice:    rec.LiqPrice,
		FeeOpenUSD:  rec.FeeOpenUSD,
		FeeCloseUSD: rec.FeeCloseUSD,
		FeeTotalUSD: rec.FeeTotalUSD,
		Reason:      rec.Reason,
		OpenTS:      rec.OpenTS,
		CloseTS:     rec.CloseTS,
	}
	return p.db.Create(&row).Error
}

func (p *Postgres) InsertSignalSample(row SignalSampleRow) error {
	return p.db.Create(&row).Error
}

// RecentClosedPositions returns up to limit records, newest first.
func (p *Postgres) RecentClosedPositions(limit int) ([]ClosedPositionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows := make([]ClosedPositionRow, 0, limit)
	err := p.db.Order("close_ts DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// ClearClosedPositions wipes the closed-position history.
func (p *Postgres) ClearClosedPositions() error {
	return p.db.Where("1 = 1").Delete(&ClosedPositionRow{}).Error
}

// RecentSignalSamples returns samples inside the lookback window, newest
// first, optionally filtered to one symbol.
func (p *Postgres) RecentSignalSamples(symbol string, lookback time.Duration, limit int) ([]SignalSampleRow, error) {
	if limit <= 0 {
		limit = 5000
	}
	cutoff := time.Now().Add(-lookback).UnixMilli()
	q := p.db.Where("ts_ms >= ?", cutoff)
	if symbol != "" {
		q = q.Where("symbol = ?", strings.ToUpper(symbol))
	}
	rows := make([]SignalSampleRow, 0, limit)
	err := q.Order("ts_ms DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// PurgeSignalSamples deletes samples older than the retention window and
// reports how many rows went away.
func (p *Postgres) PurgeSignalSamples(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res := p.db.Where("ts_ms < ?", cutoff).Delete(&SignalSampleRow{})
	return res.RowsAffected, res.Error
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
