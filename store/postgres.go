package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rileyseaburg/venue-trader/types"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"

	signalBatchSize = 100
)

// Option defines connection options for PostgreSQL.
// ConnString, when set, is used as is.
type Option struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

// TradeRecord is the persisted form of a trade event
type TradeRecord struct {
	ID             string    `gorm:"primaryKey;size:36"`
	Symbol         string    `gorm:"index;size:32;not null"`
	Venue          string    `gorm:"index;size:16;not null"`
	Side           string    `gorm:"size:8;not null"`
	Quantity       float64   `gorm:"not null"`
	Price          float64   `gorm:"not null"`
	Total          float64   `gorm:"not null"`
	Reason         string    `gorm:"size:255"`
	ExecutedAt     time.Time `gorm:"index;not null"`
	IndicatorValue float64
	CreatedAt      time.Time
}

// SignalRecord is the persisted form of a computed signal
type SignalRecord struct {
	ID             uint      `gorm:"primaryKey"`
	Symbol         string    `gorm:"index;size:32;not null"`
	Venue          string    `gorm:"size:16;not null"`
	AssetClass     string    `gorm:"size:16"`
	SignalType     string    `gorm:"size:8;not null"`
	ComputedAt     time.Time `gorm:"index;not null"`
	Strength       float64
	IndicatorValue float64
	Price          float64
	CreatedAt      time.Time
}

// GormRecorder writes events to PostgreSQL through gorm
type GormRecorder struct {
	db *gorm.DB
}

// Open connects to PostgreSQL and migrates the event tables
func Open(option Option) (*GormRecorder, error) {
	connString, err := option.dsn()
	if err != nil {
		return nil, err
	}

	config := option.Config
	if config == nil {
		config = &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	}

	db, err := gorm.Open(postgres.Open(connString), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	rec := &GormRecorder{db: db}
	if err := db.AutoMigrate(&TradeRecord{}, &SignalRecord{}); err != nil {
		if closeErr := rec.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return rec, nil
}

func (r *GormRecorder) RecordTrade(ctx context.Context, ev types.TradeEvent) error {
	rec := toTradeRecord(ev)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record trade %s: %w", ev.ID, err)
	}
	return nil
}

func (r *GormRecorder) RecordSignals(ctx context.Context, signals []types.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	recs := toSignalRecords(signals)
	if err := r.db.WithContext(ctx).CreateInBatches(recs, signalBatchSize).Error; err != nil {
		return fmt.Errorf("failed to record %d signals: %w", len(signals), err)
	}
	return nil
}

// RecentTrades returns up to limit trades, newest first
func (r *GormRecorder) RecentTrades(ctx context.Context, limit int) ([]types.TradeEvent, error) {
	var recs []TradeRecord
	if err := r.db.WithContext(ctx).Order("executed_at desc").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}
	out := make([]types.TradeEvent, len(recs))
	for i, rec := range recs {
		out[i] = rec.event()
	}
	return out, nil
}

// Close closes the underlying connection pool
func (r *GormRecorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toTradeRecord(ev types.TradeEvent) TradeRecord {
	return TradeRecord{
		ID:             ev.ID,
		Symbol:         ev.Symbol,
		Venue:          string(ev.Venue),
		Side:           string(ev.Side),
		Quantity:       ev.Quantity,
		Price:          ev.Price,
		Total:          ev.Total,
		IndicatorValue: ev.IndicatorValue,
		Reason:         ev.Reason,
		ExecutedAt:     ev.Timestamp,
	}
}

func (rec TradeRecord) event() types.TradeEvent {
	return types.TradeEvent{
		ID:             rec.ID,
		Symbol:         rec.Symbol,
		Venue:          types.Venue(rec.Venue),
		Side:           types.Side(rec.Side),
		Quantity:       rec.Quantity,
		Price:          rec.Price,
		Total:          rec.Total,
		IndicatorValue: rec.IndicatorValue,
		Reason:         rec.Reason,
		Timestamp:      rec.ExecutedAt,
	}
}

func toSignalRecords(signals []types.Signal) []SignalRecord {
	out := make([]SignalRecord, len(signals))
	for i, s := range signals {
		out[i] = SignalRecord{
			Symbol:         s.Symbol,
			Venue:          string(s.Venue),
			AssetClass:     string(s.AssetClass),
			SignalType:     string(s.Type),
			Strength:       s.Strength,
			IndicatorValue: s.IndicatorValue,
			Price:          s.CurrentPrice,
			ComputedAt:     s.Timestamp,
		}
	}
	return out
}

func (opt Option) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}
	if opt.Database == "" {
		return "", fmt.Errorf("postgres database name is required")
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + opt.Database,
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key != "" {
			query.Set(key, value)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
