package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"main/internal/schema"
)

const (
	defaultHost    = "localhost"
	defaultPort    = 5432
	defaultSSLMode = "disable"
)

// Option defines connection options for the Postgres store.
type Option struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// OrderRecord is the persisted view of an order.
type OrderRecord struct {
	ID          string    `gorm:"primaryKey"`
	Kind        string    `gorm:"size:16"`
	InputAsset  string    `gorm:"size:16"`
	OutputAsset string    `gorm:"size:16"`
	AmountIn    float64
	Slippage    float64
	CreatedAt   time.Time
}

// EventRecord is one persisted status transition.
type EventRecord struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	OrderID   string `gorm:"index;size:64"`
	Status    string `gorm:"size:16"`
	Timestamp time.Time
	Payload   []byte `gorm:"type:jsonb"`
}

// QuoteRecord is one venue quote of a routing round.
type QuoteRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	OrderID     string `gorm:"index;size:64"`
	Venue       string `gorm:"size:32"`
	Price       float64
	AmountOut   float64
	FeeRate     float64
	PriceImpact float64
	Timestamp   time.Time
}

// PG persists the audit trail to Postgres through gorm.
type PG struct {
	db *gorm.DB
}

// NewPG opens a connection pool and migrates the audit tables.
func NewPG(opt Option) (*PG, error) {
	db, err := gorm.Open(postgres.Open(opt.dsn()), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&OrderRecord{}, &EventRecord{}, &QuoteRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate audit tables")
	}
	return &PG{db: db}, nil
}

// SaveOrder records order creation.
func (s *PG) SaveOrder(ctx context.Context, order *schema.Order) error {
	record := OrderRecord{
		ID:          order.ID,
		Kind:        string(order.Kind),
		InputAsset:  order.InputAsset,
		OutputAsset: order.OutputAsset,
		AmountIn:    order.AmountIn,
		Slippage:    order.Slippage,
		CreatedAt:   order.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

// SaveEvent records one status transition with its payload serialized as
// JSON.
func (s *PG) SaveEvent(ctx context.Context, ev schema.StatusEvent) error {
	var payload []byte
	if ev.Data != nil {
		encoded, err := json.Marshal(ev.Data)
		if err != nil {
			return errors.Wrap(err, "encode event payload")
		}
		payload = encoded
	}
	record := EventRecord{
		OrderID:   ev.OrderID,
		Status:    string(ev.Status),
		Timestamp: ev.Timestamp,
		Payload:   payload,
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

// SaveQuotes records the raw quote set of one routing round.
func (s *PG) SaveQuotes(ctx context.Context, orderID string, quotes []schema.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	records := make([]QuoteRecord, 0, len(quotes))
	for _, q := range quotes {
		records = append(records, QuoteRecord{
			OrderID:     orderID,
			Venue:       q.Venue,
			Price:       q.Price,
			AmountOut:   q.AmountOut,
			FeeRate:     q.FeeRate,
			PriceImpact: q.PriceImpact,
			Timestamp:   q.Timestamp,
		})
	}
	return s.db.WithContext(ctx).Create(&records).Error
}

// Close releases the underlying connection pool.
func (s *PG) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt Option) dsn() string {
	host := opt.Host
	if host == "" {
		host = defaultHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()
	return u.String()
}
