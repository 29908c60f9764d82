package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"paper-trade-bot-go/internal/models"
)

var (
	// ErrNotFound indicates no trade exists for the given id.
	ErrNotFound = errors.New("trade not found")
	// ErrAlreadyClosed indicates the exit-field group was already set; the
	// trade is terminal and must never be re-reconciled.
	ErrAlreadyClosed = errors.New("trade already has an exit")
	// ErrNotAdmitted indicates the trade was rejected at admission; rejected
	// records were never open and cannot acquire exit fields.
	ErrNotAdmitted = errors.New("trade was rejected at admission")
)

// Exit is the write-once exit-field group applied to a closed trade.
type Exit struct {
	Type        models.ExitType
	Price       float64
	Time        time.Time
	Validated   bool
	ValidatedBy string
}

// Filter narrows trade queries. Nil fields match everything.
type Filter struct {
	Mode   *models.Mode
	Signal *models.Signal
}

// TradeStore is the append-only trade lifecycle record. Trades are created
// once at admission and mutated only through UpdateExit.
type TradeStore interface {
	// Create persists a new trade record.
	Create(ctx context.Context, trade *models.Trade) error
	// FindByID retrieves a trade by id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*models.Trade, error)
	// Find retrieves trades matching the filter, newest first.
	Find(ctx context.Context, filter Filter) ([]models.Trade, error)
	// FindOpen retrieves admitted trades in the given mode that have no exit yet.
	FindOpen(ctx context.Context, mode models.Mode) ([]models.Trade, error)
	// FindClosed retrieves admitted trades in the given mode with a settled exit.
	FindClosed(ctx context.Context, mode models.Mode) ([]models.Trade, error)
	// CountToday counts admitted trades created since UTC midnight.
	CountToday(ctx context.Context, mode models.Mode) (int, error)
	// UpdateExit applies the exit-field group to an open admitted trade.
	// The update is check-and-set on exit presence: a trade that already has
	// an exit price returns ErrAlreadyClosed, which also guards concurrent
	// reconciliations of the same trade against a double write. A rejected
	// trade returns ErrNotAdmitted.
	UpdateExit(ctx context.Context, id string, exit Exit) error
}

// GormStore is the sqlite-backed TradeStore.
type GormStore struct {
	db *gorm.DB
}

var _ TradeStore = (*GormStore)(nil)

// NewDatabase opens the sqlite database and migrates the trade schema.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.Trade{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return db, nil
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, trade *models.Trade) error {
	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

func (s *GormStore) FindByID(ctx context.Context, id string) (*models.Trade, error) {
	var trade models.Trade
	err := s.db.WithContext(ctx).First(&trade, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find trade %s: %w", id, err)
	}
	return &trade, nil
}

func (s *GormStore) Find(ctx context.Context, filter Filter) ([]models.Trade, error) {
	query := s.db.WithContext(ctx).Order("timestamp DESC")
	if filter.Mode != nil {
		query = query.Where("mode = ?", *filter.Mode)
	}
	if filter.Signal != nil {
		query = query.Where("signal = ?", *filter.Signal)
	}

	var trades []models.Trade
	if err := query.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return trades, nil
}

func (s *GormStore) FindOpen(ctx context.Context, mode models.Mode) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("mode = ? AND success = ? AND exit_price IS NULL", mode, true).
		Order("timestamp ASC").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	return trades, nil
}

func (s *GormStore) FindClosed(ctx context.Context, mode models.Mode) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("mode = ? AND success = ? AND exit_price IS NOT NULL", mode, true).
		Order("timestamp ASC").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades: %w", err)
	}
	return trades, nil
}

func (s *GormStore) CountToday(ctx context.Context, mode models.Mode) (int, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("mode = ? AND success = ? AND timestamp >= ?", mode, true, midnight).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count today's trades: %w", err)
	}
	return int(count), nil
}

func (s *GormStore) UpdateExit(ctx context.Context, id string, exit Exit) error {
	res := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ? AND success = ? AND exit_price IS NULL", id, true).
		Updates(map[string]any{
			"exit_type":    exit.Type,
			"exit_price":   exit.Price,
			"exit_time":    exit.Time,
			"validated":    exit.Validated,
			"validated_by": exit.ValidatedBy,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update exit for trade %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the trade does not exist, was rejected at admission, or a
		// concurrent reconciliation already closed it. Re-read to tell them
		// apart.
		trade, err := s.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !trade.Success {
			return ErrNotAdmitted
		}
		return ErrAlreadyClosed
	}
	return nil
}
