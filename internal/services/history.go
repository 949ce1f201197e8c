package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Cyvadra/stock-alert/internal/models"
	"github.com/Cyvadra/stock-alert/provider"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HistoryService persists daily bars
type HistoryService struct {
	db *gorm.DB
}

// NewHistoryService creates a new history service
func NewHistoryService(db *gorm.DB) *HistoryService {
	return &HistoryService{db: db}
}

// Record folds a resolved quote into the day's bar. Repeated calls on the
// same trading day overwrite the same row; quotes resolved on a weekend
// repeat the last session and are not stored.
func (s *HistoryService) Record(ctx context.Context, q *models.Quote) error {
	if q == nil || q.Price <= 0 || !provider.IsTradingDay(q.ResolvedAt) {
		return nil
	}
	row := models.PriceHistory{
		SecurityCode: q.Code,
		TradeDate:    provider.TradeDate(q.ResolvedAt),
		Open:         q.Open,
		High:         q.High,
		Low:          q.Low,
		Close:        q.Price,
		Volume:       q.Volume,
	}
	return s.Upsert(ctx, &row)
}

// Upsert inserts a bar or replaces the existing one for (security, date)
func (s *HistoryService) Upsert(ctx context.Context, row *models.PriceHistory) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "security_code"}, {Name: "trade_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert history %s %s: %w", row.SecurityCode, row.TradeDate, err)
	}
	return nil
}

// Recent returns up to limit bars, newest first
func (s *HistoryService) Recent(ctx context.Context, code string, limit int) ([]models.PriceHistory, error) {
	var rows []models.PriceHistory
	err := s.db.WithContext(ctx).
		Where("security_code = ?", code).
		Order("trade_date DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Cleanup deletes bars older than retentionDays and returns how many went
func (s *HistoryService) Cleanup(ctx context.Context, now time.Time, retentionDays int) (int64, error) {
	cutoff := provider.TradeDate(now.AddDate(0, 0, -retentionDays))
	res := s.db.WithContext(ctx).Where("trade_date < ?", cutoff).Delete(&models.PriceHistory{})
	return res.RowsAffected, res.Error
}
