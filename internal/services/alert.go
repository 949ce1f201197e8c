package services

import (
	"context"

	"github.com/Cyvadra/stock-alert/internal/models"
	"gorm.io/gorm"
)

// AlertFilter narrows an audit log query
type AlertFilter struct {
	Code      string
	Condition models.ConditionType
}

// AlertService reads the alert audit log
type AlertService struct {
	db *gorm.DB
}

// NewAlertService creates a new alert service
func NewAlertService(db *gorm.DB) *AlertService {
	return &AlertService{db: db}
}

// GetAlert retrieves an audit row by ID
func (s *AlertService) GetAlert(ctx context.Context, id uint) (*models.AlertLog, error) {
	var alert models.AlertLog
	if err := s.db.WithContext(ctx).First(&alert, id).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// GetAlerts retrieves audit rows with pagination, newest first
func (s *AlertService) GetAlerts(ctx context.Context, page, limit int, filter AlertFilter) ([]models.AlertLog, int64, error) {
	var alerts []models.AlertLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AlertLog{})
	if filter.Code != "" {
		query = query.Where("security_code = ?", filter.Code)
	}
	if filter.Condition != "" {
		query = query.Where("condition_type = ?", filter.Condition)
	}

	// Get total count
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Offset(offset).Limit(limit).Order("created_at DESC, id DESC").Find(&alerts).Error; err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}
