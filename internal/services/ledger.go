package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Cyvadra/stock-alert/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger suppresses repeated firing of a recurring condition for one
// security inside a cooldown window.
type Ledger struct {
	db  *gorm.DB
	mu  sync.Mutex
	now func() time.Time
}

// CooldownStatus is a ledger row with the time left in its window
type CooldownStatus struct {
	models.CooldownEntry
	Window    time.Duration `json:"window"`
	Remaining time.Duration `json:"remaining"`
	Active    bool          `json:"active"`
}

// NewLedger creates a ledger over the cooldown table
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// ShouldFire reports whether window has elapsed since the pair last fired
func (l *Ledger) ShouldFire(ctx context.Context, code string, condition models.ConditionType, window time.Duration) (bool, error) {
	var entry models.CooldownEntry
	err := l.db.WithContext(ctx).
		Where("security_code = ? AND condition_type = ?", code, condition).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cooldown %s/%s: %w", code, condition, err)
	}
	return l.now().Sub(entry.LastFiredAt) >= window, nil
}

// MarkFired records that the pair fired at when
func (l *Ledger) MarkFired(ctx context.Context, code string, condition models.ConditionType, when time.Time) error {
	entry := models.CooldownEntry{SecurityCode: code, ConditionType: condition, LastFiredAt: when}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "security_code"}, {Name: "condition_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_fired_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("mark cooldown %s/%s: %w", code, condition, err)
	}
	return nil
}

// TryFire checks the window and, when it has elapsed, marks the pair fired
// in the same critical section.
func (l *Ledger) TryFire(ctx context.Context, code string, condition models.ConditionType, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.ShouldFire(ctx, code, condition, window)
	if err != nil || !ok {
		return ok, err
	}
	if err := l.MarkFired(ctx, code, condition, l.now()); err != nil {
		return false, err
	}
	return true, nil
}

// List returns ledger rows, optionally for one security, with the time left
// under windowOf.
func (l *Ledger) List(ctx context.Context, code string, windowOf func(models.ConditionType) time.Duration) ([]CooldownStatus, error) {
	var entries []models.CooldownEntry
	query := l.db.WithContext(ctx).Order("last_fired_at DESC")
	if code != "" {
		query = query.Where("security_code = ?", code)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}

	now := l.now()
	out := make([]CooldownStatus, 0, len(entries))
	for _, e := range entries {
		window := windowOf(e.ConditionType)
		remaining := window - now.Sub(e.LastFiredAt)
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, CooldownStatus{
			CooldownEntry: e,
			Window:        window,
			Remaining:     remaining,
			Active:        remaining > 0,
		})
	}
	return out, nil
}
