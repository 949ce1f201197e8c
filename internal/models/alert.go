package models

import (
	"time"
)

// AlertEvent is a triggered condition, consumed immediately by the dispatcher
type AlertEvent struct {
	ID            string        `json:"id"` // dedup key, unique in the audit log
	ConditionType ConditionType `json:"condition_type"`
	SecurityCode  string        `json:"security_code"`
	SecurityName  string        `json:"security_name"`
	Owner         string        `json:"owner,omitempty"`
	Message       string        `json:"message"`
	Value         float64       `json:"value"`
	Price         float64       `json:"price"`
	ChangePercent float64       `json:"change_percent"`
	Commentary    string        `json:"commentary,omitempty"`
	TriggeredAt   time.Time     `json:"triggered_at"`

	// Disarm names the target column to clear after a one-shot event fires.
	Disarm     string `json:"-"`
	PositionID uint   `json:"-"`
	WatchID    uint   `json:"-"`
}

// IsOneShot reports whether firing this event must clear its trigger
func (e *AlertEvent) IsOneShot() bool {
	return e.Disarm != ""
}

// AlertLog is the append-only audit row written per dispatched event
type AlertLog struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	EventID       string        `json:"event_id" gorm:"size:36;uniqueIndex"`
	SecurityCode  string        `json:"security_code" gorm:"size:16;index"`
	SecurityName  string        `json:"security_name"`
	ConditionType ConditionType `json:"condition_type" gorm:"size:32;index"`
	Message       string        `json:"message"`
	Value         float64       `json:"value"`
	Price         float64       `json:"price"`
	ChangePercent float64       `json:"change_percent"`
	Commentary    string        `json:"commentary" gorm:"type:text"`
	Recipient     string        `json:"recipient"`
	Delivered     bool          `json:"delivered"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at" gorm:"index"`
}
