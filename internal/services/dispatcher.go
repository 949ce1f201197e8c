package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Cyvadra/stock-alert/internal/config"
	"github.com/Cyvadra/stock-alert/internal/logging"
	"github.com/Cyvadra/stock-alert/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Pusher delivers one message to a recipient
type Pusher interface {
	Push(ctx context.Context, recipient string, messages ...Message) error
}

// Commentator optionally adds generated commentary to an event
type Commentator interface {
	Comment(ctx context.Context, ev *models.AlertEvent) (string, error)
}

// Message is a LINE message object
type Message map[string]interface{}

// LinePusher sends messages through the LINE push API
type LinePusher struct {
	client  *resty.Client
	pushURL string
	token   string
}

// NewLinePusher creates a pusher from the line config section
func NewLinePusher(cfg config.LineConfig) *LinePusher {
	return &LinePusher{
		client:  resty.New().SetTimeout(cfg.Timeout),
		pushURL: cfg.PushURL,
		token:   cfg.ChannelToken,
	}
}

// Push sends up to five messages in one request
func (p *LinePusher) Push(ctx context.Context, recipient string, messages ...Message) error {
	if recipient == "" {
		return ErrNoRecipient
	}
	payload := map[string]interface{}{
		"to":       recipient,
		"messages": messages,
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(p.token).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Line-Retry-Key", uuid.NewString()).
		SetBody(payload).
		Post(p.pushURL)
	if err != nil {
		return fmt.Errorf("line push request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("line push returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Dispatcher delivers alert events one at a time with a fixed gap between
// pushes and writes an audit row for each.
type Dispatcher struct {
	db          *gorm.DB
	pusher      Pusher
	recipient   string
	limiter     *rate.Limiter
	commentator Commentator
	logger      zerolog.Logger
	metrics     *Metrics
}

// NewDispatcher creates a dispatcher. interval is the minimum gap between
// consecutive pushes; zero disables pacing.
func NewDispatcher(db *gorm.DB, pusher Pusher, recipient string, interval time.Duration, logger zerolog.Logger, metrics *Metrics) *Dispatcher {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Dispatcher{
		db:        db,
		pusher:    pusher,
		recipient: recipient,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logging.Component(logger, "dispatcher"),
		metrics:   metrics,
	}
}

// SetCommentator installs a commentary source
func (d *Dispatcher) SetCommentator(c Commentator) {
	d.commentator = c
}

// Dispatch pushes events in order and returns how many were delivered. A
// failed push is logged and audited; it does not stop the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, events []models.AlertEvent) int {
	delivered := 0
	for i := range events {
		ev := &events[i]
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		d.comment(ctx, ev)

		err := d.send(ctx, BuildAlertCard(ev))
		if err == nil {
			delivered++
		} else {
			d.logger.Error().Err(err).
				Str("code", ev.SecurityCode).
				Str("condition", string(ev.ConditionType)).
				Msg("Failed to deliver alert")
		}
		d.metrics.delivered(err == nil)
		d.audit(ctx, ev, err)
	}
	return delivered
}

// PushCarousel sends bubbles as carousels of up to 12, batching five
// carousels per push.
func (d *Dispatcher) PushCarousel(ctx context.Context, altText string, bubbles []Message) error {
	pages := Carousels(altText, bubbles)
	for len(pages) > 0 {
		n := min(len(pages), maxPushMessages)
		err := d.send(ctx, pages[:n]...)
		d.metrics.delivered(err == nil)
		if err != nil {
			return err
		}
		pages = pages[n:]
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, messages ...Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.pusher.Push(ctx, d.recipient, messages...)
}

func (d *Dispatcher) comment(ctx context.Context, ev *models.AlertEvent) {
	if d.commentator == nil || ev.Commentary != "" {
		return
	}
	text, err := d.commentator.Comment(ctx, ev)
	if err != nil {
		d.logger.Debug().Err(err).Str("code", ev.SecurityCode).Msg("Commentary unavailable")
		return
	}
	ev.Commentary = text
}

// audit appends the event to the log. The event ID makes a replay a no-op.
func (d *Dispatcher) audit(ctx context.Context, ev *models.AlertEvent, sendErr error) {
	row := models.AlertLog{
		EventID:       ev.ID,
		SecurityCode:  ev.SecurityCode,
		SecurityName:  ev.SecurityName,
		ConditionType: ev.ConditionType,
		Message:       ev.Message,
		Value:         ev.Value,
		Price:         ev.Price,
		ChangePercent: ev.ChangePercent,
		Commentary:    ev.Commentary,
		Recipient:     d.recipient,
		Delivered:     sendErr == nil,
		CreatedAt:     ev.TriggeredAt,
	}
	if sendErr != nil {
		row.Error = sendErr.Error()
	}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		d.logger.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to write audit log")
	}
}
