package services

import (
	"fmt"

	"github.com/Cyvadra/stock-alert/internal/models"
	"github.com/Cyvadra/stock-alert/provider"
)

const (
	colorUp   = "#D32F2F" // local convention: red is up
	colorDown = "#2E7D32"
	colorFlat = "#555555"
)

// LINE caps a carousel at 12 bubbles and a push at 5 messages
const (
	maxCarouselBubbles = 12
	maxPushMessages    = 5
)

// BuildAlertCard renders an event as a flex bubble message
func BuildAlertCard(ev *models.AlertEvent) Message {
	body := []Message{
		text(ev.Message, "md", true),
		separator(),
		row("價格", fmt.Sprintf("%.2f", ev.Price)),
		row("漲跌幅", fmt.Sprintf("%+.2f%%", ev.ChangePercent)),
		row("數值", fmt.Sprintf("%.2f", ev.Value)),
	}
	if ev.Commentary != "" {
		body = append(body, separator(), text(ev.Commentary, "sm", true))
	}

	bubble := Message{
		"type": "bubble",
		"header": box("vertical",
			Message{"type": "text", "text": fmt.Sprintf("%s %s", ev.SecurityCode, ev.SecurityName), "weight": "bold", "size": "lg", "color": "#FFFFFF"},
			Message{"type": "text", "text": string(ev.ConditionType), "size": "xs", "color": "#FFFFFF"},
		).with("backgroundColor", trendColor(ev.ChangePercent)),
		"body":   box("vertical", body...).with("spacing", "sm"),
		"footer": box("vertical", text(ev.TriggeredAt.In(provider.Taipei).Format("2006-01-02 15:04:05"), "xxs", false)),
	}
	return Flex(ev.Message, bubble)
}

// HoldingSummary is one line of the daily holdings carousel
type HoldingSummary struct {
	Code          string
	Name          string
	Shares        int
	CostPrice     float64
	Price         float64
	ChangePercent float64
	ProfitLoss    float64
	ProfitPercent float64
}

// BuildHoldingBubble renders a holding as a flex bubble
func BuildHoldingBubble(h HoldingSummary) Message {
	return Message{
		"type": "bubble",
		"size": "kilo",
		"header": box("vertical",
			Message{"type": "text", "text": fmt.Sprintf("%s %s", h.Code, h.Name), "weight": "bold", "color": "#FFFFFF"},
		).with("backgroundColor", trendColor(h.ProfitLoss)),
		"body": box("vertical",
			row("股數", fmt.Sprintf("%d", h.Shares)),
			row("成本", fmt.Sprintf("%.2f", h.CostPrice)),
			row("現價", fmt.Sprintf("%.2f (%+.2f%%)", h.Price, h.ChangePercent)),
			row("損益", fmt.Sprintf("%+.0f (%+.2f%%)", h.ProfitLoss, h.ProfitPercent)),
		).with("spacing", "sm"),
	}
}

// Flex wraps a bubble or carousel container in a flex message
func Flex(altText string, contents Message) Message {
	if len([]rune(altText)) > 400 {
		altText = string([]rune(altText)[:400])
	}
	return Message{"type": "flex", "altText": altText, "contents": contents}
}

// Carousel wraps bubbles in a carousel flex message, keeping the first 12
func Carousel(altText string, bubbles []Message) Message {
	if len(bubbles) > maxCarouselBubbles {
		bubbles = bubbles[:maxCarouselBubbles]
	}
	return Flex(altText, Message{"type": "carousel", "contents": bubbles})
}

// Carousels pages bubbles into as many carousels as they need. Pages are
// numbered in the alt text when there is more than one.
func Carousels(altText string, bubbles []Message) []Message {
	pages := (len(bubbles) + maxCarouselBubbles - 1) / maxCarouselBubbles
	out := make([]Message, 0, pages)
	for i := 0; i < pages; i++ {
		start := i * maxCarouselBubbles
		end := min(start+maxCarouselBubbles, len(bubbles))
		alt := altText
		if pages > 1 {
			alt = fmt.Sprintf("%s (%d/%d)", altText, i+1, pages)
		}
		out = append(out, Carousel(alt, bubbles[start:end]))
	}
	return out
}

func (m Message) with(key string, value interface{}) Message {
	m[key] = value
	return m
}

func box(layout string, contents ...Message) Message {
	return Message{"type": "box", "layout": layout, "contents": contents}
}

func text(s, size string, wrap bool) Message {
	return Message{"type": "text", "text": s, "size": size, "wrap": wrap}
}

func separator() Message {
	return Message{"type": "separator"}
}

func row(label, value string) Message {
	return box("horizontal",
		Message{"type": "text", "text": label, "size": "sm", "color": "#888888", "flex": 2},
		Message{"type": "text", "text": value, "size": "sm", "align": "end", "flex": 3},
	)
}

func trendColor(v float64) string {
	switch {
	case v > 0:
		return colorUp
	case v < 0:
		return colorDown
	}
	return colorFlat
}
