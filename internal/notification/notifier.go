// Package notification delivers trading events (fills, rejections, outages)
// to external channels: the log, a generic webhook or a Telegram chat.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"papertrade/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel        `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// FillAlert describes a committed trade.
func FillAlert(rec model.TradeRecord) Alert {
	a := Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s %s filled", rec.Type, rec.Symbol),
		Message: fmt.Sprintf("%s %d %s @ %s (total %s)",
			rec.Type, rec.Quantity, rec.Symbol, rec.Price.StringFixed(2), rec.TotalValue.StringFixed(2)),
		Fields: map[string]string{
			"account":  rec.AccountID,
			"symbol":   rec.Symbol,
			"side":     string(rec.Type),
			"quantity": fmt.Sprint(rec.Quantity),
			"price":    rec.Price.StringFixed(2),
			"trade_id": fmt.Sprint(rec.ID),
		},
	}
	if rec.RealizedPnL != nil {
		a.Fields["realized_pnl"] = rec.RealizedPnL.StringFixed(2)
		a.Message += ", realized " + rec.RealizedPnL.StringFixed(2)
	}
	return a
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	args := []any{"level", string(alert.Level), "title", alert.Title}
	for k, v := range alert.Fields {
		args = append(args, k, v)
	}
	lvl := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		lvl = slog.LevelWarn
	case AlertCritical:
		lvl = slog.LevelError
	}
	n.log.Log(ctx, lvl, alert.Message, args...)
	return nil
}

// Multi sends every alert to all of its notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
