// Package notification delivers exit alerts to external channels
// (log, Telegram, generic webhooks).
package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mtf-tracker/internal/markethours"
	"mtf-tracker/internal/model"
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

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	fields := []zap.Field{zap.String("level", string(alert.Level)), zap.String("message", alert.Message)}
	for k, v := range alert.Fields {
		fields = append(fields, zap.String(k, v))
	}
	n.log.Info(alert.Title, fields...)
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
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

// ExitAlerts turns realized exits into one alert each.
type ExitAlerts struct {
	N Notifier
}

// NotifyExits implements tracker.ExitNotifier.
func (e ExitAlerts) NotifyExits(ctx context.Context, exits []model.ExitRecord) error {
	var errs []error
	for i := range exits {
		if err := e.N.Send(ctx, ExitAlert(&exits[i])); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", exits[i].Symbol, err))
		}
	}
	return errors.Join(errs...)
}

// ExitAlert formats one exit. Losses are warnings; an exit without a
// reference price is critical because its P&L is unknown.
func ExitAlert(r *model.ExitRecord) Alert {
	a := Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("Exit %s x%d", r.Symbol, r.Quantity),
		Fields: map[string]string{
			"symbol":  r.Symbol,
			"qty":     fmt.Sprint(r.Quantity),
			"avg":     FormatINR(r.AveragePrice),
			"exit":    FormatINR(r.ExitPrice),
			"pnl":     FormatINR(r.RealizedPnL),
			"pct":     r.RealizedPercent.StringFixed(2) + "%",
			"trade_t": r.TradeTime.In(markethours.IST).Format("02-Jan-2006 15:04:05"),
		},
	}
	switch {
	case !r.PriceResolved:
		a.Level = AlertCritical
		a.Message = fmt.Sprintf("%d shares closed at avg %s, exit price unavailable",
			r.Quantity, FormatINR(r.AveragePrice))
	default:
		if r.RealizedPnL.IsNegative() {
			a.Level = AlertWarning
		}
		a.Message = fmt.Sprintf("%d shares closed at %s (avg %s), P&L %s (%s%%)",
			r.Quantity, FormatINR(r.ExitPrice), FormatINR(r.AveragePrice),
			FormatINR(r.RealizedPnL), r.RealizedPercent.StringFixed(2))
	}
	return a
}
