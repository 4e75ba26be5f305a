package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtf-tracker/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFormatINR(t *testing.T) {
	assert.Equal(t, "₹1,234.50", FormatINR(d("1234.5")))
	assert.Equal(t, "₹0.00", FormatINR(decimal.Zero))
	assert.Equal(t, "-₹40.05", FormatINR(d("-40.05")))
	assert.Equal(t, "₹0.13", FormatINR(d("0.125")))
}

func sampleExit(pnl string, resolved bool) model.ExitRecord {
	return model.ExitRecord{
		Symbol:          "INFY-EQ",
		Quantity:        40,
		AveragePrice:    d("100"),
		ExitPrice:       d("120"),
		PriceResolved:   resolved,
		RealizedPnL:     d(pnl),
		RealizedPercent: d("20"),
		TradeTime:       time.Date(2026, 10, 14, 4, 30, 0, 0, time.UTC),
	}
}

func TestExitAlert(t *testing.T) {
	e := sampleExit("800", true)
	a := ExitAlert(&e)
	assert.Equal(t, AlertInfo, a.Level)
	assert.Equal(t, "Exit INFY-EQ x40", a.Title)
	assert.Contains(t, a.Message, "₹800.00")
	assert.Equal(t, "14-Oct-2026 10:00:00", a.Fields["trade_t"])

	loss := sampleExit("-50", true)
	assert.Equal(t, AlertWarning, ExitAlert(&loss).Level)

	unknown := sampleExit("0", false)
	ua := ExitAlert(&unknown)
	assert.Equal(t, AlertCritical, ua.Level)
	assert.Contains(t, ua.Message, "exit price unavailable")
}

type captureNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (c *captureNotifier) Send(_ context.Context, a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.err
}

func TestMultiAndExitAlerts(t *testing.T) {
	ok := &captureNotifier{}
	bad := &captureNotifier{err: errors.New("down")}

	n := ExitAlerts{N: Multi{ok, bad, NewLogNotifier(nil)}}
	err := n.NotifyExits(context.Background(), []model.ExitRecord{sampleExit("1", true), sampleExit("2", true)})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Len(t, ok.alerts, 2)
	assert.Len(t, bad.alerts, 2)
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(srv.URL)
	require.NoError(t, w.Send(context.Background(), Alert{Level: AlertInfo, Title: "t", Message: "m", Fields: map[string]string{"k": "v"}}))
	assert.Equal(t, "t", got["title"])
	assert.Equal(t, map[string]interface{}{"k": "v"}, got["fields"])
}

func TestWebhookNotifier_Signed(t *testing.T) {
	var sig string
	var raw []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get(SignatureHeader)
		raw, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(srv.URL).WithSecret("s3cret")
	require.NoError(t, w.Send(context.Background(), Alert{Title: "t"}))
	assert.Equal(t, Sign([]byte("s3cret"), raw), sig)
	assert.Len(t, sig, 64)
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook: unexpected status 500")
}

func TestTelegramNotifier(t *testing.T) {
	var body struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42")
	tg.baseURL = srv.URL
	require.NoError(t, tg.Send(context.Background(), Alert{Level: AlertWarning, Title: "Exit INFY-EQ x40", Message: "P&L -₹50.00"}))

	assert.Equal(t, "42", body.ChatID)
	assert.Equal(t, "MarkdownV2", body.ParseMode)
	assert.True(t, strings.HasPrefix(body.Text, "⚠️"))
	assert.Contains(t, body.Text, `INFY\-EQ`)
}

func TestTelegramText(t *testing.T) {
	got := telegramText(Alert{Level: AlertCritical, Title: "T", Message: "m", Fields: map[string]string{"b": "2", "a": "1.5"}})
	assert.Equal(t, "🚨 *T*\n\nm\n\n`a` 1\\.5\n`b` 2", got)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\.c\!`, escapeMarkdown("a_b.c!"))
	assert.Equal(t, "₹12", escapeMarkdown("₹12"))
}
