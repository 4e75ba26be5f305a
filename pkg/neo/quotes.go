package neo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"mtf-tracker/internal/model"
)

type ltpWire struct {
	DisplaySymbol string  `json:"display_symbol"`
	LTP           flexNum `json:"ltp"`
}

// LTP returns the last traded price of symbol on an exchange segment
// such as "nse_cm". The quote endpoint replies with a bare JSON list.
func (c *Client) LTP(ctx context.Context, sess *model.Session, segment, symbol string) (decimal.Decimal, error) {
	if sess == nil {
		return decimal.Zero, errors.New("neo: nil session")
	}
	path := fmt.Sprintf(routes["quotes.ltp"], url.PathEscape(segment), url.PathEscape(symbol))
	h := http.Header{}
	h.Set("Authorization", c.accessToken)
	h.Set("accept", "application/json")

	raw, err := c.do(ctx, http.MethodGet, strings.TrimRight(sess.BaseURL, "/")+path, h, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var quotes []ltpWire
	if err := json.Unmarshal(raw, &quotes); err != nil {
		// error replies come wrapped in the usual envelope
		var env envelope
		if json.Unmarshal(raw, &env) == nil {
			if apiErr := env.apiError(); apiErr != nil {
				return decimal.Zero, apiErr
			}
		}
		return decimal.Zero, fmt.Errorf("%w: quote: %v", ErrMalformed, err)
	}
	if len(quotes) == 0 {
		return decimal.Zero, fmt.Errorf("%w: empty quote list for %s", ErrMalformed, symbol)
	}
	return quotes[0].LTP.Decimal, nil
}
