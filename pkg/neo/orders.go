package neo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mtf-tracker/internal/model"
)

type orderWire struct {
	Sym     string  `json:"sym"`
	TrdSym  string  `json:"trdSym"`
	Side    string  `json:"side"`
	TrnsTp  string  `json:"trnsTp"`
	Qty     flexNum `json:"qty"`
	AvgPrc  flexNum `json:"avgPrc"`
	Prod    string  `json:"prod"`
	Stat    string  `json:"stat"`
	OrdSt   string  `json:"ordSt"`
	OrdDtTm string  `json:"ordDtTm"`
}

// Orders fetches the order book. Rows are returned unfiltered.
func (c *Client) Orders(ctx context.Context, sess *model.Session) ([]model.RawOrderRow, error) {
	if sess == nil {
		return nil, errors.New("neo: nil session")
	}
	data, err := c.getData(ctx, sessionURL(sess.BaseURL, "user.orders"), c.sessionHeaders(sess.BearerToken, sess.SessionID))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return []model.RawOrderRow{}, nil
	}

	var wire []orderWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: orders: %v", ErrMalformed, err)
	}

	rows := make([]model.RawOrderRow, 0, len(wire))
	for _, o := range wire {
		rows = append(rows, model.RawOrderRow{
			Symbol:   firstNonEmpty(o.Sym, o.TrdSym),
			Side:     firstNonEmpty(o.Side, o.TrnsTp),
			Quantity: o.Qty.Int(),
			AvgPrice: o.AvgPrc.Decimal,
			Product:  o.Prod,
			Status:   firstNonEmpty(o.Stat, o.OrdSt),
			Time:     o.OrdDtTm,
		})
	}
	return rows, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
