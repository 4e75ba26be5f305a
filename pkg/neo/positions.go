package neo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mtf-tracker/internal/model"
)

type positionWire struct {
	Prod     string  `json:"prod"`
	TrdSym   string  `json:"trdSym"`
	CfBuyQty flexNum `json:"cfBuyQty"`
	FlBuyQty flexNum `json:"flBuyQty"`
	BuyAmt   flexNum `json:"buyAmt"`
	CfBuyAmt flexNum `json:"cfBuyAmt"`
}

// Positions fetches the position book. A missing data field is an empty
// book; a data field that is not a list is malformed.
func (c *Client) Positions(ctx context.Context, sess *model.Session) ([]model.RawPositionRow, error) {
	if sess == nil {
		return nil, errors.New("neo: nil session")
	}
	data, err := c.getData(ctx, sessionURL(sess.BaseURL, "user.positions"), c.sessionHeaders(sess.BearerToken, sess.SessionID))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return []model.RawPositionRow{}, nil
	}

	var wire []positionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: positions: %v", ErrMalformed, err)
	}

	rows := make([]model.RawPositionRow, 0, len(wire))
	for _, p := range wire {
		rows = append(rows, model.RawPositionRow{
			Category:  p.Prod,
			Symbol:    p.TrdSym,
			BuyQty:    p.CfBuyQty.Int() + p.FlBuyQty.Int(),
			BuyAmount: p.BuyAmt.Add(p.CfBuyAmt.Decimal),
		})
	}
	return rows, nil
}
