package neo

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// flexNum decodes the broker's numeric fields, which arrive as JSON
// numbers, quoted numbers, empty strings or null.
type flexNum struct {
	decimal.Decimal
}

func (f *flexNum) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		f.Decimal = decimal.Zero
		return nil
	}
	s := strings.Trim(string(b), `"`)
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		f.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("neo: bad number %q: %w", s, err)
	}
	f.Decimal = d
	return nil
}

// Int returns the integer part.
func (f flexNum) Int() int64 { return f.Decimal.IntPart() }
