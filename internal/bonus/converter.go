package bonus

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
)

// Converter turns non-spendable bonus points into spendable balance. The rate
// is ETB credited per point (the historical promotion was 100 points = 10
// birr, i.e. a rate of 0.1); results are rounded down to whole santim so the
// house never over-credits.
type Converter struct {
	rateETB decimal.Decimal
}

func NewConverter(ratePerPointETB float64) *Converter {
	return &Converter{rateETB: decimal.NewFromFloat(ratePerPointETB)}
}

// Convert returns the santim credited for redeeming points.
func (c *Converter) Convert(points int64) (int64, error) {
	if points <= 0 {
		return 0, fmt.Errorf("Convert: %w", domain.ErrInvalidAmount)
	}

	santim := decimal.NewFromInt(points).
		Mul(c.rateETB).
		Mul(decimal.NewFromInt(100)).
		Floor()

	credit := santim.IntPart()
	if credit <= 0 {
		return 0, fmt.Errorf("Convert: %d points below minimum redeemable unit: %w", points, domain.ErrInvalidAmount)
	}
	return credit, nil
}

// Rate exposes the configured ETB-per-point rate for display.
func (c *Converter) Rate() decimal.Decimal {
	return c.rateETB
}
