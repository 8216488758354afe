package workflow

import (
	"github.com/shopspring/decimal"
)

// TieredRate is a per-day charge that steps up every Interval days.
//
// Day n (1-indexed) costs Base + Step*tier for additive increases and
// Base * (1+Step)^tier for multiplicative ones, where tier = (n-1)/Interval.
// Interval <= 0 disables tiering.
type TieredRate struct {
	Base     decimal.Decimal
	Step     decimal.Decimal
	Interval int
	Type     IncreaseType
}

var one = decimal.NewFromInt(1)

func (r TieredRate) tier(day int) int {
	if r.Interval <= 0 {
		return 0
	}
	return (day - 1) / r.Interval
}

func (r TieredRate) rateForTier(tier int) decimal.Decimal {
	if tier == 0 {
		return r.Base
	}
	t := decimal.NewFromInt(int64(tier))
	if r.Type == IncreaseTypeMultiplicative {
		return r.Base.Mul(one.Add(r.Step).Pow(t))
	}
	return r.Base.Add(r.Step.Mul(t))
}

// DailyRate is the charge for day n.
func (r TieredRate) DailyRate(day int) decimal.Decimal {
	if day < 1 {
		return decimal.Zero
	}
	return r.rateForTier(r.tier(day))
}

// Accrued is the total for days 1..days, rounded to cents. Additive rates use
// the arithmetic series; multiplicative rates sum whole tiers.
func (r TieredRate) Accrued(days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	if r.Interval <= 0 || r.Step.IsZero() {
		return r.Base.Mul(decimal.NewFromInt(int64(days))).Round(2)
	}

	full := days / r.Interval
	rem := days % r.Interval
	interval := decimal.NewFromInt(int64(r.Interval))

	var total decimal.Decimal
	if r.Type == IncreaseTypeMultiplicative {
		for k := 0; k < full; k++ {
			total = total.Add(r.rateForTier(k).Mul(interval))
		}
	} else {
		// full tiers: interval*(full*base + step*full*(full-1)/2)
		f := decimal.NewFromInt(int64(full))
		series := decimal.NewFromInt(int64(full) * int64(full-1) / 2)
		total = interval.Mul(f.Mul(r.Base).Add(r.Step.Mul(series)))
	}
	if rem > 0 {
		total = total.Add(r.rateForTier(full).Mul(decimal.NewFromInt(int64(rem))))
	}
	return total.Round(2)
}

// AccruedByLoop sums day by day. Kept as the reference for Accrued.
func (r TieredRate) AccruedByLoop(days int) decimal.Decimal {
	total := decimal.Zero
	for n := 1; n <= days; n++ {
		total = total.Add(r.DailyRate(n))
	}
	return total.Round(2)
}

// Delta is the charge for days from+1..to; zero when to <= from.
func (r TieredRate) Delta(from, to int) decimal.Decimal {
	if to <= from {
		return decimal.Zero
	}
	if from < 0 {
		from = 0
	}
	return r.Accrued(to).Sub(r.Accrued(from))
}
