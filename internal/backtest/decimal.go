package backtest

import (
	"math"

	"github.com/shopspring/decimal"
)

var decOne = decimal.NewFromInt(1)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// buyCost = shares·price·(1+rate)
func buyCost(shares int64, price, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(shares).Mul(price).Mul(decOne.Add(rate))
}

// sellProceeds = shares·price·(1-rate)
func sellProceeds(shares int64, price, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(shares).Mul(price).Mul(decOne.Sub(rate))
}

// affordableShares 预算内按最小手数向下取整可买的股数。
func affordableShares(budget, price, rate decimal.Decimal, lot int64) int64 {
	if lot <= 0 {
		lot = 1
	}
	unit := price.Mul(decOne.Add(rate)).Mul(decimal.NewFromInt(lot))
	if !unit.IsPositive() || !budget.IsPositive() {
		return 0
	}
	lots := budget.Div(unit).Floor().IntPart()
	shares := lots * lot
	// Div 有精度截断，回算一次确保不超预算
	for shares > 0 && buyCost(shares, price, rate).GreaterThan(budget) {
		shares -= lot
	}
	return shares
}
