package optionsflow

import (
	"math"
	"sort"
)

// CalculateMaxPain returns the strike at which option writers owe the least
// to holders of open interest at settlement. Ties resolve to the lowest strike.
// Returns 0 for an empty chain.
func CalculateMaxPain(contracts []OptionContract) float64 {
	if len(contracts) == 0 {
		return 0
	}

	strikes := distinctStrikes(contracts)

	minLoss := math.Inf(1)
	maxPain := 0.0
	for _, settle := range strikes {
		loss := WriterLoss(contracts, settle)
		if loss < minLoss {
			minLoss = loss
			maxPain = settle
		}
	}

	return maxPain
}

// WriterLoss is the aggregate intrinsic value owed by writers if the underlying settles at price
func WriterLoss(contracts []OptionContract, price float64) float64 {
	total := 0.0
	for _, c := range contracts {
		if c.OpenInterest <= 0 {
			continue
		}
		switch {
		case c.Side == SideCall && c.Strike < price:
			total += (price - c.Strike) * float64(c.OpenInterest)
		case c.Side == SidePut && c.Strike > price:
			total += (c.Strike - price) * float64(c.OpenInterest)
		}
	}
	return total
}

func distinctStrikes(contracts []OptionContract) []float64 {
	seen := make(map[float64]struct{}, len(contracts))
	strikes := make([]float64, 0, len(contracts)/2+1)
	for _, c := range contracts {
		if _, ok := seen[c.Strike]; ok {
			continue
		}
		seen[c.Strike] = struct{}{}
		strikes = append(strikes, c.Strike)
	}
	sort.Float64s(strikes)
	return strikes
}
