package optionsflow

import "math"

const (
	// MinVolumeForVOI is the volume a contract needs to compete for the max V/OI slot
	MinVolumeForVOI = 100

	// MinVolumeForSignal is the volume above which a V/OI contract counts as a new-money signal
	MinVolumeForSignal = 500
)

// VOIRatio is volume over open interest; +Inf when only volume exists, 0 when neither does
func VOIRatio(c OptionContract) Ratio {
	switch {
	case c.OpenInterest > 0:
		return Ratio(float64(c.Volume) / float64(c.OpenInterest))
	case c.Volume > 0:
		return Ratio(math.Inf(1))
	default:
		return 0
	}
}

// layer2Fold is the single-pass accumulator behind CalculateLayer2Metrics
type layer2Fold struct {
	callVolume int64
	putVolume  int64

	maxVolume TrackedContract
	maxOI     TrackedContract
	maxVOI    TrackedContract
}

func (f layer2Fold) add(c OptionContract) layer2Fold {
	tracked := TrackedContract{OptionContract: c, Present: true, VOIRatio: VOIRatio(c)}

	if c.Side == SideCall {
		f.callVolume += c.Volume
	} else {
		f.putVolume += c.Volume
	}

	// Strict comparisons keep the first contract on ties
	if !f.maxVolume.Present || c.Volume > f.maxVolume.Volume {
		f.maxVolume = tracked
	}
	if !f.maxOI.Present || c.OpenInterest > f.maxOI.OpenInterest {
		f.maxOI = tracked
	}
	if c.Volume >= MinVolumeForVOI && (!f.maxVOI.Present || tracked.VOIRatio > f.maxVOI.VOIRatio) {
		f.maxVOI = tracked
	}

	return f
}

// CalculateLayer2Metrics aggregates the chain in one pass. Trackers with no
// qualifying contract stay absent; an empty chain yields all-absent metrics.
func CalculateLayer2Metrics(contracts []OptionContract, currentPrice float64) Layer2Metrics {
	var fold layer2Fold
	for _, c := range contracts {
		fold = fold.add(c)
	}

	m := Layer2Metrics{
		MaxVolume:       withBreakEven(fold.maxVolume, currentPrice),
		MaxOpenInterest: withBreakEven(fold.maxOI, currentPrice),
		MaxVOI:          withBreakEven(fold.maxVOI, currentPrice),
		TotalCallVolume: fold.callVolume,
		TotalPutVolume:  fold.putVolume,
	}
	if fold.callVolume > 0 {
		m.PutCallRatio = float64(fold.putVolume) / float64(fold.callVolume)
	}

	return m
}

// withBreakEven fills the premium-adjusted break-even and the move it requires from spot
func withBreakEven(c TrackedContract, currentPrice float64) TrackedContract {
	if !c.Present {
		return TrackedContract{}
	}

	if c.Side == SideCall {
		c.BreakEvenPrice = c.Strike + c.LastPrice
	} else {
		c.BreakEvenPrice = c.Strike - c.LastPrice
	}

	c.RequiredMovePercent = 0
	if currentPrice > 0 {
		c.RequiredMovePercent = (c.BreakEvenPrice - currentPrice) / currentPrice * 100
	}

	return c
}
