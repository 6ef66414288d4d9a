package optionsflow

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	// squeezePutCallCeiling is the put/call ratio below which call-heavy flow can fuel a squeeze
	squeezePutCallCeiling = 0.6

	// maxPainCautionDistance is the relative spot distance beyond which max pain earns a caution clause
	maxPainCautionDistance = 0.05

	noTrade = "No trade"

	shortInterestReminder = " (Note: if the short-interest ratio is high, above 20%, also weigh short-squeeze potential.)"
)

// NarrativeInput is the immutable input of the narrative engine
type NarrativeInput struct {
	Ticker       string
	CurrentPrice float64
	Metrics      Layer2Metrics
	MaxPainPrice float64
}

// signals are the boolean facts every rule reads, evaluated once in order
type signals struct {
	conflict  bool
	consensus TrackedContract
	direction Direction
	strongVOI bool
	confirmed bool
	mainForce TrackedContract
	stance    Stance
}

// GenerateNarrative runs the rule cascade: conflict, consensus, variable signal,
// trend confirmation, strategic judgement, squeeze check and trading plan.
func GenerateNarrative(in NarrativeInput) AnalysisNarrative {
	s := evaluateSignals(in)

	return AnalysisNarrative{
		ConsensusDirection: s.direction,
		Stance:             s.stance,
		ConsensusText:      consensusText(in, s),
		VariableText:       variableText(in),
		FinalText:          finalText(in, s),
		StrategicJudgement: strategicJudgement(in, s),
		SqueezeText:        squeezeText(in),
		TradingPlan:        tradingPlan(in, s),
	}
}

func evaluateSignals(in NarrativeInput) signals {
	m := in.Metrics
	s := signals{
		conflict:  isConflict(m),
		consensus: consensusContract(m),
		strongVOI: m.MaxVOI.Volume > MinVolumeForSignal,
	}

	s.direction = classifyDirection(s.conflict, s.consensus, m.PutCallRatio)
	s.confirmed = (s.direction == DirectionUp && m.MaxVOI.Present && m.MaxVOI.Side == SideCall) ||
		(s.direction == DirectionDown && m.MaxVOI.Present && m.MaxVOI.Side == SidePut)

	s.mainForce = s.consensus
	if m.MaxVOI.Volume > s.consensus.Volume {
		s.mainForce = m.MaxVOI
	}
	s.stance = classifyStance(s.direction, s.mainForce, in.CurrentPrice)

	return s
}

// isConflict: fresh money (max volume) and standing positions (max OI) sit on opposite sides
func isConflict(m Layer2Metrics) bool {
	return m.MaxVolume.Present && m.MaxOpenInterest.Present &&
		m.MaxVolume.Side != m.MaxOpenInterest.Side
}

func consensusContract(m Layer2Metrics) TrackedContract {
	if m.MaxOpenInterest.OpenInterest > m.MaxVolume.Volume {
		return m.MaxOpenInterest
	}
	return m.MaxVolume
}

func classifyDirection(conflict bool, consensus TrackedContract, putCallRatio float64) Direction {
	switch {
	case conflict:
		return DirectionConflict
	case putCallRatio < 1 && consensus.Present && consensus.Side == SideCall:
		return DirectionUp
	case putCallRatio > 1 && consensus.Present && consensus.Side == SidePut:
		return DirectionDown
	default:
		return DirectionMixed
	}
}

func classifyStance(direction Direction, mainForce TrackedContract, currentPrice float64) Stance {
	if !mainForce.Present {
		return StanceNone
	}
	switch {
	case direction == DirectionUp && mainForce.Strike > currentPrice:
		return StanceLong
	case direction == DirectionDown && mainForce.Strike < currentPrice:
		return StanceShort
	default:
		return StanceNone
	}
}

func consensusText(in NarrativeInput, s signals) string {
	m := in.Metrics
	if s.conflict {
		return fmt.Sprintf(
			"Existing positioning (max OI) is concentrated around the $%s %s, while new money (max volume) is pushing the opposite way through the $%s %s; the two sides are in a tug-of-war.",
			m.MaxOpenInterest.StrikeLabel(), m.MaxOpenInterest.SideLabel(),
			m.MaxVolume.StrikeLabel(), m.MaxVolume.SideLabel(),
		)
	}

	sentiment := "optimistic (expecting upside)"
	if m.PutCallRatio > 1 {
		sentiment = "pessimistic (fearing downside)"
	}
	return fmt.Sprintf(
		"Market attention (max volume/open interest) is focused on the $%s %s option, and the put/call ratio (%s) reflects %s sentiment.",
		s.consensus.StrikeLabel(), s.consensus.SideLabel(), formatFixed(m.PutCallRatio), sentiment,
	)
}

func variableText(in NarrativeInput) string {
	voi := in.Metrics.MaxVOI
	if voi.Volume <= MinVolumeForSignal {
		return "No notable new-money inflow signal shows up in V/OI."
	}
	return fmt.Sprintf(
		"Meanwhile, the $%s %s option shows a high V/OI ratio (%s) with strong 'new money' flowing in.",
		voi.StrikeLabel(), voi.SideLabel(), formatRatio(voi.VOIRatio),
	)
}

func finalText(in NarrativeInput, s signals) string {
	switch {
	case s.conflict:
		return fmt.Sprintf(
			"In conclusion, %s is in a high-uncertainty state where existing and new positioning collide, making the short-term direction very hard to call.",
			in.Ticker,
		)
	case s.confirmed && s.strongVOI:
		return fmt.Sprintf(
			"In conclusion, a strong '%s' consensus is forming for %s. Existing interest and new money agree, so the trend is likely to strengthen.",
			s.direction.Label(), in.Ticker,
		)
	case !s.confirmed && s.strongVOI:
		return fmt.Sprintf(
			"In conclusion, %s leans '%s', but an opposing %s bet has appeared; the tug-of-war leaves the setup unstable.",
			in.Ticker, s.direction.Label(), in.Metrics.MaxVOI.SideLabel(),
		)
	default:
		return fmt.Sprintf(
			"In conclusion, %s has an established '%s' bias and, with no notable variable, the current trend is likely to continue.",
			in.Ticker, s.direction.Label(),
		)
	}
}

func strategicJudgement(in NarrativeInput, s signals) string {
	m := in.Metrics
	var text string

	switch s.direction {
	case DirectionConflict:
		return fmt.Sprintf(
			"Stand aside. Max volume (%s) and max open interest (%s) point in opposite directions; waiting for clarity is the safest strategy.",
			m.MaxVolume.SideLabel(), m.MaxOpenInterest.SideLabel(),
		)
	case DirectionUp:
		if s.stance == StanceLong {
			text = fmt.Sprintf(
				"Favorable for long. Key capital targets the $%s strike, above the current price ($%s).",
				s.mainForce.StrikeLabel(), formatFixed(in.CurrentPrice),
			)
		} else {
			text = fmt.Sprintf(
				"Caution. The main call strike ($%s) is already below the current price, so short-term profit-taking may follow.",
				s.mainForce.StrikeLabel(),
			)
		}
	case DirectionDown:
		if s.stance == StanceShort {
			text = fmt.Sprintf(
				"Favorable for short. Key capital targets the $%s strike, below the current price ($%s).",
				s.mainForce.StrikeLabel(), formatFixed(in.CurrentPrice),
			)
		} else {
			text = fmt.Sprintf(
				"Caution. The main put strike ($%s) is already above the current price, so a technical rebound is possible.",
				s.mainForce.StrikeLabel(),
			)
		}
	default:
		text = "Favor standing aside (mixed signals)."
	}

	return text + maxPainCaution(in, s.direction)
}

// maxPainCaution flags a max-pain level far from spot that works against the consensus
func maxPainCaution(in NarrativeInput, direction Direction) string {
	if in.MaxPainPrice <= 0 {
		return ""
	}
	if math.Abs((in.MaxPainPrice-in.CurrentPrice)/in.CurrentPrice) <= maxPainCautionDistance {
		return ""
	}

	switch {
	case direction == DirectionUp && in.MaxPainPrice < in.CurrentPrice:
		return fmt.Sprintf(
			" (Caution: max pain ($%s) sits below the current price, so downward pressure may build near expiration.)",
			formatStrike(in.MaxPainPrice),
		)
	case direction == DirectionDown && in.MaxPainPrice > in.CurrentPrice:
		return fmt.Sprintf(
			" (Caution: max pain ($%s) sits above the current price, so rebound pressure may build near expiration.)",
			formatStrike(in.MaxPainPrice),
		)
	default:
		return ""
	}
}

func squeezeText(in NarrativeInput) string {
	m := in.Metrics
	voi := m.MaxVOI

	text := "No notable squeeze signal detected."
	if m.PutCallRatio < squeezePutCallCeiling && voi.Present && voi.Side == SideCall &&
		voi.Strike > in.CurrentPrice && voi.Volume > MinVolumeForSignal {
		text = fmt.Sprintf(
			"⚠️ Gamma squeeze potential: strong new bets on out-of-the-money calls alongside a low put/call ratio. A move through the $%s strike could trigger a sharp rally.",
			voi.StrikeLabel(),
		)
	}

	return text + shortInterestReminder
}

func tradingPlan(in NarrativeInput, s signals) TradingPlan {
	target := s.consensus.Strike
	spot := formatFixed(in.CurrentPrice)

	switch s.stance {
	case StanceLong:
		stop := in.CurrentPrice * 0.97
		if in.MaxPainPrice > 0 {
			stop = math.Min(stop, in.MaxPainPrice*0.99)
		}
		return TradingPlan{
			Entry:    fmt.Sprintf("Near the current price ($%s) or on a breakout above key resistance", spot),
			Target:   fmt.Sprintf("$%s ~ $%s (key resistance)", formatFixed(target*0.99), formatFixed(target)),
			StopLoss: fmt.Sprintf("$%s (key support or near max pain)", formatFixed(stop)),
		}
	case StanceShort:
		stop := in.CurrentPrice * 1.03
		if in.MaxPainPrice > 0 {
			stop = math.Max(stop, in.MaxPainPrice*1.01)
		}
		return TradingPlan{
			Entry:    fmt.Sprintf("Near the current price ($%s) or on a breakdown below key support", spot),
			Target:   fmt.Sprintf("$%s ~ $%s (key support)", formatFixed(target), formatFixed(target*1.01)),
			StopLoss: fmt.Sprintf("$%s (key resistance or near max pain)", formatFixed(stop)),
		}
	default:
		return TradingPlan{Entry: noTrade, Target: noTrade, StopLoss: noTrade}
	}
}

// formatFixed renders a price with two decimals, rounding the exact binary
// value half away from zero: 1.005 is stored below the midpoint and gives 1.00.
// Thirty fractional digits keep every float at or above 0.001 on the correct
// side of a half-cent midpoint.
func formatFixed(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return decimal.RequireFromString(strconv.FormatFloat(v, 'f', 30, 64)).StringFixed(2)
}

// formatStrike renders a strike in its shortest exact form (100, 102.5)
func formatStrike(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func formatRatio(r Ratio) string {
	if r.IsInf() {
		return "∞"
	}
	return formatFixed(float64(r))
}
