package optionsflow_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/internal/domain/optionsflow"
)

func tracked(c optionsflow.OptionContract) optionsflow.TrackedContract {
	return optionsflow.TrackedContract{OptionContract: c, Present: true, VOIRatio: optionsflow.VOIRatio(c)}
}

func narrativeFor(ticker string, spot float64, contracts ...optionsflow.OptionContract) optionsflow.AnalysisNarrative {
	return optionsflow.Analyze(&optionsflow.ChainSnapshot{
		Ticker:       ticker,
		CurrentPrice: spot,
		Contracts:    contracts,
	}).Analysis
}

func assertNoTrade(t *testing.T, plan optionsflow.TradingPlan) {
	t.Helper()
	assert.Equal(t, "No trade", plan.Entry)
	assert.Equal(t, "No trade", plan.Target)
	assert.Equal(t, "No trade", plan.StopLoss)
}

func TestGenerateNarrative_Conflict(t *testing.T) {
	n := narrativeFor("AAPL", 101,
		call(100, 1000, 200, 2.0),
		put(100, 200, 1000, 1.5),
	)

	assert.Equal(t, optionsflow.DirectionConflict, n.ConsensusDirection)
	assert.Equal(t, optionsflow.StanceNone, n.Stance)
	assert.Contains(t, n.ConsensusText, "$100 Put")
	assert.Contains(t, n.ConsensusText, "$100 Call")
	assert.Contains(t, n.FinalText, "high-uncertainty")
	assert.Contains(t, n.StrategicJudgement, "Stand aside")
	assertNoTrade(t, n.TradingPlan)
}

func TestGenerateNarrative_ConflictIgnoresPutCallRatio(t *testing.T) {
	for _, pcr := range []float64{0, 0.3, 1, 4.2} {
		n := optionsflow.GenerateNarrative(optionsflow.NarrativeInput{
			Ticker:       "QQQ",
			CurrentPrice: 100,
			Metrics: optionsflow.Layer2Metrics{
				MaxVolume:       tracked(call(105, 1, 0, 0)),
				MaxOpenInterest: tracked(put(95, 0, 90000, 0)),
				PutCallRatio:    pcr,
			},
		})
		assert.Equal(t, optionsflow.DirectionConflict, n.ConsensusDirection, "pcr %v", pcr)
	}

	// An absent tracker never conflicts
	n := optionsflow.GenerateNarrative(optionsflow.NarrativeInput{
		Ticker:       "QQQ",
		CurrentPrice: 100,
		Metrics: optionsflow.Layer2Metrics{
			MaxVolume:    tracked(call(105, 10, 0, 0)),
			PutCallRatio: 0.5,
		},
	})
	assert.NotEqual(t, optionsflow.DirectionConflict, n.ConsensusDirection)
}

func TestGenerateNarrative_FavorableLong(t *testing.T) {
	n := narrativeFor("NVDA", 100,
		call(110, 2000, 1000, 1.5),
		put(90, 300, 400, 1.0),
	)

	assert.Equal(t, optionsflow.DirectionUp, n.ConsensusDirection)
	assert.Equal(t, optionsflow.StanceLong, n.Stance)
	assert.Contains(t, n.ConsensusText, "$110 Call")
	assert.Contains(t, n.ConsensusText, "(0.15)")
	assert.Contains(t, n.VariableText, "(2.00)")
	assert.Contains(t, n.FinalText, "strong 'bullish' consensus")
	assert.Contains(t, n.StrategicJudgement, "Favorable for long")
	// max pain 90 is 10% under spot during an up call
	assert.Contains(t, n.StrategicJudgement, "max pain ($90) sits below")
	assert.Contains(t, n.SqueezeText, "Gamma squeeze potential")
	assert.Contains(t, n.SqueezeText, "short-interest")

	assert.Equal(t, "Near the current price ($100.00) or on a breakout above key resistance", n.TradingPlan.Entry)
	assert.Equal(t, "$108.90 ~ $110.00 (key resistance)", n.TradingPlan.Target)
	assert.Equal(t, "$89.10 (key support or near max pain)", n.TradingPlan.StopLoss)
}

func TestGenerateNarrative_LongTargetRoundsBelowHalfCent(t *testing.T) {
	// 101.5 * 0.99 is stored as 100.48499...
	n := narrativeFor("NVDA", 100,
		call(101.5, 2000, 1000, 1.5),
		put(90, 300, 400, 1.0),
	)

	require.Equal(t, optionsflow.StanceLong, n.Stance)
	assert.Equal(t, "$100.48 ~ $101.50 (key resistance)", n.TradingPlan.Target)
	assert.Equal(t, "$89.10 (key support or near max pain)", n.TradingPlan.StopLoss)
}

func TestGenerateNarrative_FavorableShort(t *testing.T) {
	n := narrativeFor("TSLA", 100,
		put(90, 2000, 1000, 2.0),
		call(110, 300, 400, 1.0),
	)

	assert.Equal(t, optionsflow.DirectionDown, n.ConsensusDirection)
	assert.Equal(t, optionsflow.StanceShort, n.Stance)
	assert.Contains(t, n.ConsensusText, "pessimistic")
	assert.Contains(t, n.StrategicJudgement, "Favorable for short")
	assert.NotContains(t, n.StrategicJudgement, "Caution: max pain")
	assert.Contains(t, n.SqueezeText, "No notable squeeze signal")

	assert.Equal(t, "$90.00 ~ $90.90 (key support)", n.TradingPlan.Target)
	assert.Equal(t, "$103.00 (key resistance or near max pain)", n.TradingPlan.StopLoss)
}

func TestGenerateNarrative_UpWithStrikeBelowSpot(t *testing.T) {
	n := narrativeFor("AMD", 150,
		call(140, 2000, 1000, 12),
		put(130, 100, 300, 0.5),
	)

	assert.Equal(t, optionsflow.DirectionUp, n.ConsensusDirection)
	assert.Equal(t, optionsflow.StanceNone, n.Stance)
	assert.Contains(t, n.StrategicJudgement, "profit-taking")
	assertNoTrade(t, n.TradingPlan)
}

func TestGenerateNarrative_MixedWithOpposingNewMoney(t *testing.T) {
	n := narrativeFor("META", 100,
		put(95, 1000, 3000, 1.2),
		call(105, 900, 100, 0.9),
		call(110, 900, 100, 0.4),
	)

	assert.Equal(t, optionsflow.DirectionMixed, n.ConsensusDirection)
	assert.Contains(t, n.FinalText, "tug-of-war")
	assert.Contains(t, n.StrategicJudgement, "standing aside")
	// squeeze is independent of the consensus
	assert.Contains(t, n.SqueezeText, "$105 strike")
	assertNoTrade(t, n.TradingPlan)
}

func TestGenerateNarrative_InfiniteVOIRendersSymbol(t *testing.T) {
	n := optionsflow.GenerateNarrative(optionsflow.NarrativeInput{
		Ticker:       "SPY",
		CurrentPrice: 500,
		Metrics: optionsflow.Layer2Metrics{
			MaxVOI: optionsflow.TrackedContract{
				OptionContract: call(520, 600, 0, 0.2),
				Present:        true,
				VOIRatio:       optionsflow.Ratio(math.Inf(1)),
			},
		},
	})

	assert.Contains(t, n.VariableText, "(∞)")
	assert.Contains(t, n.VariableText, "$520 Call")
}

func TestGenerateNarrative_EmptyMetrics(t *testing.T) {
	n := optionsflow.GenerateNarrative(optionsflow.NarrativeInput{Ticker: "XYZ"})

	assert.Equal(t, optionsflow.DirectionMixed, n.ConsensusDirection)
	assert.Contains(t, n.ConsensusText, "$N/A -")
	assert.Contains(t, n.VariableText, "No notable new-money")
	assert.Contains(t, n.FinalText, "trend is likely to continue")
	assertNoTrade(t, n.TradingPlan)
}

func TestGenerateNarrative_MaxPainCautionOnDownCall(t *testing.T) {
	in := optionsflow.NarrativeInput{
		Ticker:       "IWM",
		CurrentPrice: 100,
		Metrics: optionsflow.Layer2Metrics{
			MaxVolume:       tracked(put(95, 900, 100, 1)),
			MaxOpenInterest: tracked(put(95, 900, 100, 1)),
			PutCallRatio:    1.8,
		},
		MaxPainPrice: 110,
	}

	n := optionsflow.GenerateNarrative(in)
	require.Equal(t, optionsflow.DirectionDown, n.ConsensusDirection)
	assert.Contains(t, n.StrategicJudgement, "max pain ($110) sits above")
	assert.Equal(t, "$111.10 (key resistance or near max pain)", n.TradingPlan.StopLoss)

	// within 5% of spot no caution is added
	in.MaxPainPrice = 104
	n = optionsflow.GenerateNarrative(in)
	assert.NotContains(t, n.StrategicJudgement, "max pain")
	assert.Equal(t, "$105.04 (key resistance or near max pain)", n.TradingPlan.StopLoss)
}
