package optionsflow

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"optionsflow/pkg/errors"
)

// Side is the option right of a contract
type Side string

const (
	SideCall Side = "Call"
	SidePut  Side = "Put"
)

// emptySideLabel is how an absent tracked contract renders its side
const emptySideLabel = "-"

// emptyStrikeLabel is how an absent tracked contract renders its strike
const emptyStrikeLabel = "N/A"

// OptionContract is one side (call or put) at one strike for one expiration
type OptionContract struct {
	Side         Side    `json:"type"`
	Strike       float64 `json:"strike"`
	Volume       int64   `json:"vol"`
	OpenInterest int64   `json:"openInterest"`
	LastPrice    float64 `json:"lastPrice"`
}

// ChainSnapshot is the normalized, single-expiration input of one analysis run
type ChainSnapshot struct {
	Ticker          string           `json:"ticker"`
	CurrentPrice    float64          `json:"currentPrice"`
	ExpirationLabel string           `json:"expirationDate"`
	Contracts       []OptionContract `json:"options"`

	// MalformedFields counts present-but-unparseable numeric fields that were defaulted to 0
	MalformedFields int `json:"-"`
}

// Ratio is a float that may be +Inf. JSON has no infinity literal,
// so infinite values are encoded as the string "Infinity".
type Ratio float64

// IsInf reports whether the ratio is +Inf
func (r Ratio) IsInf() bool {
	return math.IsInf(float64(r), 1)
}

// MarshalJSON implements json.Marshaler
func (r Ratio) MarshalJSON() ([]byte, error) {
	if r.IsInf() {
		return []byte(`"Infinity"`), nil
	}
	return json.Marshal(float64(r))
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Ratio) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte(`"Infinity"`)) {
		*r = Ratio(math.Inf(1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Wrap(err, "decode ratio")
	}
	*r = Ratio(f)
	return nil
}

// TrackedContract is a contract selected by one of the Layer-2 maximum trackers.
// When no contract qualifies, Present is false and every numeric field is 0.
type TrackedContract struct {
	OptionContract
	Present             bool
	VOIRatio            Ratio
	BreakEvenPrice      float64
	RequiredMovePercent float64
}

// StrikeLabel renders the strike the way narratives show it, "N/A" when absent
func (c TrackedContract) StrikeLabel() string {
	if !c.Present {
		return emptyStrikeLabel
	}
	return formatStrike(c.Strike)
}

// SideLabel renders the side, "-" when absent
func (c TrackedContract) SideLabel() string {
	if !c.Present {
		return emptySideLabel
	}
	return string(c.Side)
}

// trackedContractJSON is the wire form; strike and type carry the "N/A"/"-" labels when absent
type trackedContractJSON struct {
	Side                string          `json:"type"`
	Strike              json.RawMessage `json:"strike"`
	Volume              int64           `json:"vol"`
	OpenInterest        int64           `json:"openInterest"`
	LastPrice           float64         `json:"lastPrice"`
	VOIRatio            Ratio           `json:"voiRatio"`
	BreakEvenPrice      float64         `json:"breakEvenPrice"`
	RequiredMovePercent float64         `json:"requiredMovePercent"`
}

// MarshalJSON implements json.Marshaler
func (c TrackedContract) MarshalJSON() ([]byte, error) {
	out := trackedContractJSON{
		Side:                c.SideLabel(),
		Strike:              json.RawMessage(strconv.Quote(emptyStrikeLabel)),
		Volume:              c.Volume,
		OpenInterest:        c.OpenInterest,
		LastPrice:           c.LastPrice,
		VOIRatio:            c.VOIRatio,
		BreakEvenPrice:      c.BreakEvenPrice,
		RequiredMovePercent: c.RequiredMovePercent,
	}
	if c.Present {
		strike, err := json.Marshal(c.Strike)
		if err != nil {
			return nil, err
		}
		out.Strike = strike
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (c *TrackedContract) UnmarshalJSON(data []byte) error {
	var in trackedContractJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return errors.Wrap(err, "decode tracked contract")
	}

	*c = TrackedContract{
		OptionContract: OptionContract{
			Side:         Side(in.Side),
			Volume:       in.Volume,
			OpenInterest: in.OpenInterest,
			LastPrice:    in.LastPrice,
		},
		VOIRatio:            in.VOIRatio,
		BreakEvenPrice:      in.BreakEvenPrice,
		RequiredMovePercent: in.RequiredMovePercent,
	}

	var strike float64
	if err := json.Unmarshal(in.Strike, &strike); err == nil {
		c.Strike = strike
		c.Present = true
		return nil
	}
	c.Side = ""
	return nil
}

// Layer2Metrics are the aggregate positioning statistics of one chain
type Layer2Metrics struct {
	MaxVolume       TrackedContract `json:"maxVolumeOption"`
	MaxOpenInterest TrackedContract `json:"maxOiOption"`
	MaxVOI          TrackedContract `json:"maxVoiOption"`
	PutCallRatio    float64         `json:"putCallRatio"`
	TotalCallVolume int64           `json:"totalCallVolume"`
	TotalPutVolume  int64           `json:"totalPutVolume"`
}

// Direction is the classified market consensus
type Direction string

const (
	DirectionUp       Direction = "up"
	DirectionDown     Direction = "down"
	DirectionMixed    Direction = "mixed"
	DirectionConflict Direction = "conflict"
)

// Label is the word narratives use for the direction
func (d Direction) Label() string {
	switch d {
	case DirectionUp:
		return "bullish"
	case DirectionDown:
		return "bearish"
	case DirectionConflict:
		return "signal conflict"
	default:
		return "mixed"
	}
}

// Stance is the trading bias derived from the strategic judgement
type Stance string

const (
	StanceNone  Stance = "none"
	StanceLong  Stance = "long"
	StanceShort Stance = "short"
)

// TradingPlan holds entry, target and stop descriptions
type TradingPlan struct {
	Entry    string `json:"entry"`
	Target   string `json:"target"`
	StopLoss string `json:"stopLoss"`
}

// AnalysisNarrative is the rule-based textual analysis of one ticker for one run
type AnalysisNarrative struct {
	ConsensusDirection Direction   `json:"consensusDirection"`
	Stance             Stance      `json:"stance"`
	ConsensusText      string      `json:"consensusText"`
	VariableText       string      `json:"variableText"`
	FinalText          string      `json:"finalText"`
	StrategicJudgement string      `json:"strategicJudgement"`
	SqueezeText        string      `json:"squeezeText"`
	TradingPlan        TradingPlan `json:"tradingPlan"`
}

// AnalysisPayload is everything produced for one ticker in one run.
// It is stored serialized in AnalysisRecord.AnalysisData.
type AnalysisPayload struct {
	Ticker         string            `json:"ticker"`
	CurrentPrice   float64           `json:"currentPrice"`
	ExpirationDate string            `json:"expirationDate"`
	Options        []OptionContract  `json:"options"`
	Metrics        Layer2Metrics     `json:"metrics"`
	Analysis       AnalysisNarrative `json:"analysis"`
	MaxPainPrice   float64           `json:"maxPainPrice"`
}

// AnalysisRecord is one persisted row of the analysis history
type AnalysisRecord struct {
	Ticker       string  `db:"ticker" json:"ticker"`
	Timestamp    int64   `db:"timestamp" json:"timestamp"` // epoch millis
	CurrentPrice float64 `db:"current_price" json:"current_price"`
	AnalysisData string  `db:"analysis_data" json:"analysis_data"`
}

// Time returns the record timestamp as time.Time
func (r AnalysisRecord) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Payload decodes the serialized analysis payload
func (r AnalysisRecord) Payload() (*AnalysisPayload, error) {
	var p AnalysisPayload
	if err := json.Unmarshal([]byte(r.AnalysisData), &p); err != nil {
		return nil, errors.Wrapf(err, "decode analysis payload for %s", r.Ticker)
	}
	return &p, nil
}

// NewAnalysisRecord serializes the payload into a history record stamped at the given time
func NewAnalysisRecord(p *AnalysisPayload, at time.Time) (AnalysisRecord, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return AnalysisRecord{}, errors.Wrapf(err, "encode analysis payload for %s", p.Ticker)
	}

	return AnalysisRecord{
		Ticker:       p.Ticker,
		Timestamp:    at.UnixMilli(),
		CurrentPrice: p.CurrentPrice,
		AnalysisData: string(data),
	}, nil
}

// OptionsSnapshot is the per-run aggregate row kept for time-series analytics
type OptionsSnapshot struct {
	RunID           string    `ch:"run_id" json:"run_id"`
	Ticker          string    `ch:"ticker" json:"ticker"`
	Timestamp       time.Time `ch:"timestamp" json:"timestamp"`
	ExpirationDate  string    `ch:"expiration_date" json:"expiration_date"`
	CurrentPrice    float64   `ch:"current_price" json:"current_price"`
	CallVolume      int64     `ch:"call_volume" json:"call_volume"`
	PutVolume       int64     `ch:"put_volume" json:"put_volume"`
	CallOI          int64     `ch:"call_oi" json:"call_oi"`
	PutOI           int64     `ch:"put_oi" json:"put_oi"`
	PutCallRatio    float64   `ch:"put_call_ratio" json:"put_call_ratio"`
	MaxPainPrice    float64   `ch:"max_pain_price" json:"max_pain_price"`
	MaxPainDelta    float64   `ch:"max_pain_delta" json:"max_pain_delta"` // % from current price
	MaxVolumeStrike float64   `ch:"max_volume_strike" json:"max_volume_strike"`
	MaxOIStrike     float64   `ch:"max_oi_strike" json:"max_oi_strike"`
	MaxVOIStrike    float64   `ch:"max_voi_strike" json:"max_voi_strike"`
	Direction       string    `ch:"direction" json:"direction"`
	Stance          string    `ch:"stance" json:"stance"`
}

// NewOptionsSnapshot summarizes a payload into an analytics row
func NewOptionsSnapshot(runID string, p *AnalysisPayload, at time.Time) OptionsSnapshot {
	s := OptionsSnapshot{
		RunID:           runID,
		Ticker:          p.Ticker,
		Timestamp:       at.UTC(),
		ExpirationDate:  p.ExpirationDate,
		CurrentPrice:    p.CurrentPrice,
		CallVolume:      p.Metrics.TotalCallVolume,
		PutVolume:       p.Metrics.TotalPutVolume,
		PutCallRatio:    p.Metrics.PutCallRatio,
		MaxPainPrice:    p.MaxPainPrice,
		MaxVolumeStrike: p.Metrics.MaxVolume.Strike,
		MaxOIStrike:     p.Metrics.MaxOpenInterest.Strike,
		MaxVOIStrike:    p.Metrics.MaxVOI.Strike,
		Direction:       string(p.Analysis.ConsensusDirection),
		Stance:          string(p.Analysis.Stance),
	}

	for _, c := range p.Options {
		if c.Side == SideCall {
			s.CallOI += c.OpenInterest
		} else {
			s.PutOI += c.OpenInterest
		}
	}

	if p.MaxPainPrice > 0 && p.CurrentPrice > 0 {
		s.MaxPainDelta = (p.MaxPainPrice - p.CurrentPrice) / p.CurrentPrice * 100
	}

	return s
}
