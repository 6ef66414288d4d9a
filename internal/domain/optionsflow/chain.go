package optionsflow

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"optionsflow/pkg/errors"
)

// Field is a loosely typed upstream value: a string, a number, or absent.
type Field struct {
	raw     string
	set     bool
	numeric bool
}

// StringField builds a field that arrived as a JSON string
func StringField(s string) Field {
	return Field{raw: s, set: true}
}

// NumberField builds a field that arrived as a JSON number
func NumberField(f float64) Field {
	return Field{raw: strconv.FormatFloat(f, 'f', -1, 64), set: true, numeric: true}
}

// IsSet reports whether the field was present and not null
func (f Field) IsSet() bool {
	return f.set
}

// String returns the raw textual value, "" when absent
func (f Field) String() string {
	return f.raw
}

// Truthy follows upstream semantics: absent, "", and numeric 0 are falsy
func (f Field) Truthy() bool {
	if !f.set {
		return false
	}
	if f.numeric {
		v, err := strconv.ParseFloat(f.raw, 64)
		return err == nil && v != 0
	}
	return f.raw != ""
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = Field{}
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "decode string field")
		}
		*f = StringField(s)
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*f = Field{raw: string(data), set: true}
	default:
		*f = Field{raw: string(data), set: true, numeric: true}
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (f Field) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	if f.numeric {
		return []byte(f.raw), nil
	}
	return json.Marshal(f.raw)
}

// RawRow is one upstream option-chain row. Group header rows carry only
// the expiration group label; strike rows carry both sides of one strike.
type RawRow struct {
	ExpirationGroup  Field
	ExpiryDate       Field
	Strike           Field
	CallVolume       Field
	CallOpenInterest Field
	CallLastPrice    Field
	PutVolume        Field
	PutOpenInterest  Field
	PutLastPrice     Field
}

// RawSnapshot is what a ChainSource returns for one ticker
type RawSnapshot struct {
	Ticker    string
	LastTrade string
	Rows      []RawRow
}

const minChainRows = 2

var (
	lastTradePricePattern = regexp.MustCompile(`\$(\d[\d,]*(?:\.\d+)?)`)
	floatPrefixPattern    = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)
	intPrefixPattern      = regexp.MustCompile(`^[+-]?\d+`)
)

// NormalizeChain converts a raw snapshot into a single-expiration chain.
// Contracts keep the source row order; each strike row yields a Call then a Put.
func NormalizeChain(raw *RawSnapshot) (*ChainSnapshot, error) {
	if raw == nil || len(raw.Rows) < minChainRows {
		return nil, errors.Wrapf(errors.ErrEmptyChain, "ticker %s", tickerOf(raw))
	}

	snapshot := &ChainSnapshot{
		Ticker:          raw.Ticker,
		CurrentPrice:    ParseLastTradePrice(raw.LastTrade),
		ExpirationLabel: "N/A",
	}

	for _, row := range raw.Rows {
		if label := row.ExpirationGroup.String(); label != "" {
			snapshot.ExpirationLabel = label
			break
		}
	}

	rows := filterTargetExpiration(raw.Rows)

	contracts := make([]OptionContract, 0, len(rows)*2)
	for _, row := range rows {
		strike, ok := parseFloatPrefix(row.Strike.String())
		if !row.Strike.IsSet() || !ok {
			continue
		}

		call, callMalformed := contractSide(SideCall, strike, row.CallVolume, row.CallOpenInterest, row.CallLastPrice)
		put, putMalformed := contractSide(SidePut, strike, row.PutVolume, row.PutOpenInterest, row.PutLastPrice)
		contracts = append(contracts, call, put)
		snapshot.MalformedFields += callMalformed + putMalformed
	}

	if len(contracts) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyChain, "ticker %s has no strike rows", raw.Ticker)
	}

	snapshot.Contracts = contracts
	return snapshot, nil
}

// filterTargetExpiration keeps header rows and strike rows of the first expiration that has strikes
func filterTargetExpiration(rows []RawRow) []RawRow {
	target := ""
	for _, row := range rows {
		if row.Strike.Truthy() {
			target = row.ExpiryDate.String()
			break
		}
	}
	if target == "" {
		return rows
	}

	kept := make([]RawRow, 0, len(rows))
	for _, row := range rows {
		if !row.Strike.Truthy() || row.ExpiryDate.String() == target {
			kept = append(kept, row)
		}
	}
	return kept
}

func contractSide(side Side, strike float64, volume, openInterest, lastPrice Field) (OptionContract, int) {
	malformed := 0

	vol, ok := coerceCount(volume)
	if !ok {
		malformed++
	}
	oi, ok := coerceCount(openInterest)
	if !ok {
		malformed++
	}
	last, ok := coercePrice(lastPrice)
	if !ok {
		malformed++
	}

	return OptionContract{
		Side:         side,
		Strike:       strike,
		Volume:       vol,
		OpenInterest: oi,
		LastPrice:    last,
	}, malformed
}

// coerceCount parses a non-negative integer, defaulting to 0.
// ok is false only when a present value could not be used.
func coerceCount(f Field) (int64, bool) {
	if !f.IsSet() {
		return 0, true
	}
	s := strings.ReplaceAll(strings.TrimSpace(f.String()), ",", "")
	m := intPrefixPattern.FindString(s)
	if m == "" {
		return 0, s == ""
	}
	v, err := strconv.ParseInt(m, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// coercePrice parses a non-negative decimal, defaulting to 0
func coercePrice(f Field) (float64, bool) {
	if !f.IsSet() {
		return 0, true
	}
	s := strings.ReplaceAll(strings.TrimSpace(f.String()), ",", "")
	v, ok := parseFloatPrefix(s)
	if !ok {
		return 0, s == ""
	}
	if v < 0 {
		return 0, false
	}
	return v, true
}

// parseFloatPrefix parses the leading decimal number of s, ignoring trailing text
func parseFloatPrefix(s string) (float64, bool) {
	m := floatPrefixPattern.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLastTradePrice extracts the first dollar amount of a trade-summary
// string such as "LAST TRADE: $227.52 (AS OF JUL 26, 2024)". Returns 0 when absent.
func ParseLastTradePrice(lastTrade string) float64 {
	m := lastTradePricePattern.FindStringSubmatch(lastTrade)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

func tickerOf(raw *RawSnapshot) string {
	if raw == nil {
		return ""
	}
	return raw.Ticker
}
