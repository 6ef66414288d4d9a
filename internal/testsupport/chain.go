package testsupport

import (
	"fmt"

	"optionsflow/internal/domain/optionsflow"
	"optionsflow/pkg/errors"
)

// ChainFixture builds raw upstream chains the way the quote API returns them:
// a last-trade banner, one group header row per expiration, then strike rows.
type ChainFixture struct {
	ticker    string
	lastTrade string
	groups    []chainGroup
}

type chainGroup struct {
	label string
	rows  []optionsflow.RawRow
}

// NewChainFixture starts an empty chain for ticker priced at price
func NewChainFixture(ticker string, price float64) *ChainFixture {
	return &ChainFixture{
		ticker:    ticker,
		lastTrade: fmt.Sprintf("LAST TRADE: $%.2f (AS OF JUL 26, 2024)", price),
	}
}

// WithLastTrade overrides the banner text, e.g. to test unparseable prices
func (f *ChainFixture) WithLastTrade(text string) *ChainFixture {
	f.lastTrade = text
	return f
}

// Expiration opens a new expiration group; following Strike calls land in it
func (f *ChainFixture) Expiration(label string) *ChainFixture {
	f.groups = append(f.groups, chainGroup{label: label})
	return f
}

// Strike adds one strike row with numeric call and put fields
func (f *ChainFixture) Strike(strike float64, callVol, callOI, putVol, putOI int64) *ChainFixture {
	if len(f.groups) == 0 {
		f.Expiration("Jul 26")
	}
	g := &f.groups[len(f.groups)-1]
	g.rows = append(g.rows, optionsflow.RawRow{
		ExpiryDate:       optionsflow.StringField(g.label),
		Strike:           optionsflow.NumberField(strike),
		CallVolume:       optionsflow.StringField(fmt.Sprintf("%d", callVol)),
		CallOpenInterest: optionsflow.StringField(fmt.Sprintf("%d", callOI)),
		CallLastPrice:    optionsflow.StringField("1.00"),
		PutVolume:        optionsflow.StringField(fmt.Sprintf("%d", putVol)),
		PutOpenInterest:  optionsflow.StringField(fmt.Sprintf("%d", putOI)),
		PutLastPrice:     optionsflow.StringField("1.00"),
	})
	return f
}

// Build returns the raw snapshot
func (f *ChainFixture) Build() *optionsflow.RawSnapshot {
	raw := &optionsflow.RawSnapshot{Ticker: f.ticker, LastTrade: f.lastTrade}
	for _, g := range f.groups {
		raw.Rows = append(raw.Rows, optionsflow.RawRow{ExpirationGroup: optionsflow.StringField(g.label)})
		raw.Rows = append(raw.Rows, g.rows...)
	}
	return raw
}

// Normalize builds and normalizes the chain
func (f *ChainFixture) Normalize() (*optionsflow.ChainSnapshot, error) {
	snapshot, err := optionsflow.NormalizeChain(f.Build())
	if err != nil {
		return nil, errors.Wrapf(err, "normalize fixture %s", f.ticker)
	}
	return snapshot, nil
}

// BullishChain is a call-heavy single-expiration chain around price:
// max volume and max OI both on the out-of-the-money call one strike up.
func BullishChain(ticker string, price float64) *ChainFixture {
	return NewChainFixture(ticker, price).
		Expiration("Jul 26").
		Strike(price-10, 300, 2000, 900, 3000).
		Strike(price, 1500, 6000, 700, 2500).
		Strike(price+10, 5000, 9000, 200, 800)
}
