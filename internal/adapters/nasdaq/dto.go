package nasdaq

import "optionsflow/internal/domain/optionsflow"

// chainResponse is the subset of the option-chain payload the analysis needs
type chainResponse struct {
	Data *struct {
		LastTrade string `json:"lastTrade"`
		Table     *struct {
			Rows []chainRow `json:"rows"`
		} `json:"table"`
	} `json:"data"`
}

// chainRow mirrors one upstream table row; every value may be a string, a number or null
type chainRow struct {
	ExpiryGroup      optionsflow.Field `json:"expirygroup"`
	ExpiryDate       optionsflow.Field `json:"expiryDate"`
	Strike           optionsflow.Field `json:"strike"`
	CallVolume       optionsflow.Field `json:"c_Volume"`
	CallOpenInterest optionsflow.Field `json:"c_Openinterest"`
	CallLast         optionsflow.Field `json:"c_Last"`
	PutVolume        optionsflow.Field `json:"p_Volume"`
	PutOpenInterest  optionsflow.Field `json:"p_Openinterest"`
	PutLast          optionsflow.Field `json:"p_Last"`
}

func (r chainResponse) toRawSnapshot(ticker string) *optionsflow.RawSnapshot {
	snapshot := &optionsflow.RawSnapshot{Ticker: ticker}
	if r.Data == nil {
		return snapshot
	}

	snapshot.LastTrade = r.Data.LastTrade
	if r.Data.Table == nil {
		return snapshot
	}

	snapshot.Rows = make([]optionsflow.RawRow, 0, len(r.Data.Table.Rows))
	for _, row := range r.Data.Table.Rows {
		snapshot.Rows = append(snapshot.Rows, optionsflow.RawRow{
			ExpirationGroup:  row.ExpiryGroup,
			ExpiryDate:       row.ExpiryDate,
			Strike:           row.Strike,
			CallVolume:       row.CallVolume,
			CallOpenInterest: row.CallOpenInterest,
			CallLastPrice:    row.CallLast,
			PutVolume:        row.PutVolume,
			PutOpenInterest:  row.PutOpenInterest,
			PutLastPrice:     row.PutLast,
		})
	}
	return snapshot
}
