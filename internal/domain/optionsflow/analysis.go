package optionsflow

// Analyze runs the engine over one normalized chain: Layer-2 metrics,
// max pain, then the narrative. Pure and deterministic.
func Analyze(snapshot *ChainSnapshot) *AnalysisPayload {
	metrics := CalculateLayer2Metrics(snapshot.Contracts, snapshot.CurrentPrice)
	maxPain := CalculateMaxPain(snapshot.Contracts)

	narrative := GenerateNarrative(NarrativeInput{
		Ticker:       snapshot.Ticker,
		CurrentPrice: snapshot.CurrentPrice,
		Metrics:      metrics,
		MaxPainPrice: maxPain,
	})

	return &AnalysisPayload{
		Ticker:         snapshot.Ticker,
		CurrentPrice:   snapshot.CurrentPrice,
		ExpirationDate: snapshot.ExpirationLabel,
		Options:        snapshot.Contracts,
		Metrics:        metrics,
		Analysis:       narrative,
		MaxPainPrice:   maxPain,
	}
}
