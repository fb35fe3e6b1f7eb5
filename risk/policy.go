package risk

// Policy limits what a planned entry may risk. Zero fields are not checked.
type Policy struct {
	MaxRiskPct    float64 // 0.02
	MinRR         float64 // 1.5
	MaxOpenTrades int     // 3
}

// Plan is an entry a strategy intends to place.
type Plan struct {
	Units  float64
	Entry  float64
	Stop   float64
	Target float64
}

type AccountSnapshot struct {
	Equity     float64
	OpenTrades int
}
