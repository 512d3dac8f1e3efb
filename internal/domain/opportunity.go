package domain

import "time"

// Opportunity is a scored cross-venue price discrepancy. SellPrice is always
// greater than BuyPrice and ProfitPercentage is (Sell-Buy)/Buy*100.
type Opportunity struct {
	ID                  string    `json:"id"`
	Pair                TokenPair `json:"pair"`
	BuyVenue            string    `json:"buy_venue"`
	SellVenue           string    `json:"sell_venue"`
	BuyPrice            float64   `json:"buy_price"`
	SellPrice           float64   `json:"sell_price"`
	ProfitPercentage    float64   `json:"profit_percentage"`
	NetProfitPercentage float64   `json:"net_profit_percentage"`
	Liquidity           float64   `json:"liquidity"`
	ConfidenceScore     float64   `json:"confidence_score"`
	EstimatedSlippage   float64   `json:"estimated_slippage"`
	GasCostEstimate     float64   `json:"gas_cost_estimate"`
	DetectedAt          time.Time `json:"detected_at"`
}

// DedupKey identifies the opportunity by pair and direction.
func (o Opportunity) DedupKey() string {
	return o.Pair.Key() + "|" + o.BuyVenue + "|" + o.SellVenue
}

// ScanCycle records the outcome of one monitor cycle.
type ScanCycle struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	PairsScanned  int       `json:"pairs_scanned"`
	QuotesFetched int       `json:"quotes_fetched"`
	QuotesFailed  int       `json:"quotes_failed"`
	Opportunities int       `json:"opportunities"`
	Err           string    `json:"error,omitempty"`
}

// Duration returns how long the cycle took.
func (c ScanCycle) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}
