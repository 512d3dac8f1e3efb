package domain

import (
	"context"
	"time"
)

// Token is registry metadata for a single asset. Platforms maps a chain name
// to an optional contract address.
type Token struct {
	ID             string             `json:"id"`
	Symbol         string             `json:"symbol"`
	Name           string             `json:"name"`
	Platforms      map[string]*string `json:"platforms"`
	MarketCapRank  *int               `json:"market_cap_rank"`
	CurrentPrice   *float64           `json:"current_price"`
	MarketCap      *float64           `json:"market_cap"`
	TotalVolume    *float64           `json:"total_volume"`
	PriceChange24h *float64           `json:"price_change_percentage_24h"`
}

// TokenList is the durable form of the token cache.
type TokenList struct {
	Tokens      []Token   `json:"tokens"`
	LastUpdated time.Time `json:"last_updated"`
	TotalCount  int       `json:"total_count"`
}

// RegistryCoin is an entry of the registry's coin listing.
type RegistryCoin struct {
	ID        string
	Symbol    string
	Name      string
	Platforms map[string]*string
}

// TokenRegistry fetches token metadata from an external source.
type TokenRegistry interface {
	ListCoins(ctx context.Context) ([]RegistryCoin, error)
	Markets(ctx context.Context, ids []string) ([]Token, error)
}
