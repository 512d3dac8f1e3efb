package domain

import "strings"

// Asset identifies a token referenced by a pair on a given chain.
type Asset struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// TokenPair is an ordered (base, quote) pair. It is a comparable value and can
// be used as a map key.
type TokenPair struct {
	Base  Asset `json:"base"`
	Quote Asset `json:"quote"`
}

// Key returns the display key "BASE/QUOTE".
func (p TokenPair) Key() string {
	return p.Base.Symbol + "/" + p.Quote.Symbol
}

// Same reports whether two pairs reference the same addresses in the same
// order, ignoring address case.
func (p TokenPair) Same(o TokenPair) bool {
	return strings.EqualFold(p.Base.Address, o.Base.Address) &&
		strings.EqualFold(p.Quote.Address, o.Quote.Address)
}

// PairsFromAssets builds every i<j combination of the given assets in order.
// The earlier asset becomes the base.
func PairsFromAssets(assets []Asset) []TokenPair {
	var pairs []TokenPair
	for i := 0; i < len(assets); i++ {
		for j := i + 1; j < len(assets); j++ {
			pairs = append(pairs, TokenPair{Base: assets[i], Quote: assets[j]})
		}
	}
	return pairs
}
