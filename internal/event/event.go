// Package event encodes the messages published on the signal bus and
// forwarded to websocket clients. Envelopes are protobuf Structs so consumers
// in any language can decode them without generated code.
package event

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// Event types.
const (
	TypeOpportunity = "opportunity_detected"
	TypeCycle       = "cycle_completed"
	TypeCycleFailed = "cycle_failed"
	TypeChain       = "chain_detected"
)

// Bus channels and streams.
const (
	ChannelOpportunity = "ch:opportunity"
	ChannelCycle       = "ch:cycle"
	ChannelChain       = "ch:chain"
	StreamOpportunity  = "stream:opportunities"
)

// Envelope is a decoded event.
type Envelope struct {
	Type      string
	EmittedAt time.Time
	Payload   map[string]any
}

// Encode serialises an envelope as protobuf binary.
func Encode(typ string, at time.Time, payload map[string]any) ([]byte, error) {
	env, err := build(typ, at, payload)
	if err != nil {
		return nil, err
	}
	data, err := proto.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("event: marshal %s: %w", typ, err)
	}
	return data, nil
}

// EncodeJSON serialises an envelope in the protobuf JSON mapping.
func EncodeJSON(typ string, at time.Time, payload map[string]any) ([]byte, error) {
	env, err := build(typ, at, payload)
	if err != nil {
		return nil, err
	}
	data, err := protojson.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("event: marshal json %s: %w", typ, err)
	}
	return data, nil
}

// Decode parses a binary envelope produced by Encode.
func Decode(data []byte) (Envelope, error) {
	var env structpb.Struct
	if err := proto.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("event: unmarshal: %w", domain.ErrParse)
	}

	out := Envelope{Type: env.GetFields()["type"].GetStringValue()}
	if ts := env.GetFields()["emitted_at"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Envelope{}, fmt.Errorf("event: emitted_at %q: %w", ts, domain.ErrParse)
		}
		out.EmittedAt = t
	}
	if p := env.GetFields()["payload"].GetStructValue(); p != nil {
		out.Payload = p.AsMap()
	}
	return out, nil
}

// ToJSON transcodes a binary envelope to its JSON mapping.
func ToJSON(data []byte) ([]byte, error) {
	var env structpb.Struct
	if err := proto.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("event: unmarshal: %w", domain.ErrParse)
	}
	out, err := protojson.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("event: marshal json: %w", err)
	}
	return out, nil
}

func build(typ string, at time.Time, payload map[string]any) (*structpb.Struct, error) {
	p, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("event: payload %s: %w", typ, err)
	}
	// Timestamps travel as RFC 3339 strings, the JSON form of
	// google.protobuf.Timestamp.
	ts, err := protojson.Marshal(timestamppb.New(at))
	if err != nil {
		return nil, fmt.Errorf("event: timestamp: %w", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"type":       structpb.NewStringValue(typ),
		"emitted_at": structpb.NewStringValue(trimQuotes(string(ts))),
		"payload":    structpb.NewStructValue(p),
	}}, nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// OpportunityPayload flattens an opportunity into Struct-compatible values.
func OpportunityPayload(o domain.Opportunity) map[string]any {
	return map[string]any{
		"id":                    o.ID,
		"pair":                  o.Pair.Key(),
		"base_address":          o.Pair.Base.Address,
		"quote_address":         o.Pair.Quote.Address,
		"buy_venue":             o.BuyVenue,
		"sell_venue":            o.SellVenue,
		"buy_price":             o.BuyPrice,
		"sell_price":            o.SellPrice,
		"profit_percentage":     o.ProfitPercentage,
		"net_profit_percentage": o.NetProfitPercentage,
		"liquidity":             o.Liquidity,
		"confidence_score":      o.ConfidenceScore,
		"estimated_slippage":    o.EstimatedSlippage,
		"gas_cost_estimate":     o.GasCostEstimate,
		"detected_at":           o.DetectedAt.UTC().Format(time.RFC3339Nano),
	}
}

// CyclePayload flattens a cycle record.
func CyclePayload(c domain.ScanCycle) map[string]any {
	p := map[string]any{
		"id":             c.ID,
		"started_at":     c.StartedAt.UTC().Format(time.RFC3339Nano),
		"finished_at":    c.FinishedAt.UTC().Format(time.RFC3339Nano),
		"duration_ms":    float64(c.Duration().Milliseconds()),
		"pairs_scanned":  float64(c.PairsScanned),
		"quotes_fetched": float64(c.QuotesFetched),
		"quotes_failed":  float64(c.QuotesFailed),
		"opportunities":  float64(c.Opportunities),
	}
	if c.Err != "" {
		p["error"] = c.Err
	}
	return p
}

// ChainPayload flattens a multi-hop chain. Hops travel as "FROM>TO@venue"
// strings.
func ChainPayload(c domain.ArbitrageChain) map[string]any {
	hops := make([]any, len(c.Hops))
	for i, h := range c.Hops {
		hops[i] = h.From.Symbol + ">" + h.To.Symbol + "@" + h.Venue
	}
	return map[string]any{
		"id":                          c.ID,
		"start":                       c.Start.Symbol,
		"route":                       c.Route(),
		"hops":                        hops,
		"gross_profit_percentage":     c.GrossProfitPercentage,
		"net_profit_percentage":       c.NetProfitPercentage,
		"fee_percentage":              c.FeePercentage,
		"min_liquidity":               c.MinLiquidity,
		"risk_score":                  c.RiskScore,
		"gas_cost_estimate":           c.GasCostEstimate,
		"estimated_execution_seconds": float64(c.EstimatedExecutionTime),
		"detected_at":                 c.DetectedAt.UTC().Format(time.RFC3339Nano),
	}
}
