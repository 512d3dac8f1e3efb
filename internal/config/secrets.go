package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Venues carry API keys and RPC URLs that often embed a provider token.
	out.Dex = DexSet{
		UniswapV2:   redactDex(cfg.Dex.UniswapV2),
		SushiSwap:   redactDex(cfg.Dex.SushiSwap),
		PancakeSwap: redactDex(cfg.Dex.PancakeSwap),
		Curve:       redactDex(cfg.Dex.Curve),
		Balancer:    redactDex(cfg.Dex.Balancer),
	}

	// Registry
	redact(&out.Registry.APIKey)

	// Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	redact(&out.Redis.Password)

	// S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Server
	redact(&out.Server.APIKey)

	// Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Arbitrage.Tokens != nil {
		out.Arbitrage.Tokens = make([]TokenConfig, len(cfg.Arbitrage.Tokens))
		copy(out.Arbitrage.Tokens, cfg.Arbitrage.Tokens)
	}

	return out
}

func redactDex(d DexConfig) DexConfig {
	redact(&d.APIKey)
	redact(&d.RPCURL)
	if d.TokenOverrides != nil {
		overrides := make(map[string]TokenConfig, len(d.TokenOverrides))
		for k, v := range d.TokenOverrides {
			overrides[k] = v
		}
		d.TokenOverrides = overrides
	}
	return d
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
