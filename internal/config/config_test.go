package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SPLITO_API_URL", "https://api.splito.test")
	t.Setenv("PRICING_WARM_PAIRS", "stellar:usd, aptos:EUR ,broken")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.splito.test", cfg.Backend.BaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Pricing.QuoteTTL)
	assert.Equal(t, [][2]string{{"stellar", "USD"}, {"aptos", "EUR"}}, cfg.Pricing.Pairs())
	assert.False(t, cfg.Redis.Enabled())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Config{Backend: BackendConfig{BaseURL: "http://x"}, Server: ServerConfig{Port: 70000}}
	require.Error(t, cfg.Validate())
}

func TestDefaultCatalog(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)
	require.NotEmpty(t, cat.Chains)
	for _, opt := range cat.Tokens {
		assert.True(t, opt.IsToken(), "token %s should carry a chain", opt.ID)
		assert.NotZero(t, opt.Decimals, "token %s should declare decimals", opt.ID)
	}
}

func TestParseCatalogRejectsOrphanToken(t *testing.T) {
	_, err := ParseCatalog([]byte(`
chains:
  - { id: aptos, name: Aptos, kind: aptos }
tokens:
  - { id: stellar, symbol: XLM, chain_id: stellar, decimals: 7 }
`))
	require.Error(t, err)
}

func TestParseCatalogRequiresPassphrase(t *testing.T) {
	_, err := ParseCatalog([]byte(`
chains:
  - { id: stellar, name: Stellar, kind: stellar }
`))
	require.Error(t, err)
}
