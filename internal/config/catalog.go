package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/token"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// LoadCatalog reads the token catalog from path, or the embedded default when
// path is empty.
func LoadCatalog(path string) (token.Catalog, error) {
	data := defaultCatalog
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return token.Catalog{}, fmt.Errorf("read token catalog: %w", err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (token.Catalog, error) {
	var cat token.Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return token.Catalog{}, fmt.Errorf("parse token catalog: %w", err)
	}

	chains := make(map[string]token.Chain, len(cat.Chains))
	for _, chain := range cat.Chains {
		if chain.ID == "" {
			return token.Catalog{}, fmt.Errorf("chain without id")
		}
		switch chain.Kind {
		case token.KindStellar:
			if chain.NetworkPassphrase == "" {
				return token.Catalog{}, fmt.Errorf("chain %s: network_passphrase is required", chain.ID)
			}
		case token.KindAptos:
		default:
			return token.Catalog{}, fmt.Errorf("chain %s: unsupported kind %q", chain.ID, chain.Kind)
		}
		chains[chain.ID] = chain
	}
	for _, opt := range cat.Tokens {
		if _, ok := chains[opt.ChainID]; !ok {
			return token.Catalog{}, fmt.Errorf("token %s references unknown chain %q", opt.ID, opt.ChainID)
		}
	}
	for _, opt := range cat.Fiat {
		if opt.IsToken() {
			return token.Catalog{}, fmt.Errorf("fiat option %s must not set chain_id", opt.ID)
		}
	}
	return cat, nil
}
