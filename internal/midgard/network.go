package midgard

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaVersion selects the wire format of a Midgard deployment.
type SchemaVersion string

const (
	SchemaV1 SchemaVersion = "v1"
	SchemaV2 SchemaVersion = "v2"
)

// ParseSchemaVersion resolves a recorded or configured schema tag.
func ParseSchemaVersion(input string) (SchemaVersion, error) {
	switch SchemaVersion(strings.ToLower(strings.TrimSpace(input))) {
	case SchemaV1:
		return SchemaV1, nil
	case SchemaV2:
		return SchemaV2, nil
	}
	return "", &ConfigError{Field: "version", Err: fmt.Errorf("%w: %q", ErrUnsupportedSchema, input)}
}

// Network is a known Midgard deployment.
type Network struct {
	ID      string
	Schema  SchemaVersion
	BaseURL string
}

const (
	TestnetMultiChain  = "testnet-multi"
	ChaosnetBep2       = "chaosnet-bep2"
	ChaosnetMultiChain = "chaosnet-multi"
	Mainnet            = "mainnet"
)

var networks = map[string]Network{
	TestnetMultiChain:  {ID: TestnetMultiChain, Schema: SchemaV2, BaseURL: "https://testnet.midgard.thorchain.info"},
	ChaosnetBep2:       {ID: ChaosnetBep2, Schema: SchemaV1, BaseURL: "https://chaosnet-midgard.bepswap.com"},
	ChaosnetMultiChain: {ID: ChaosnetMultiChain, Schema: SchemaV2, BaseURL: "https://midgard.thorchain.info"},
	Mainnet:            {ID: Mainnet, Schema: SchemaV2, BaseURL: "https://midgard.thorchain.info"},
}

// LookupNetwork returns the registry entry for id.
func LookupNetwork(id string) (Network, error) {
	network, ok := networks[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Network{}, &ConfigError{Field: "network", Err: fmt.Errorf("%w: %q", ErrUnsupportedNetwork, id)}
	}
	return network, nil
}

// NetworkIDs lists the registered network ids, sorted.
func NetworkIDs() []string {
	ids := make([]string, 0, len(networks))
	for id := range networks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
