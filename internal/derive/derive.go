// Package derive applies cross-field consistency rules to a validated
// settings record.
//
// The rules run once, in a fixed order, after schema validation and before
// persistence. Every rule reads the original input record rather than the
// output of earlier rules, so a single pass suffices and applying the pass
// to its own output changes nothing.
package derive

import (
	"github.com/nodeward/nodeward/internal/catalog"
)

// Apply returns a copy of the record with all derivation rules applied.
// The input record is not modified.
func Apply(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}

	// Rule 1: serving compact block filters requires the filter index.
	if boolSetting(record, catalog.KeyPeerBlockFilters) {
		out[catalog.KeyBlockFilterIndex] = true
	}

	// Rule 2: a pruned node cannot maintain the transaction index.
	if numberSetting(record, catalog.KeyPrune) > 0 {
		out[catalog.KeyTxIndex] = false
	}

	// Rule 3: the Tor proxy for clearnet traffic needs both clearnet traffic
	// to route and Tor to route it over; with either missing from the
	// outbound selection the flag is meaningless.
	if boolSetting(record, catalog.KeyProxy) {
		nets := stringSetting(record, catalog.KeyOnlyNet)
		if !contains(nets, catalog.NetClearnet) || !contains(nets, catalog.NetTor) {
			out[catalog.KeyProxy] = false
		}
	}

	return out
}

func boolSetting(record map[string]any, key string) bool {
	b, _ := record[key].(bool)
	return b
}

func numberSetting(record map[string]any, key string) float64 {
	switch n := record[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func stringSetting(record map[string]any, key string) []string {
	switch items := record[key].(type) {
	case []string:
		return items
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
