package catalog

import (
	"github.com/nodeward/nodeward/internal/nodever"
)

// Network names used by the onlynet and incomingconnections selectors.
const (
	NetClearnet = "clearnet"
	NetTor      = "tor"
	NetI2P      = "i2p"
)

// Well-known setting keys referenced by the derivation and config-compiler
// passes.
const (
	KeyPrune               = "prune"
	KeyTxIndex             = "txindex"
	KeyBlockFilterIndex    = "blockfilterindex"
	KeyPeerBlockFilters    = "peerblockfilters"
	KeyBlocksOnly          = "blocksonly"
	KeyOnlyNet             = "onlynet"
	KeyProxy               = "proxy"
	KeyIncomingConnections = "incomingconnections"
	KeyMinRelayTxFee       = "minrelaytxfee"
	KeyBlockMinTxFee       = "blockmintxfee"
)

// NewWithDefaults creates a catalog populated with the built-in node
// settings.
func NewWithDefaults() *Catalog {
	c := New()
	c.RegisterDefaults()
	return c
}

// RegisterDefaults registers every built-in setting.
func (c *Catalog) RegisterDefaults() {
	c.MustRegister(Option{
		Key:     VersionKey,
		Kind:    KindSelect,
		Tab:     "general",
		Label:   "Node version",
		Default: nodever.Latest,
		Options: nodever.Selectors(),
		// No NativeKeys: the selector controls which binary runs, it is
		// never written into the native config.
	})

	c.MustRegister(Option{
		Key:        KeyPrune,
		Kind:       KindNumber,
		Tab:        "optimization",
		Label:      "Prune target (GB)",
		NativeKeys: []string{"prune"},
		Default:    float64(0),
		Minimum:    MinValue(0),
		Maximum:    MaxValue(2000),
		Step:       1,
	})

	c.MustRegister(Option{
		Key:        KeyTxIndex,
		Kind:       KindToggle,
		Tab:        "optimization",
		Label:      "Transaction index",
		NativeKeys: []string{"txindex"},
		Default:    true,
	})

	c.MustRegister(Option{
		Key:        KeyBlockFilterIndex,
		Kind:       KindToggle,
		Tab:        "optimization",
		Label:      "Compact block filter index",
		NativeKeys: []string{"blockfilterindex"},
		Default:    false,
	})

	c.MustRegister(Option{
		Key:        KeyPeerBlockFilters,
		Kind:       KindToggle,
		Tab:        "network",
		Label:      "Serve compact block filters to peers",
		NativeKeys: []string{"peerblockfilters"},
		Default:    false,
	})

	c.MustRegister(Option{
		Key:        KeyBlocksOnly,
		Kind:       KindToggle,
		Tab:        "network",
		Label:      "Blocks-only mode",
		NativeKeys: []string{"blocksonly", "walletbroadcast"},
		Default:    false,
	})

	c.MustRegister(Option{
		Key:        KeyOnlyNet,
		Kind:       KindMulti,
		Tab:        "network",
		Label:      "Outbound networks",
		NativeKeys: []string{"onlynet"},
		Default:    []string{NetClearnet, NetTor},
		Options:    []string{NetClearnet, NetTor, NetI2P},
		Required:   true,
	})

	c.MustRegister(Option{
		Key:        KeyProxy,
		Kind:       KindToggle,
		Tab:        "network",
		Label:      "Route outbound clearnet traffic over Tor",
		NativeKeys: []string{"proxy"},
		Default:    false,
	})

	c.MustRegister(Option{
		Key:        KeyIncomingConnections,
		Kind:       KindMulti,
		Tab:        "network",
		Label:      "Accept incoming connections via",
		NativeKeys: []string{"listen", "listenonion", "listeni2p"},
		Default:    []string{NetTor, NetI2P},
		Options:    []string{NetTor, NetI2P},
		Required:   false,
	})

	c.MustRegister(Option{
		Key:        "maxconnections",
		Kind:       KindNumber,
		Tab:        "network",
		Label:      "Maximum peer connections",
		NativeKeys: []string{"maxconnections"},
		Default:    float64(125),
		Minimum:    MinValue(1),
		Maximum:    MaxValue(1000),
		Step:       1,
		Overrides: map[string]Override{
			// 27.x exhausts descriptors well before 1000 peers.
			"27.2": {Maximum: MaxValue(500)},
		},
	})

	c.MustRegister(Option{
		Key:        "dbcache",
		Kind:       KindNumber,
		Tab:        "optimization",
		Label:      "Database cache (MiB)",
		NativeKeys: []string{"dbcache"},
		Default:    float64(450),
		Minimum:    MinValue(4),
		Maximum:    MaxValue(16384),
		Step:       1,
		Overrides: map[string]Override{
			"29.0": {Default: DefaultValue(float64(1000))},
		},
	})

	c.MustRegister(Option{
		Key:        "maxmempool",
		Kind:       KindNumber,
		Tab:        "optimization",
		Label:      "Mempool size (MiB)",
		NativeKeys: []string{"maxmempool"},
		Default:    float64(300),
		Minimum:    MinValue(100),
		Maximum:    MaxValue(4000),
		Step:       1,
	})

	c.MustRegister(Option{
		Key:        KeyMinRelayTxFee,
		Kind:       KindNumber,
		Tab:        "fees",
		Label:      "Minimum relay fee (sat/vB)",
		NativeKeys: []string{"minrelaytxfee"},
		Default:    float64(1),
		Minimum:    MinValue(0),
		Maximum:    MaxValue(500),
		Step:       0.1,
	})

	c.MustRegister(Option{
		Key:        KeyBlockMinTxFee,
		Kind:       KindNumber,
		Tab:        "fees",
		Label:      "Block assembly minimum fee (sat/vB)",
		NativeKeys: []string{"blockmintxfee"},
		Default:    float64(1),
		Minimum:    MinValue(0),
		Maximum:    MaxValue(500),
		Step:       0.1,
	})

	c.MustRegister(Option{
		Key:          "coinstatsindex",
		Kind:         KindToggle,
		Tab:          "optimization",
		Label:        "Coin statistics index",
		NativeKeys:   []string{"coinstatsindex"},
		Default:      false,
		IntroducedIn: "28.1",
	})

	c.MustRegister(Option{
		Key:        "mempoolfullrbf",
		Kind:       KindToggle,
		Tab:        "advanced",
		Label:      "Full replace-by-fee",
		NativeKeys: []string{"mempoolfullrbf"},
		Default:    true,
		// Always-on from 29.0, so the knob disappears there.
		RemovedIn: "29.0",
	})

	c.MustRegister(Option{
		Key:        "bantime",
		Kind:       KindNumber,
		Tab:        "advanced",
		Label:      "Peer ban duration (seconds)",
		NativeKeys: []string{"bantime"},
		Default:    float64(86400),
		Minimum:    MinValue(1),
		Maximum:    MaxValue(31536000),
		Step:       1,
	})
}
