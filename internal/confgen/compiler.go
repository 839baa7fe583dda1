package confgen

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/nodeward/nodeward/internal/catalog"
	"github.com/nodeward/nodeward/internal/runtimecfg"
)

// Unit conversion factors between the external settings units and the
// daemon's native units.
const (
	// gbToMiB converts the prune target from GB to the daemon's MiB unit.
	gbToMiB = 953.674

	// satPerVByteToBTCPerKvB converts fee rates from sat/vB to BTC/kvB.
	satPerVByteToBTCPerKvB = 1e-5
)

// Compiler turns settings records into native configuration.
type Compiler struct {
	cfg runtimecfg.Config

	// random is the entropy source for rpcauth salts.
	random io.Reader
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithRandom sets the entropy source used for credential salts.
// Tests use this to make compilation reproducible.
func WithRandom(r io.Reader) Option {
	return func(c *Compiler) {
		c.random = r
	}
}

// New creates a compiler bound to the given runtime configuration.
func New(cfg runtimecfg.Config, opts ...Option) *Compiler {
	c := &Compiler{
		cfg:    cfg,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile produces the ordered native directives for a settings record. The
// record must already be validated and derived for the given version; keys
// outside the version's surface are ignored.
func (c *Compiler) Compile(cat *catalog.Catalog, version string, record map[string]any) (List, error) {
	surface, err := cat.Materialize(version)
	if err != nil {
		return nil, err
	}

	var list List

	// Base pass: one directive per setting, in catalog order.
	for _, key := range cat.Keys() {
		opt, ok := surface[key]
		if !ok {
			continue // not part of this version
		}
		value, ok := record[key]
		if !ok {
			continue
		}
		if err := c.emitBase(&list, opt, value); err != nil {
			return nil, err
		}
	}

	// Post-passes. Each one replaces the directives for its key group.
	c.proxyPass(&list, record)
	c.torPass(&list)
	c.prunePass(&list, record)
	c.feePass(&list, record)

	// Fixed tail.
	if err := c.authTail(&list); err != nil {
		return nil, err
	}
	c.whitelistTail(&list)
	c.zmqTail(&list, record)
	c.chainTail(&list)

	return list, nil
}

// emitBase maps one setting onto its native directives.
func (c *Compiler) emitBase(list *List, opt catalog.Resolved, value any) error {
	// The version selector drives binary resolution only.
	if opt.Key == catalog.VersionKey {
		return nil
	}

	switch opt.Key {
	case catalog.KeyOnlyNet:
		return emitOnlyNet(list, opt, value)
	case catalog.KeyIncomingConnections:
		return emitIncoming(list, opt, value)
	case catalog.KeyBlocksOnly:
		return emitBlocksOnly(list, opt, value)
	}

	if len(opt.NativeKeys) == 0 {
		return nil
	}
	native := opt.NativeKeys[0]

	switch opt.Kind {
	case catalog.KindToggle:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("setting %s: expected bool, got %T", opt.Key, value)
		}
		list.Append(native, formatBool(b))
	case catalog.KindNumber:
		f, ok := asFloat(value)
		if !ok {
			return fmt.Errorf("setting %s: expected number, got %T", opt.Key, value)
		}
		list.Append(native, formatNumber(f))
	case catalog.KindSelect:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("setting %s: expected string, got %T", opt.Key, value)
		}
		list.Append(native, s)
	case catalog.KindMulti:
		items, ok := asStringSlice(value)
		if !ok {
			return fmt.Errorf("setting %s: expected string list, got %T", opt.Key, value)
		}
		for _, item := range items {
			list.Append(native, item)
		}
	}
	return nil
}

// emitOnlyNet expands the outbound network selection. Clearnet covers both
// IP families, so it expands to two directives.
func emitOnlyNet(list *List, opt catalog.Resolved, value any) error {
	nets, ok := asStringSlice(value)
	if !ok {
		return fmt.Errorf("setting %s: expected string list, got %T", opt.Key, value)
	}
	for _, net := range nets {
		switch net {
		case catalog.NetClearnet:
			list.Append("onlynet", "ipv4")
			list.Append("onlynet", "ipv6")
		case catalog.NetTor:
			list.Append("onlynet", "onion")
		case catalog.NetI2P:
			list.Append("onlynet", "i2p")
		default:
			return fmt.Errorf("setting %s: unknown network %q", opt.Key, net)
		}
	}
	return nil
}

// emitIncoming emits the always-on listen directive plus one enable/disable
// directive per anonymizing network.
func emitIncoming(list *List, opt catalog.Resolved, value any) error {
	nets, ok := asStringSlice(value)
	if !ok {
		return fmt.Errorf("setting %s: expected string list, got %T", opt.Key, value)
	}
	list.Append("listen", "1")
	list.Append("listenonion", formatBool(containsString(nets, catalog.NetTor)))
	list.Append("listeni2p", formatBool(containsString(nets, catalog.NetI2P)))
	return nil
}

// emitBlocksOnly emits the flag itself and, when enabled, the companion
// directive suppressing local transaction broadcast.
func emitBlocksOnly(list *List, opt catalog.Resolved, value any) error {
	b, ok := value.(bool)
	if !ok {
		return fmt.Errorf("setting %s: expected bool, got %T", opt.Key, value)
	}
	list.Append("blocksonly", formatBool(b))
	if b {
		list.Append("walletbroadcast", "0")
	}
	return nil
}

// proxyPass replaces the proxy directive with the Tor SOCKS endpoint when
// the proxy flag survived derivation.
func (c *Compiler) proxyPass(list *List, record map[string]any) {
	list.RemoveKey("proxy")
	if b, _ := record[catalog.KeyProxy].(bool); b {
		list.Append("proxy", fmt.Sprintf("%s:%d", c.cfg.TorSocksHost, c.cfg.TorSocksPort))
	}
}

// torPass replaces the onion reachability and control-port directives.
func (c *Compiler) torPass(list *List) {
	list.RemoveKey("onion", "torcontrol")
	list.Append("onion", fmt.Sprintf("%s:%d", c.cfg.TorSocksHost, c.cfg.TorSocksPort))
	list.Append("torcontrol", fmt.Sprintf("%s:%d", c.cfg.TorControlHost, c.cfg.TorControlPort))
}

// prunePass replaces the prune directive with the native MiB value.
func (c *Compiler) prunePass(list *List, record map[string]any) {
	list.RemoveKey("prune")
	gb, ok := asFloat(record[catalog.KeyPrune])
	if !ok {
		return
	}
	mib := int64(math.Round(gb * gbToMiB))
	if gb <= 0 {
		mib = 0
	}
	list.Append("prune", strconv.FormatInt(mib, 10))
}

// feePass replaces the two fee directives with native BTC/kvB values.
func (c *Compiler) feePass(list *List, record map[string]any) {
	for _, key := range []string{catalog.KeyMinRelayTxFee, catalog.KeyBlockMinTxFee} {
		list.RemoveKey(key)
		satPerVByte, ok := asFloat(record[key])
		if !ok {
			continue
		}
		list.Append(key, fmt.Sprintf("%.8f", satPerVByte*satPerVByteToBTCPerKvB))
	}
}

// authTail appends the rpcauth credential: user:salt$digest with a fresh
// hex salt and digest = HMAC-SHA256(key=salt, message=secret).
func (c *Compiler) authTail(list *List) error {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(c.random, salt); err != nil {
		return fmt.Errorf("generating rpcauth salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)

	mac := hmac.New(sha256.New, []byte(saltHex))
	mac.Write([]byte(c.cfg.RPCSecret))
	digest := hex.EncodeToString(mac.Sum(nil))

	list.Append("rpcauth", fmt.Sprintf("%s:%s$%s", c.cfg.RPCUser, saltHex, digest))
	return nil
}

// whitelistTail appends the loopback allow-list entry and one entry per
// configured trusted subnet.
func (c *Compiler) whitelistTail(list *List) {
	list.Append("whitelist", "127.0.0.1/32")
	for _, subnet := range c.cfg.TrustedSubnets {
		list.Append("whitelist", subnet)
	}
}

// zmqTail appends the publish endpoints. The transaction hash stream is
// skipped in blocks-only mode where no loose transactions are relayed.
func (c *Compiler) zmqTail(list *List, record map[string]any) {
	endpoint := func(port int) string {
		return fmt.Sprintf("tcp://%s:%d", c.cfg.ZMQHost, port)
	}
	list.Append("zmqpubrawblock", endpoint(c.cfg.ZMQRawBlockPort))
	list.Append("zmqpubrawtx", endpoint(c.cfg.ZMQRawTxPort))
	list.Append("zmqpubhashblock", endpoint(c.cfg.ZMQHashBlockPort))
	list.Append("zmqpubsequence", endpoint(c.cfg.ZMQSequencePort))
	if b, _ := record[catalog.KeyBlocksOnly].(bool); !b {
		list.Append("zmqpubhashtx", endpoint(c.cfg.ZMQHashTxPort))
	}
}

// chainTail appends the chain section header and the listener directives
// gated to it.
func (c *Compiler) chainTail(list *List) {
	list.AppendSection(c.cfg.Chain)
	list.Append("bind", fmt.Sprintf("%s:%d", c.cfg.BindAddr, c.cfg.PeerPort))
	list.Append("rpcbind", c.cfg.BindAddr)
	list.Append("rpcport", strconv.Itoa(c.cfg.RPCPort))
	if c.cfg.ExtraBind != "" {
		list.Append("whitebind", c.cfg.ExtraBind)
	}
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// formatNumber renders integers without a decimal point and keeps the
// shortest exact representation otherwise.
func formatNumber(f float64) string {
	if f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asStringSlice(value any) ([]string, bool) {
	switch items := value.(type) {
	case []string:
		return items, true
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
