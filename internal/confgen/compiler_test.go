package confgen

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/nodeward/nodeward/internal/catalog"
	"github.com/nodeward/nodeward/internal/runtimecfg"
)

func testConfig() runtimecfg.Config {
	cfg := runtimecfg.Defaults()
	cfg.RPCUser = "testuser"
	cfg.RPCSecret = "testsecret"
	cfg.TrustedSubnets = []string{"10.21.0.0/16"}
	return cfg
}

func compile(t *testing.T, cfg runtimecfg.Config, version string, overrides map[string]any) List {
	t.Helper()
	cat := catalog.NewWithDefaults()
	record, err := cat.Defaults(version)
	if err != nil {
		t.Fatalf("Defaults(%s): %v", version, err)
	}
	for k, v := range overrides {
		record[k] = v
	}

	// Fixed entropy keeps the rpcauth salt reproducible.
	c := New(cfg, WithRandom(bytes.NewReader(bytes.Repeat([]byte{0xab}, 32))))
	list, err := c.Compile(cat, version, record)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return list
}

func TestVersionSelectorNeverEmitted(t *testing.T) {
	list := compile(t, testConfig(), "29.0", nil)
	for _, d := range list {
		if d.Key == catalog.VersionKey {
			t.Fatalf("version selector leaked into native config: %s", d)
		}
	}
	if strings.Contains(list.Render(), "latest") {
		t.Error("rendered config mentions the latest sentinel")
	}
}

func TestPruneUnitConversion(t *testing.T) {
	list := compile(t, testConfig(), "29.0", map[string]any{
		catalog.KeyPrune: float64(2),
	})
	values := list.Values("prune")
	if len(values) != 1 {
		t.Fatalf("expected exactly one prune directive, got %v", values)
	}
	if values[0] != "1907" {
		t.Errorf("prune = %s, want 1907 (round(2 * 953.674))", values[0])
	}
}

func TestPruneDisabled(t *testing.T) {
	list := compile(t, testConfig(), "29.0", map[string]any{
		catalog.KeyPrune: float64(0),
	})
	values := list.Values("prune")
	if len(values) != 1 || values[0] != "0" {
		t.Errorf("prune = %v, want [0]", values)
	}
}

func TestFeeUnitConversion(t *testing.T) {
	list := compile(t, testConfig(), "29.0", map[string]any{
		catalog.KeyBlockMinTxFee: float64(5),
		catalog.KeyMinRelayTxFee: float64(1),
	})
	if got := list.Values("blockmintxfee"); len(got) != 1 || got[0] != "0.00005000" {
		t.Errorf("blockmintxfee = %v, want [0.00005000]", got)
	}
	if got := list.Values("minrelaytxfee"); len(got) != 1 || got[0] != "0.00001000" {
		t.Errorf("minrelaytxfee = %v, want [0.00001000]", got)
	}
}

func TestOnlyNetExpansion(t *testing.T) {
	list := compile(t, testConfig(), "29.0", map[string]any{
		catalog.KeyOnlyNet: []string{catalog.NetClearnet, catalog.NetTor},
	})
	got := list.Values("onlynet")
	want := []string{"ipv4", "ipv6", "onion"}
	if len(got) != len(want) {
		t.Fatalf("onlynet = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("onlynet[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestIncomingConnections(t *testing.T) {
	list := compile(t, testConfig(), "29.0", map[string]any{
		catalog.KeyIncomingConnections: []string{catalog.NetTor},
	})
	if got := list.Values("listen"); len(got) != 1 || got[0] != "1" {
		t.Errorf("listen = %v, want [1]", got)
	}
	if got := list.Values("listenonion"); len(got) != 1 || got[0] != "1" {
		t.Errorf("listenonion = %v, want [1]", got)
	}
	if got := list.Values("listeni2p"); len(got) != 1 || got[0] != "0" {
		t.Errorf("listeni2p = %v, want [0]", got)
	}
}

func TestBlocksOnlyCompanion(t *testing.T) {
	list := compile(t, testConfig(), "29.0", map[string]any{
		catalog.KeyBlocksOnly: true,
	})
	if got := list.Values("blocksonly"); len(got) != 1 || got[0] != "1" {
		t.Errorf("blocksonly = %v, want [1]", got)
	}
	if got := list.Values("walletbroadcast"); len(got) != 1 || got[0] != "0" {
		t.Errorf("walletbroadcast = %v, want [0]", got)
	}
	if got := list.Values("zmqpubhashtx"); len(got) != 0 {
		t.Errorf("zmqpubhashtx should be absent in blocks-only mode, got %v", got)
	}
}

func TestBlocksOnlyDisabled(t *testing.T) {
	list := compile(t, testConfig(), "29.0", map[string]any{
		catalog.KeyBlocksOnly: false,
	})
	if got := list.Values("walletbroadcast"); len(got) != 0 {
		t.Errorf("walletbroadcast should be absent, got %v", got)
	}
	if got := list.Values("zmqpubhashtx"); len(got) != 1 {
		t.Errorf("zmqpubhashtx should be present, got %v", got)
	}
}

func TestProxyDirective(t *testing.T) {
	list := compile(t, testConfig(), "29.0", map[string]any{
		catalog.KeyProxy: true,
	})
	if got := list.Values("proxy"); len(got) != 1 || got[0] != "127.0.0.1:9050" {
		t.Errorf("proxy = %v, want [127.0.0.1:9050]", got)
	}

	list = compile(t, testConfig(), "29.0", map[string]any{
		catalog.KeyProxy: false,
	})
	if got := list.Values("proxy"); len(got) != 0 {
		t.Errorf("proxy should be absent when disabled, got %v", got)
	}
}

func TestTorDirectives(t *testing.T) {
	list := compile(t, testConfig(), "29.0", nil)
	if got := list.Values("onion"); len(got) != 1 || got[0] != "127.0.0.1:9050" {
		t.Errorf("onion = %v", got)
	}
	if got := list.Values("torcontrol"); len(got) != 1 || got[0] != "127.0.0.1:9051" {
		t.Errorf("torcontrol = %v", got)
	}
}

func TestRPCAuth(t *testing.T) {
	list := compile(t, testConfig(), "29.0", nil)
	values := list.Values("rpcauth")
	if len(values) != 1 {
		t.Fatalf("expected one rpcauth directive, got %v", values)
	}

	// user:salt$digest
	rest, ok := strings.CutPrefix(values[0], "testuser:")
	if !ok {
		t.Fatalf("rpcauth = %s, want testuser: prefix", values[0])
	}
	salt, digest, ok := strings.Cut(rest, "$")
	if !ok {
		t.Fatalf("rpcauth missing $ separator: %s", values[0])
	}
	if len(salt) != 32 {
		t.Errorf("salt length = %d hex chars, want 32", len(salt))
	}
	if _, err := hex.DecodeString(salt); err != nil {
		t.Errorf("salt is not hex: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte("testsecret"))
	if want := hex.EncodeToString(mac.Sum(nil)); digest != want {
		t.Errorf("digest = %s, want %s", digest, want)
	}
}

func TestWhitelist(t *testing.T) {
	list := compile(t, testConfig(), "29.0", nil)
	got := list.Values("whitelist")
	if len(got) != 2 {
		t.Fatalf("whitelist = %v, want loopback + one subnet", got)
	}
	if got[0] != "127.0.0.1/32" {
		t.Errorf("whitelist[0] = %s, want loopback", got[0])
	}
	if got[1] != "10.21.0.0/16" {
		t.Errorf("whitelist[1] = %s", got[1])
	}
}

func TestChainSectionTail(t *testing.T) {
	cfg := testConfig()
	cfg.ExtraBind = "192.168.1.5:8333"
	list := compile(t, cfg, "29.0", nil)

	// Everything after the section header belongs to the chain context.
	section := -1
	for i, d := range list {
		if d.Section != "" {
			section = i
			break
		}
	}
	if section == -1 {
		t.Fatal("no chain section header emitted")
	}
	if list[section].Section != "main" {
		t.Errorf("section = %s, want main", list[section].Section)
	}

	tail := list[section+1:]
	wantKeys := []string{"bind", "rpcbind", "rpcport", "whitebind"}
	if len(tail) != len(wantKeys) {
		t.Fatalf("tail = %v, want keys %v", tail, wantKeys)
	}
	for i, k := range wantKeys {
		if tail[i].Key != k {
			t.Errorf("tail[%d].Key = %s, want %s", i, tail[i].Key, k)
		}
	}
	if tail[0].Value != "0.0.0.0:8333" {
		t.Errorf("bind = %s", tail[0].Value)
	}
	if tail[2].Value != "8332" {
		t.Errorf("rpcport = %s", tail[2].Value)
	}
	if tail[3].Value != "192.168.1.5:8333" {
		t.Errorf("whitebind = %s", tail[3].Value)
	}
}

func TestRemovedSettingNotEmitted(t *testing.T) {
	// mempoolfullrbf exists in 28.1 but not 29.0.
	list := compile(t, testConfig(), "28.1", nil)
	if got := list.Values("mempoolfullrbf"); len(got) != 1 {
		t.Errorf("mempoolfullrbf on 28.1 = %v, want one directive", got)
	}

	list = compile(t, testConfig(), "29.0", nil)
	if got := list.Values("mempoolfullrbf"); len(got) != 0 {
		t.Errorf("mempoolfullrbf on 29.0 = %v, want none", got)
	}
}

func TestDeterministicOutput(t *testing.T) {
	a := compile(t, testConfig(), "29.0", nil).Render()
	b := compile(t, testConfig(), "29.0", nil).Render()
	if a != b {
		t.Error("compilation with fixed entropy should be deterministic")
	}
	if !strings.HasSuffix(a, "\n") {
		t.Error("rendered config should end with a newline")
	}
}

func TestRenderSectionSyntax(t *testing.T) {
	var list List
	list.Append("txindex", "1")
	list.AppendSection("main")
	list.Append("bind", "0.0.0.0:8333")

	want := "txindex=1\n[main]\nbind=0.0.0.0:8333\n"
	if got := list.Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRemoveKey(t *testing.T) {
	var list List
	list.Append("prune", "2")
	list.Append("txindex", "1")
	list.Append("prune", "5")
	list.AppendSection("main")

	list.RemoveKey("prune")
	if got := list.Values("prune"); len(got) != 0 {
		t.Errorf("prune survived RemoveKey: %v", got)
	}
	if got := list.Values("txindex"); len(got) != 1 {
		t.Errorf("txindex should survive: %v", got)
	}
	if len(list) != 2 {
		t.Errorf("list length = %d, want 2 (txindex + section)", len(list))
	}
}
