// Package runtimecfg carries the manager's own service configuration.
//
// Values are layered: built-in defaults, then an optional TOML file, then
// environment variables. Later layers win. The environment layer is how the
// deployment feeds in endpoints, credentials, and extra daemon arguments
// that must never be hardcoded.
package runtimecfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix shared by every environment variable the manager
// reads.
const EnvPrefix = "NODEWARD_"

// Config is the manager's resolved service configuration.
type Config struct {
	// DataDir is the node's data directory.
	DataDir string `toml:"data_dir"`

	// BinRoot holds one subdirectory per installed node version.
	BinRoot string `toml:"bin_root"`

	// Chain selects the native-config section context. Defaults to "main";
	// overridable for development networks.
	Chain string `toml:"chain"`

	// RPCUser and RPCSecret form the node RPC credential. The secret is the
	// shared secret fed into the rpcauth digest.
	RPCUser   string `toml:"rpc_user"`
	RPCSecret string `toml:"rpc_secret"`

	// PeerPort and RPCPort are the node's listen ports.
	PeerPort int `toml:"peer_port"`
	RPCPort  int `toml:"rpc_port"`

	// BindAddr is the address the node binds for peer and RPC listeners.
	BindAddr string `toml:"bind_addr"`

	// ExtraBind, when set, is emitted as an additional trusted whitebind.
	ExtraBind string `toml:"extra_bind"`

	// Tor endpoints.
	TorSocksHost   string `toml:"tor_socks_host"`
	TorSocksPort   int    `toml:"tor_socks_port"`
	TorControlHost string `toml:"tor_control_host"`
	TorControlPort int    `toml:"tor_control_port"`

	// ZMQ publish endpoints.
	ZMQHost          string `toml:"zmq_host"`
	ZMQRawBlockPort  int    `toml:"zmq_rawblock_port"`
	ZMQRawTxPort     int    `toml:"zmq_rawtx_port"`
	ZMQHashBlockPort int    `toml:"zmq_hashblock_port"`
	ZMQSequencePort  int    `toml:"zmq_sequence_port"`
	ZMQHashTxPort    int    `toml:"zmq_hashtx_port"`

	// TrustedSubnets are emitted as whitelist directives.
	TrustedSubnets []string `toml:"trusted_subnets"`

	// ExtraArgs are appended to the daemon command line verbatim.
	ExtraArgs []string `toml:"extra_args"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DataDir:          "/var/lib/nodeward/bitcoin",
		BinRoot:          "/usr/local/lib/nodeward/versions",
		Chain:            "main",
		RPCUser:          "nodeward",
		BindAddr:         "0.0.0.0",
		PeerPort:         8333,
		RPCPort:          8332,
		TorSocksHost:     "127.0.0.1",
		TorSocksPort:     9050,
		TorControlHost:   "127.0.0.1",
		TorControlPort:   9051,
		ZMQHost:          "127.0.0.1",
		ZMQRawBlockPort:  28332,
		ZMQRawTxPort:     28333,
		ZMQHashBlockPort: 28334,
		ZMQSequencePort:  28335,
		ZMQHashTxPort:    28336,
	}
}

// Load resolves the configuration from defaults, the TOML file at path (if
// it exists), and the environment, in that order.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadFile merges the TOML file at path over cfg.
// A missing file is not an error.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// applyEnv merges environment variables over cfg.
func applyEnv(cfg *Config) error {
	for env, target := range map[string]*string{
		EnvPrefix + "DATA_DIR":         &cfg.DataDir,
		EnvPrefix + "BIN_ROOT":         &cfg.BinRoot,
		EnvPrefix + "CHAIN":            &cfg.Chain,
		EnvPrefix + "RPC_USER":         &cfg.RPCUser,
		EnvPrefix + "RPC_SECRET":       &cfg.RPCSecret,
		EnvPrefix + "BIND_ADDR":        &cfg.BindAddr,
		EnvPrefix + "EXTRA_BIND":       &cfg.ExtraBind,
		EnvPrefix + "TOR_SOCKS_HOST":   &cfg.TorSocksHost,
		EnvPrefix + "TOR_CONTROL_HOST": &cfg.TorControlHost,
		EnvPrefix + "ZMQ_HOST":         &cfg.ZMQHost,
	} {
		if val, ok := os.LookupEnv(env); ok {
			*target = val
		}
	}

	for env, target := range map[string]*int{
		EnvPrefix + "PEER_PORT":          &cfg.PeerPort,
		EnvPrefix + "RPC_PORT":           &cfg.RPCPort,
		EnvPrefix + "TOR_SOCKS_PORT":     &cfg.TorSocksPort,
		EnvPrefix + "TOR_CONTROL_PORT":   &cfg.TorControlPort,
		EnvPrefix + "ZMQ_RAWBLOCK_PORT":  &cfg.ZMQRawBlockPort,
		EnvPrefix + "ZMQ_RAWTX_PORT":     &cfg.ZMQRawTxPort,
		EnvPrefix + "ZMQ_HASHBLOCK_PORT": &cfg.ZMQHashBlockPort,
		EnvPrefix + "ZMQ_SEQUENCE_PORT":  &cfg.ZMQSequencePort,
		EnvPrefix + "ZMQ_HASHTX_PORT":    &cfg.ZMQHashTxPort,
	} {
		val, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s=%q: %w", env, val, err)
		}
		*target = n
	}

	if val, ok := os.LookupEnv(EnvPrefix + "TRUSTED_SUBNETS"); ok {
		cfg.TrustedSubnets = splitList(val)
	}
	if val, ok := os.LookupEnv(EnvPrefix + "EXTRA_ARGS"); ok {
		cfg.ExtraArgs = strings.Fields(val)
	}

	return nil
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SettingsStorePath returns the path of the JSON settings store.
func (c Config) SettingsStorePath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

// GeneratedConfPath returns the path of the fully-managed native config.
func (c Config) GeneratedConfPath() string {
	return filepath.Join(c.DataDir, "nodeward-generated.conf")
}

// UserConfPath returns the path of the user-owned native config.
func (c Config) UserConfPath() string {
	return filepath.Join(c.DataDir, "bitcoin.conf")
}

// CurrentLink returns the path of the "current version" indirection.
func (c Config) CurrentLink() string {
	return filepath.Join(c.BinRoot, "current")
}

// BinaryPath returns the daemon binary path for a concrete version.
func (c Config) BinaryPath(version string) string {
	return filepath.Join(c.BinRoot, version, "bin", "bitcoind")
}
