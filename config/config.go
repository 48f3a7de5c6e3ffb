package config

import (
	"encoding/hex"
	"os"

	"authdelegation/crypto"

	"github.com/BurntSushi/toml"
)

// Config holds cmd/delegationd's own knobs. The AuthorityEngine, PolicyEngine,
// and Ledger never read this type directly; the daemon turns it into store,
// logger, and telemetry wiring before constructing them.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	OperatorKey   string `toml:"OperatorKey"`

	// KeystorePath, when set, overrides OperatorKey: the daemon decrypts the
	// operator key from this Ethereum v3 keystore file instead of reading
	// raw hex from the config. The keystore passphrase is read from the
	// DELEGATION_KEYSTORE_PASSPHRASE environment variable rather than the
	// file, since config.toml may end up in a config management system.
	KeystorePath string `toml:"KeystorePath"`

	// DefaultCeiling and DefaultDecayPerSecond parameterize the single demo
	// relationship the daemon seeds at startup; the ceiling also serves as
	// its initial authority.
	DefaultCeiling        string `toml:"DefaultCeiling"`
	DefaultDecayPerSecond string `toml:"DefaultDecayPerSecond"`

	OTLPEndpoint string `toml:"OTLPEndpoint"`
	MetricsAddr  string `toml:"MetricsAddr"`

	LogFile       string `toml:"LogFile"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`
}

// Load loads the configuration from path, creating a default file when no
// file exists at path yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if cfg.OperatorKey == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.OperatorKey = hex.EncodeToString(key.Bytes())

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, os.ModePerm)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress:         ":7801",
		DataDir:               "./delegation-data",
		OperatorKey:           hex.EncodeToString(key.Bytes()),
		KeystorePath:          "",
		DefaultCeiling:        "500000000000000000000",
		DefaultDecayPerSecond: "277777777777778",
		OTLPEndpoint:          "localhost:4318",
		MetricsAddr:           ":9464",
		LogFile:               "",
		LogMaxSizeMB:          100,
		LogMaxBackups:         3,
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
