package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mnohosten/lsmdb/pkg/adminserver"
	"github.com/mnohosten/lsmdb/pkg/compression"
	"github.com/mnohosten/lsmdb/pkg/encryption"
	"github.com/mnohosten/lsmdb/pkg/engine"
)

// buildEngineConfig translates CLI flags into an engine.Config, deriving
// an encryption key from the passphrase file when one is given.
func buildEngineConfig(dataDir string, flushThreshold int64, compressionName, encryptionKeyFile string) (*engine.Config, error) {
	cfg := engine.DefaultConfig(dataDir)
	cfg.MemTableFlushThreshold = flushThreshold

	algo, err := parseCompressionAlgorithm(compressionName)
	if err != nil {
		return nil, err
	}
	cfg.Compression = algo

	if encryptionKeyFile != "" {
		passphrase, err := os.ReadFile(encryptionKeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading encryption key file: %w", err)
		}
		encCfg, err := encryption.NewConfigFromPassphrase(strings.TrimSpace(string(passphrase)), []byte(dataDir))
		if err != nil {
			return nil, fmt.Errorf("deriving encryption key: %w", err)
		}
		cfg.Encryption = encCfg
	}

	return cfg, nil
}

func parseCompressionAlgorithm(name string) (compression.Algorithm, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return compression.AlgorithmNone, nil
	case "snappy":
		return compression.AlgorithmSnappy, nil
	case "zstd":
		return compression.AlgorithmZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm: %s", name)
	}
}

func openEngine(cfg *engine.Config) (*engine.Engine, error) {
	return engine.Open(cfg)
}

func defaultAdminConfig() *adminserver.Config {
	return adminserver.DefaultConfig()
}

func newAdminServer(cfg *adminserver.Config, eng *engine.Engine) (*adminserver.Server, error) {
	return adminserver.New(cfg, eng)
}
