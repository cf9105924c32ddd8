// Package config parses the engine's local (non-container) configuration:
// the storage-type toggle, KDF parameters, and the control-socket path.
// This is operator/CLI configuration, never container-format state; the
// library core never reads a config file itself, it takes Go values from
// its caller.
//
// Grounded on the pack's HuJSON-based JSONC config loading pattern:
// standardize to plain JSON with github.com/tailscale/hujson, then
// encoding/json.Unmarshal.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/teefs/secobjfs"
	"github.com/teefs/secobjfs/internal/kdf"
)

// Config is the engine's local configuration file, conventionally named
// secobjfs.conf.json (JSONC: comments and trailing commas are accepted).
type Config struct {
	// Backend selects which transport class secobjfs.StorageType this
	// engine identifies as: "default" or "rpmb".
	Backend string `json:"backend,omitempty"`
	// CtlSockPath is the path of the Unix-domain control socket; empty
	// disables it.
	CtlSockPath string `json:"ctlsock,omitempty"`
	// Argon2id carries the KDF parameters used to derive the session
	// wrap key from an operator-supplied passphrase.
	Argon2id Argon2idConfig `json:"argon2id,omitempty"`
}

// Argon2idConfig mirrors internal/kdf.Argon2idKDF's tunable parameters,
// in a form that survives a round trip through JSON (the salt is never
// stored in the engine config; it lives in the container-specific key
// material, out of scope here).
type Argon2idConfig struct {
	Memory      uint32 `json:"memory,omitempty"`
	Iterations  uint32 `json:"iterations,omitempty"`
	Parallelism uint8  `json:"parallelism,omitempty"`
}

// StorageType resolves Backend into the secobjfs.StorageType identifier,
// defaulting to StorageTypeDefault for an empty or unrecognized value.
func (c Config) StorageType() secobjfs.StorageType {
	if c.Backend == "rpmb" {
		return secobjfs.StorageTypeRPMB
	}
	return secobjfs.StorageTypeDefault
}

// Default returns the configuration used when no config file is present.
func Default() Config {
	return Config{
		Backend: "default",
		Argon2id: Argon2idConfig{
			Memory:      kdf.Argon2idDefaultMemory,
			Iterations:  kdf.Argon2idDefaultIterations,
			Parallelism: kdf.Argon2idDefaultParallelism,
		},
	}
}

// Load reads and parses the JSONC config file at path. A missing file is
// not an error: Default() is returned instead, so a fresh deployment
// works with no config file at all.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %q is not valid JSONC: %w", path, err)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, nil
}
