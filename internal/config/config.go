// Package config defines the server's runtime configuration: the listen
// address plus the engine and dictionary tunables (rehash load factor,
// migration quantum, read chunk size, message/arg limits). Flags are
// registered with the defaults, optionally overlaid by a YAML file that is
// first run through envsubst.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v3"
)

// Config holds every server tunable. Zero-value Config is not valid; call
// RegisterFlagsAndApplyDefaults before use.
type Config struct {
	ListenAddress string `yaml:"listen_address"`
	MetricsAddr   string `yaml:"metrics_address"`
	LogLevel      string `yaml:"log_level"`

	MaxMessageBytes int `yaml:"max_message_bytes"`
	MaxArgs         int `yaml:"max_args"`

	RehashLoadFactor float64 `yaml:"rehash_load_factor"`
	MigrateQuantum   int     `yaml:"migrate_quantum"`
	ReadChunkBytes   int     `yaml:"read_chunk_bytes"`
}

// RegisterFlagsAndApplyDefaults registers c's fields on f with prefix
// prepended to every flag name, and fills c with the defaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.ListenAddress, prefix+"listen-address", "0.0.0.0:1234", "TCP listen address.")
	f.StringVar(&c.MetricsAddr, prefix+"metrics-address", ":9090", "HTTP address serving /metrics.")
	f.StringVar(&c.LogLevel, prefix+"log-level", "info", "One of debug, info, warn, error.")

	f.IntVar(&c.MaxMessageBytes, prefix+"max-message-bytes", 32*1024*1024, "Maximum request/response body size.")
	f.IntVar(&c.MaxArgs, prefix+"max-args", 200000, "Maximum number of strings in a request body.")

	f.Float64Var(&c.RehashLoadFactor, prefix+"rehash-load-factor", 8.0, "Average chain length that triggers a progressive rehash.")
	f.IntVar(&c.MigrateQuantum, prefix+"migrate-quantum", 128, "Entries migrated from the secondary hash table per operation.")
	f.IntVar(&c.ReadChunkBytes, prefix+"read-chunk-bytes", 64*1024, "Bytes read from a socket per readability event.")
}

// Validate reports whether c's fields are within the ranges the components
// that consume them require.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address must not be empty")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max_message_bytes must be positive, got %d", c.MaxMessageBytes)
	}
	if c.MaxArgs <= 0 {
		return fmt.Errorf("max_args must be positive, got %d", c.MaxArgs)
	}
	if c.RehashLoadFactor <= 0 {
		return fmt.Errorf("rehash_load_factor must be positive, got %f", c.RehashLoadFactor)
	}
	if c.MigrateQuantum <= 0 {
		return fmt.Errorf("migrate_quantum must be positive, got %d", c.MigrateQuantum)
	}
	if c.ReadChunkBytes <= 0 {
		return fmt.Errorf("read_chunk_bytes must be positive, got %d", c.ReadChunkBytes)
	}
	return nil
}

// Load reads path, expands ${VAR}/$VAR references against the process
// environment, and unmarshals the result over c's already-defaulted
// fields.
func Load(path string, c *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	expanded, err := envsubst.EvalEnv(string(raw))
	if err != nil {
		return fmt.Errorf("failed to expand env vars in config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
