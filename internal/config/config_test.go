package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaulted(t *testing.T) *Config {
	t.Helper()
	c := &Config{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlagsAndApplyDefaults("", fs)
	return c
}

func TestDefaultsAreValid(t *testing.T) {
	c := defaulted(t)
	require.NoError(t, c.Validate())
	assert.Equal(t, "0.0.0.0:1234", c.ListenAddress)
	assert.Equal(t, 32*1024*1024, c.MaxMessageBytes)
	assert.Equal(t, 200000, c.MaxArgs)
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	c := defaulted(t)
	c.MaxMessageBytes = 0
	assert.Error(t, c.Validate())

	c = defaulted(t)
	c.RehashLoadFactor = -1
	assert.Error(t, c.Validate())

	c = defaulted(t)
	c.ListenAddress = ""
	assert.Error(t, c.Validate())
}

func TestLoadExpandsEnvAndOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_address: \"${TEST_KVSERVER_ADDR}\"\nmigrate_quantum: 64\n"), 0o644))

	t.Setenv("TEST_KVSERVER_ADDR", "127.0.0.1:7000")

	c := defaulted(t)
	require.NoError(t, Load(path, c))

	assert.Equal(t, "127.0.0.1:7000", c.ListenAddress)
	assert.Equal(t, 64, c.MigrateQuantum)
	// fields untouched by the file retain their flag defaults
	assert.Equal(t, 32*1024*1024, c.MaxMessageBytes)
}
