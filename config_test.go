package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocknetprivacy/blocksim/protocol/params"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"negative difficulty": func(c *Config) { c.Difficulty = -1 },
		"difficulty too high": func(c *Config) { c.Difficulty = params.MaxDifficulty + 1 },
		"attacker power zero": func(c *Config) { c.AttackerPower = 0 },
		"attacker power 100":  func(c *Config) { c.AttackerPower = 100 },
		"zero rate":           func(c *Config) { c.APIRate = 0 },
		"zero burst":          func(c *Config) { c.APIBurst = 0 },
		"persist without dir": func(c *Config) { c.DataDir = " " },
		"unknown log format":  func(c *Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Persist = false
	cfg.DataDir = ""
	assert.NoError(t, cfg.Validate(), "data dir is optional without persistence")
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(newViper())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("BLOCKSIM_DIFFICULTY", "4")
	t.Setenv("BLOCKSIM_API_ADDR", "127.0.0.1:9999")

	cfg, err := LoadConfig(newViper())
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Difficulty)
	assert.Equal(t, "127.0.0.1:9999", cfg.APIAddr)
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("BLOCKSIM_DIFFICULTY", "4")

	v := newViper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, bindConfigFlags(v, flags))
	require.NoError(t, flags.Parse([]string{"--difficulty=6", "--no-color"}))

	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Difficulty)
	assert.True(t, cfg.NoColor)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocksim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("difficulty: 3\nattacker_power: 75\nlog_format: json\n"), 0600))

	v := newViper()
	require.NoError(t, readConfigFile(v, path))
	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Difficulty)
	assert.Equal(t, 75, cfg.AttackerPower)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("BLOCKSIM_ATTACKER_POWER", "150")
	_, err := LoadConfig(newViper())
	assert.Error(t, err)
}

func TestReadConfigFileMissing(t *testing.T) {
	v := newViper()
	assert.Error(t, readConfigFile(v, filepath.Join(t.TempDir(), "missing.yaml")))

	t.Chdir(t.TempDir())
	assert.NoError(t, readConfigFile(newViper(), ""), "missing default file is fine")
}
