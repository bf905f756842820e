package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codefionn/amchat/internal/consts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":12589", cfg.Server.ListenAddr)
	assert.Equal(t, consts.DefaultMaxConnections, cfg.Server.MaxConnections)
	assert.Equal(t, "127.0.0.1", cfg.Client.Host)
	assert.Equal(t, consts.DefaultPort, cfg.Client.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:12589", cfg.ClientAddr())
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFillsEmptyFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"server": {"listen_addr": ":9000"}, "client": {"host": "chat.example.org"}, "log_level": ""}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, consts.DefaultMaxConnections, cfg.Server.MaxConnections)
	assert.Equal(t, "chat.example.org", cfg.Client.Host)
	assert.Equal(t, consts.DefaultPort, cfg.Client.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.LogPath)
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Server.CertFile = "server.crt"
	cfg.Server.KeyFile = "server.key"
	cfg.Server.GatewayAddr = "127.0.0.1:8080"
	cfg.LogLevel = "debug"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogPath, "/tmp/amchat-test.log")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/amchat-test.log", cfg.LogPath)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"cert without key", func(c *Config) { c.Server.CertFile = "a.crt" }, true},
		{"cert and key", func(c *Config) { c.Server.CertFile = "a.crt"; c.Server.KeyFile = "a.key" }, false},
		{"bad port", func(c *Config) { c.Client.Port = 70000 }, true},
		{"no connections", func(c *Config) { c.Server.MaxConnections = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, DefaultConfig().Save(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(cfg *Config) { changes <- cfg })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	require.NoError(t, cfg.Save(path))

	select {
	case got := <-changes:
		assert.Equal(t, "debug", got.LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	cancel()
	require.NoError(t, <-done)
}
