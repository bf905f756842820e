package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/codefionn/amchat/internal/consts"
	"github.com/codefionn/amchat/internal/logger"
)

const appName = "amchat"

// Environment variables that override file values.
const (
	EnvLogLevel = "AMCHAT_LOG_LEVEL"
	EnvLogPath  = "AMCHAT_LOG_PATH"
)

// ServerConfig holds settings for the chat server
type ServerConfig struct {
	ListenAddr     string `json:"listen_addr"`
	CertFile       string `json:"cert_file"`
	KeyFile        string `json:"key_file"`
	MaxConnections int    `json:"max_connections"`
	GatewayAddr    string `json:"gateway_addr,omitempty"` // empty disables the HTTP gateway
	FileDir        string `json:"file_dir"`
	PidFile        string `json:"pid_file,omitempty"`
}

// ClientConfig holds settings for the interactive client
type ClientConfig struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	TLS                bool   `json:"tls"`
	ServerName         string `json:"server_name,omitempty"`
	CAFile             string `json:"ca_file,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
	WebSocketURL       string `json:"websocket_url,omitempty"` // dial through the gateway instead of TLS
	DownloadDir        string `json:"download_dir"`
}

// Config represents application configuration
type Config struct {
	Server   ServerConfig `json:"server"`
	Client   ClientConfig `json:"client"`
	LogLevel string       `json:"log_level"` // debug, info, warn, error, none
	LogPath  string       `json:"log_path"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", appName)
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appName)
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", appName)
	default:
		return defaultConfigDir()
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		Server: ServerConfig{
			ListenAddr:     net.JoinHostPort("", strconv.Itoa(consts.DefaultPort)),
			MaxConnections: consts.DefaultMaxConnections,
			FileDir:        "FileTransfer",
		},
		Client: ClientConfig{
			Host:        consts.DefaultHost,
			Port:        consts.DefaultPort,
			DownloadDir: "FileTransfer",
		},
		LogLevel: "info",
		LogPath:  filepath.Join(stateDir, appName+".log"),
	}
}

// Load loads configuration from file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	config.fillDefaults()
	return config, nil
}

// fillDefaults restores defaults for fields a config file left empty.
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = def.Server.ListenAddr
	}
	if c.Server.MaxConnections <= 0 {
		c.Server.MaxConnections = def.Server.MaxConnections
	}
	if c.Server.FileDir == "" {
		c.Server.FileDir = def.Server.FileDir
	}
	if c.Client.Host == "" {
		c.Client.Host = def.Client.Host
	}
	if c.Client.Port == 0 {
		c.Client.Port = def.Client.Port
	}
	if c.Client.DownloadDir == "" {
		c.Client.DownloadDir = def.Client.DownloadDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogPath == "" {
		c.LogPath = def.LogPath
	}
}

// ApplyEnv lets environment variables override logging settings.
func (c *Config) ApplyEnv() {
	if envLevel := strings.TrimSpace(os.Getenv(EnvLogLevel)); envLevel != "" {
		c.LogLevel = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv(EnvLogPath)); envPath != "" {
		c.LogPath = envPath
	}
}

// Level returns the parsed log level.
func (c *Config) Level() logger.Level {
	return logger.ParseLevel(c.LogLevel)
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.MaxConnections <= 0 {
		errs = append(errs, errors.New("server.max_connections must be positive"))
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		errs = append(errs, errors.New("server.cert_file and server.key_file must be set together"))
	}
	if c.Client.Port <= 0 || c.Client.Port > 65535 {
		errs = append(errs, fmt.Errorf("client.port %d out of range", c.Client.Port))
	}
	return errors.Join(errs...)
}

// ClientAddr returns the host:port the client dials.
func (c *Config) ClientAddr() string {
	return net.JoinHostPort(c.Client.Host, strconv.Itoa(c.Client.Port))
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
