package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codefionn/amchat/internal/config"
	"github.com/codefionn/amchat/internal/logger"
)

var (
	configFile string
	logLevel   string
	logPath    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "amchat",
	Short: "Multi-room chat over a multiplexed TCP protocol",
	Long: `amchat is a multi-room chat server and command-line client.

Clients register a unique username, create and subscribe to rooms, broadcast
to room members and send personal messages. Files can be shared through the
server's file transfer mode.

Use 'amchat help <command>' for more information on a specific command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (JSON), defaults to "+config.GetConfigPath())
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error, none")
	rootCmd.PersistentFlags().StringVar(&logPath, "log-path", "", "Log file path")
}

// loadConfig reads the config file and applies environment and flag
// overrides for logging. It returns the path it read from.
func loadConfig() (*config.Config, string, error) {
	path := configFile
	if path == "" {
		path = config.GetConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	return cfg, path, nil
}

// initLogger installs the global logger and returns its cleanup.
func initLogger(cfg *config.Config) (func(), error) {
	if err := logger.Init(cfg.Level(), cfg.LogPath); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return func() {
		if err := logger.Global().Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", err)
		}
	}, nil
}
