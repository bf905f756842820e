package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codefionn/amchat/internal/chatclient"
	"github.com/codefionn/amchat/internal/cli"
	"github.com/codefionn/amchat/internal/logger"
)

var connectUser string

// connectCmd runs the interactive client.
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Join a chat server interactively",
	Long: `Connect to a chat server and read commands from standard input.

Lines starting with '/' are commands; type /help for the list. Any other
line is sent to every room you cast to.`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
	addClientFlags(connectCmd)
	connectCmd.Flags().StringVarP(&connectUser, "user", "u", "", "Username, prompted for when empty")
}

func runConnect(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	applyClientFlags(cmd, &cfg.Client)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closeLog, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	log := logger.Global()

	ccfg, err := chatclient.NewConfig(cfg.Client)
	if err != nil {
		return err
	}

	in := bufio.NewReader(os.Stdin)
	username := connectUser
	if username == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Username: ")
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	display := cli.NewTerminalDisplay()
	client := chatclient.New(ccfg, display, log)
	if err := client.Connect(ctx, username); err != nil {
		return fmt.Errorf("unable to establish connection: %w", err)
	}
	defer client.Close()

	server := cfg.ClientAddr()
	if cfg.Client.WebSocketURL != "" {
		server = cfg.Client.WebSocketURL
	}
	display.Info("Connection established to %s as %s. Type /help for commands.", server, username)

	files := cli.NewTransfers(ccfg.DialFileTransfer, cfg.Client.DownloadDir, log)
	shell := cli.NewShell(client, display, files, log)
	if err := shell.Run(ctx, in); err != nil {
		if errors.Is(err, context.Canceled) {
			_ = client.Disconnect()
			return nil
		}
		return err
	}
	return nil
}
