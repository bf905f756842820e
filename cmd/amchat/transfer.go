package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codefionn/amchat/internal/chatclient"
	"github.com/codefionn/amchat/internal/cli"
	"github.com/codefionn/amchat/internal/logger"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a file to the server",
	Long:  "Upload a local file. It is stored on the server under its base name; existing files are never overwritten.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, func(ctx context.Context, t *cli.Transfers) error {
			resp, err := t.Upload(ctx, args[0])
			if err != nil {
				return err
			}
			if !resp.Success {
				return errors.New(resp.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Upload successful.")
			return nil
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <name>",
	Short: "Download a file from the server",
	Long:  "Download a file into the download directory. An existing local file with the same name is never overwritten.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, func(ctx context.Context, t *cli.Transfers) error {
			resp, path, err := t.Download(ctx, args[0])
			if err != nil {
				return err
			}
			if !resp.Success {
				return errors.New(resp.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Download successful: %s\n", path)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd, downloadCmd)
	addClientFlags(uploadCmd)
	addClientFlags(downloadCmd)
}

func runTransfer(cmd *cobra.Command, fn func(context.Context, *cli.Transfers) error) error {
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
	return fn(cmd.Context(), cli.NewTransfers(ccfg.DialFileTransfer, cfg.Client.DownloadDir, log))
}
