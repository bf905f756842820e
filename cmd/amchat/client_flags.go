package main

import (
	"github.com/spf13/cobra"

	"github.com/codefionn/amchat/internal/config"
)

var clientFlags struct {
	host        string
	port        int
	tls         bool
	serverName  string
	caFile      string
	insecure    bool
	webSocket   string
	downloadDir string
}

// addClientFlags registers the connection flags shared by connect, upload
// and download.
func addClientFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&clientFlags.host, "host", "", "Server host")
	f.IntVar(&clientFlags.port, "port", 0, "Server port")
	f.BoolVar(&clientFlags.tls, "tls", false, "Connect over TLS")
	f.StringVar(&clientFlags.serverName, "server-name", "", "Expected TLS server name, defaults to the host")
	f.StringVar(&clientFlags.caFile, "ca-file", "", "PEM file with trusted CA certificates")
	f.BoolVar(&clientFlags.insecure, "insecure", false, "Skip TLS certificate verification")
	f.StringVar(&clientFlags.webSocket, "ws", "", "Connect through a gateway WebSocket URL instead (ws:// or wss://)")
	f.StringVar(&clientFlags.downloadDir, "download-dir", "", "Directory downloads are saved to")
}

func applyClientFlags(cmd *cobra.Command, cc *config.ClientConfig) {
	f := cmd.Flags()
	if f.Changed("host") {
		cc.Host = clientFlags.host
	}
	if f.Changed("port") {
		cc.Port = clientFlags.port
	}
	if f.Changed("tls") {
		cc.TLS = clientFlags.tls
	}
	if f.Changed("server-name") {
		cc.ServerName = clientFlags.serverName
	}
	if f.Changed("ca-file") {
		cc.CAFile = clientFlags.caFile
	}
	if f.Changed("insecure") {
		cc.InsecureSkipVerify = clientFlags.insecure
	}
	if f.Changed("ws") {
		cc.WebSocketURL = clientFlags.webSocket
	}
	if f.Changed("download-dir") {
		cc.DownloadDir = clientFlags.downloadDir
	}
}
