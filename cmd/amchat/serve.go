package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codefionn/amchat/internal/chatserver"
	"github.com/codefionn/amchat/internal/config"
	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/pidfile"
	"github.com/codefionn/amchat/internal/pprof"
	"github.com/codefionn/amchat/internal/web"
)

var serveFlags struct {
	listen         string
	certFile       string
	keyFile        string
	maxConnections int
	gateway        string
	fileDir        string
	pidFile        string
	pprof          bool
	cpuProfile     string
	heapProfile    string
}

// serveCmd runs the chat server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Long: `Start the chat server. Connections are served over TLS when a certificate
and key are configured, otherwise over plain TCP. With a gateway address the
server also exposes /ws, /metrics and /healthz over HTTP.

Changes to the log level in the config file apply without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.listen, "listen", "", "Address to listen on (host:port)")
	f.StringVar(&serveFlags.certFile, "cert", "", "TLS certificate file")
	f.StringVar(&serveFlags.keyFile, "key", "", "TLS private key file")
	f.IntVar(&serveFlags.maxConnections, "max-connections", 0, "Maximum concurrent connections")
	f.StringVar(&serveFlags.gateway, "gateway", "", "HTTP gateway address, empty to disable")
	f.StringVar(&serveFlags.fileDir, "file-dir", "", "Directory for transferred files")
	f.StringVar(&serveFlags.pidFile, "pid-file", "", "Write the server pid to this file")
	f.BoolVar(&serveFlags.pprof, "pprof", false, "Serve /debug/pprof on the gateway")
	f.StringVar(&serveFlags.cpuProfile, "cpu-profile", "", "Write a CPU profile of the run to this file")
	f.StringVar(&serveFlags.heapProfile, "heap-profile", "", "Write a heap profile to this file on shutdown")
}

func applyServeFlags(cmd *cobra.Command, sc *config.ServerConfig) {
	f := cmd.Flags()
	if f.Changed("listen") {
		sc.ListenAddr = serveFlags.listen
	}
	if f.Changed("cert") {
		sc.CertFile = serveFlags.certFile
	}
	if f.Changed("key") {
		sc.KeyFile = serveFlags.keyFile
	}
	if f.Changed("max-connections") {
		sc.MaxConnections = serveFlags.maxConnections
	}
	if f.Changed("gateway") {
		sc.GatewayAddr = serveFlags.gateway
	}
	if f.Changed("file-dir") {
		sc.FileDir = serveFlags.fileDir
	}
	if f.Changed("pid-file") {
		sc.PidFile = serveFlags.pidFile
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, &cfg.Server)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closeLog, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	log := logger.Global()
	log.Info("amchat %s starting", version)

	if cfg.Server.PidFile != "" {
		pf := pidfile.New(cfg.Server.PidFile)
		if err := pf.Acquire(); err != nil {
			return err
		}
		defer func() {
			if err := pf.Release(); err != nil {
				log.Warn("failed to remove pid file: %v", err)
			}
		}()
	}

	profiles := pprof.NewHandler(pprof.Config{
		CPUProfile:  serveFlags.cpuProfile,
		HeapProfile: serveFlags.heapProfile,
	}, log)
	if err := profiles.Start(); err != nil {
		return err
	}
	defer func() {
		if err := profiles.Stop(); err != nil {
			log.Warn("failed to write profiles: %v", err)
		}
	}()

	srv, err := chatserver.NewServer(&cfg.Server, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	var gateway *web.Server
	if cfg.Server.GatewayAddr != "" {
		gateway = web.NewServer(cfg.Server.GatewayAddr, srv, log)
		if serveFlags.pprof {
			gateway.EnableProfiling()
		}
		if err := gateway.Start(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		var result error
		if gateway != nil {
			if err := gateway.Stop(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := srv.Stop(); err != nil {
			result = multierror.Append(result, err)
		}
		return result
	})
	if _, statErr := os.Stat(path); statErr == nil {
		g.Go(func() error {
			return config.Watch(gctx, path, log, func(fresh *config.Config) {
				reloadLogLevel(log, fresh)
			})
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", cfg.Server.ListenAddr)
	if gateway != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Gateway on http://%s\n", gateway.Addr())
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reloadLogLevel applies a changed log level unless the command line pinned
// one.
func reloadLogLevel(log *logger.Logger, fresh *config.Config) {
	if logLevel != "" {
		return
	}
	fresh.ApplyEnv()
	level := fresh.Level()
	if level == log.GetLevel() {
		return
	}
	log.Info("log level changed to %s", level)
	log.SetLevel(level)
}
