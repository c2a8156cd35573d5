// fdfspool keeps pools of connections to the trackers and storage nodes of
// one or more distributed file storage clusters.
//
// Usage:
//
//	fdfspool [flags]                  Run the pools and serve status and metrics
//	fdfspool probe [cluster]          Acquire one tracker connection per cluster
//	fdfspool config                   Print the effective configuration
//
// Flags:
//
//	-config string
//	    Path to configuration file (default "~/.fdfspool/config.toml")
//	-trackers string
//	    Comma-separated trackers for the default cluster (overrides config)
//	-network string
//	    tcp or i2p (overrides config)
//	-metrics string
//	    Serve stats, health probes and metrics on this address (overrides config)
//	-v
//	    Enable verbose logging
//	-version
//	    Print version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/go-i2p/fdfspool/lib/core"
	"github.com/go-i2p/fdfspool/lib/web"
	"github.com/go-i2p/fdfspool/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	defaultConfigPath := filepath.Join(homeDir, ".fdfspool", "config.toml")

	configPath := flag.String("config", defaultConfigPath, "Path to configuration file (.toml, .yaml or .yml)")
	trackers := flag.String("trackers", "", "Comma-separated trackers for the default cluster (overrides config)")
	network := flag.String("network", "", "tcp or i2p (overrides config)")
	metricsAddr := flag.String("metrics", "", "Serve stats, health probes and metrics on this address (overrides config)")
	probeTimeout := flag.Duration("timeout", 10*time.Second, "Probe timeout")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fdfspool - connection pools for distributed file storage clusters\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  fdfspool [flags]               Run the pools and serve status\n")
		fmt.Fprintf(os.Stderr, "  fdfspool probe [cluster]       Acquire one tracker connection per cluster\n")
		fmt.Fprintf(os.Stderr, "  fdfspool config                Print the effective configuration\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("fdfspool version %s\n", version.Full())
		return 0
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}

	// Apply command-line overrides
	if *trackers != "" {
		cfg.Clusters[0].Trackers = splitList(*trackers)
	}
	if *network != "" {
		cfg.Transport.Network = *network
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	args := flag.Args()
	if len(args) > 0 {
		switch args[0] {
		case "probe":
			return handleProbe(cfg, logger, args[1:], *probeTimeout)
		case "config":
			return handleConfig(cfg)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
			flag.Usage()
			return 1
		}
	}

	return serve(cfg, logger)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// serve starts the client and blocks until SIGINT or SIGTERM.
func serve(cfg *core.Config, logger *slog.Logger) int {
	client, err := core.NewClient(cfg, logger)
	if err != nil {
		logger.Error("failed to create client", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := client.Start(ctx); err != nil {
		logger.Error("failed to start client", "error", err)
		return 1
	}

	var srv *web.Server
	if cfg.Metrics.Enabled {
		srv, err = web.New(web.Config{
			ListenAddr:   cfg.Metrics.Listen,
			Source:       client.Directory(),
			OpenCircuits: client.OpenCircuits,
			Logger:       logger,
		})
		if err == nil {
			err = srv.Start()
		}
		if err != nil {
			logger.Error("failed to start status server", "error", err)
			client.Stop(context.Background())
			return 1
		}
	}

	logger.Info("fdfspool started", "clusters", client.Directory().IDs(), "version", version.Full())

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-client.Done():
		logger.Info("client stopped unexpectedly")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	code := 0
	if srv != nil {
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("status server shutdown error", "error", err)
			code = 1
		}
	}
	if err := client.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		code = 1
	}

	logger.Info("fdfspool stopped")
	return code
}

// handleProbe acquires and releases one tracker connection for each
// selected cluster and reports which tracker answered.
func handleProbe(cfg *core.Config, logger *slog.Logger, args []string, timeout time.Duration) int {
	clusters := cfg.Clusters
	if len(args) > 0 {
		cl, ok := cfg.Cluster(args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown cluster: %s\n", args[0])
			return 1
		}
		clusters = []core.ClusterConfig{cl}
	}

	client, err := core.NewClient(cfg, logger)
	if err != nil {
		logger.Error("failed to create client", "error", err)
		return 1
	}
	if err := client.Start(context.Background()); err != nil {
		logger.Error("failed to start client", "error", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client.Stop(ctx)
	}()

	dir := client.Directory()
	failed := 0
	fmt.Printf("%-20s %-28s %-10s %s\n", "CLUSTER", "TRACKER", "LATENCY", "RESULT")
	for _, cl := range clusters {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		start := time.Now()
		conn, err := dir.GetCoordinatorConnection(ctx, cl.Name)
		elapsed := time.Since(start).Round(time.Millisecond)
		cancel()

		if err != nil {
			failed++
			fmt.Printf("%-20s %-28s %-10s %v\n", cl.Name, "-", elapsed, err)
			continue
		}
		fmt.Printf("%-20s %-28s %-10s ok\n", cl.Name, conn.Endpoint(), elapsed)
		conn.Release(true)
	}

	if failed > 0 {
		return 1
	}
	return 0
}

// handleConfig prints the effective configuration as TOML.
func handleConfig(cfg *core.Config) int {
	data, err := toml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	os.Stdout.Write(data)
	return 0
}
