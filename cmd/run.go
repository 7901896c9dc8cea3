package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gossip_node/internal/config"
	"gossip_node/internal/dataType"
	"gossip_node/internal/handler"
	"gossip_node/internal/server"
	"gossip_node/internal/telemetry"
	"gossip_node/internal/utils"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Run the gossip broadcast workload",
	Long: `Run the gossip broadcast workload: broadcast, gossip, read, topology
and are-you-there requests.

Examples:
  # Run under the harness
  maelstrom test -w broadcast --bin ./gossip_node --node-count 5

  # Use a config file from /etc/gossip_node/config/gossip_node.yml
  gossip_node broadcast --prefix=/etc/gossip_node`,
	RunE: runBroadcast,
}

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Run the echo workload",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(func(_ context.Context, n *server.Node) {
			n.Handle(dataType.TypeEcho, handler.Echo)
		})
	},
}

var uniqueIDsCmd = &cobra.Command{
	Use:   "unique-ids",
	Short: "Run the unique id generation workload",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(func(_ context.Context, n *server.Node) {
			n.Handle(dataType.TypeGenerate, handler.Generate(n.Config().IDMode))
		})
	},
}

func init() {
	rootCmd.AddCommand(broadcastCmd, echoCmd, uniqueIDsCmd)
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	return runNode(func(ctx context.Context, n *server.Node) {
		server.NewGossipManager(n).Start(ctx)
	})
}

// runNode loads the config, wires the workload and serves stdin until EOF.
func runNode(workload func(ctx context.Context, n *server.Node)) error {
	cfg, err := config.LoadMainConfig(basePath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
	}

	logger, err := utils.NewTraceLogger(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.NewMetrics()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger.Named("metrics")); err != nil {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	n := server.NewNode(cfg, os.Stdout, logger, metrics)
	workload(ctx, n)

	logger.Info("node ready, reading stdin", zap.Duration("rpc_timeout", cfg.RPCTimeout))
	if err := n.Run(ctx, os.Stdin); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("interrupted, exiting")
			return nil
		}
		logger.Error("fatal input error", zap.Error(err))
		return err
	}
	logger.Info("input closed, exiting")
	return nil
}
