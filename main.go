// Command chainmesh runs a federation of independent chains, each driving
// its own consensus engine, connected by a lossy transport and a pool of
// off-chain relayers that move IBC packets between them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"chainmesh/core/config"
	"chainmesh/core/jsonlog"
	"chainmesh/core/logging"
	"chainmesh/core/metrics"
	"chainmesh/core/sim"
	"chainmesh/internal/observability"
)

// defaultTopology mirrors the three-chain, three-consensus-kind topology
// the simulation ships with by default: one PoW chain, one PoS chain, one
// PBFT chain.
func defaultTopology() []config.ChainConfig {
	a := config.DefaultChainConfig("chain-A")
	a.NodeCount = 3
	a.PowDifficulty = 3

	b := config.DefaultChainConfig("chain-B")
	b.ConsensusKind = config.PoS
	b.NodeCount = 4
	b.ValidatorSetSize = 4

	c := config.DefaultChainConfig("chain-C")
	c.ConsensusKind = config.PBFT
	c.NodeCount = 4
	c.PbftFaultTolerance = 1

	return []config.ChainConfig{a, b, c}
}

// applyFlagOverrides layers explicitly-set run flags on top of whatever
// SimulationConfig was loaded from the environment (or its defaults). Each
// override is gated on cmd.IsSet, so omitting a flag leaves the loaded value
// alone, while a flag given explicitly (even as 0) replaces it.
func applyFlagOverrides(cmd *cli.Command, simCfg *config.SimulationConfig) {
	if cmd.IsSet("seed") {
		simCfg.RngSeed = cmd.Uint64("seed")
	}
	if cmd.IsSet("run-for") {
		simCfg.RunFor = cmd.Duration("run-for")
	}
	if cmd.IsSet("latency") {
		simCfg.DefaultLinkLatency = cmd.Duration("latency")
	}
	if cmd.IsSet("drop-rate") {
		simCfg.PacketDropRate = cmd.Float64("drop-rate")
	}
	if cmd.IsSet("relayers") {
		simCfg.RelayerCount = int(cmd.Int("relayers"))
	}
}

func runCommand(ctx context.Context, cmd *cli.Command) error {
	if err := logging.Init(logging.WithLevel(cmd.String("log-level"))); err != nil {
		return cli.Exit(fmt.Sprintf("failed to init logger: %v", err), 1)
	}
	defer logging.Sync()

	logDir := cmd.String("log-dir")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return cli.Exit(fmt.Sprintf("failed to create log dir: %v", err), 1)
	}
	logs, err := jsonlog.Open(logDir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open jsonlog writer: %v", err), 1)
	}
	defer logs.Close()

	simCfg, err := config.LoadSimulationConfig("SIM")
	if err != nil {
		logging.Warn(ctx, "falling back to default simulation config", "err", err)
		simCfg = config.DefaultSimulationConfig()
	}
	applyFlagOverrides(cmd, &simCfg)
	if err := config.Validate(&simCfg); err != nil {
		return cli.Exit(fmt.Sprintf("simulation config invalid after flag overrides: %v", err), 1)
	}

	m, err := metrics.Open(cmd.String("metrics-path"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open metrics sink: %v", err), 1)
	}
	defer m.Close()

	ctrl := sim.New(defaultTopology(), simCfg, m, logs)

	logging.Info(ctx, "initializing simulation")
	if err := ctrl.Init(); err != nil {
		return cli.Exit(fmt.Sprintf("simulation init failed: %v", err), 1)
	}

	if err := ctrl.Start(); err != nil {
		return cli.Exit(fmt.Sprintf("simulation start failed: %v", err), 2)
	}

	if err := ctrl.OpenIBC("chain-A", "port-A", "channel-A", "chain-B", "port-B", "channel-B"); err != nil {
		logging.Warn(ctx, "failed to open default ibc channel", "err", err)
	}

	ctrl.InjectBurst()

	obs := observability.New(ctrl)
	if err := obs.Start(cmd.String("explorer-addr")); err != nil {
		logging.Warn(ctx, "failed to start observability server", "err", err)
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Println("chainmesh running (press Ctrl-C to stop early)...")
	ctrl.Run(runCtx)

	fmt.Println("stopping simulation...")
	obs.Stop()
	ctrl.Stop()
	fmt.Println("simulation stopped.")
	return nil
}

func main() {
	app := &cli.Command{
		EnableShellCompletion: true,
		Name:                  "chainmesh",
		Description:           "Simulates a federation of independently-consensused chains linked by IBC.",
		Usage:                 "chainmesh [command] [flags]",
		Commands: []*cli.Command{
			{
				Name:        "run",
				Description: "Builds the default chain topology and runs the simulation until its time budget elapses or Ctrl-C is pressed.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "log-level", Value: "info", Usage: "minimum log level: debug, info, warn, error"},
					&cli.StringFlag{Name: "log-dir", Value: "./data/logs", Usage: "directory for JSONL artifact logs"},
					&cli.StringFlag{Name: "metrics-path", Value: "./data/metrics.jsonl", Usage: "path for the metrics sink's JSONL output"},
					&cli.StringFlag{Name: "explorer-addr", Value: ":8000", Usage: "listen address for the observability HTTP/websocket server"},
					&cli.Uint64Flag{Name: "seed", Usage: "override SimulationConfig.RngSeed (omit to keep the loaded/default seed)"},
					&cli.DurationFlag{Name: "run-for", Usage: "override SimulationConfig.RunFor (omit to keep the loaded/default budget)"},
					&cli.DurationFlag{Name: "latency", Usage: "override SimulationConfig.DefaultLinkLatency (omit to keep the loaded/default latency)"},
					&cli.Float64Flag{Name: "drop-rate", Value: -1, Usage: "override SimulationConfig.PacketDropRate (omit to keep the loaded/default rate)"},
					&cli.IntFlag{Name: "relayers", Usage: "override SimulationConfig.RelayerCount (omit to keep the loaded/default count)"},
				},
				Action: runCommand,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
