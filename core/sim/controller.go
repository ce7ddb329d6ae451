// Package sim wires together chains, nodes, relayers, and the shared
// transport into a runnable simulation, and drives traffic generation for
// the duration of a run.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"chainmesh/core/blockchain"
	"chainmesh/core/config"
	"chainmesh/core/consensus"
	"chainmesh/core/eventbus"
	"chainmesh/core/jsonlog"
	"chainmesh/core/logging"
	"chainmesh/core/metrics"
	"chainmesh/core/node"
	"chainmesh/core/relayer"
	"chainmesh/core/status"
	"chainmesh/core/transport"
	"chainmesh/core/types"
)

const (
	burstTxPerNode     = 5
	burstIBCPacketCount = 2
	burstPort           = "port-A"
	burstChannel        = "channel-A"
	burstDstPort        = "port-B"
	burstDstChannel     = "channel-B"
)

// Controller builds and runs a full simulation: one Chain and one or more
// Nodes per configured chain, a shared Transport, and a pool of Relayers
// that connect every chain's mailbox.
type Controller struct {
	chainCfgs []config.ChainConfig
	simCfg    config.SimulationConfig

	bus     *eventbus.Bus
	metrics *metrics.Sink
	logs    *jsonlog.Writer
	tr      *transport.Transport

	chains       []*blockchain.Chain
	chainByID    map[string]*blockchain.Chain
	mailboxes    map[string]string
	nodes        []*node.Node
	relayers     []*relayer.Relayer

	trafficRng     *rand.Rand
	trafficRunning atomic.Bool
	trafficDone    chan struct{}
}

// New constructs a Controller. Nothing is built until Init is called.
func New(chainCfgs []config.ChainConfig, simCfg config.SimulationConfig, m *metrics.Sink, logs *jsonlog.Writer) *Controller {
	logs.EnableCategory(jsonlog.Transactions, simCfg.EnableDetailedTransactionLogs)
	logs.EnableCategory(jsonlog.IBCEvents, simCfg.EnableIBCEventLogs)
	logs.EnableCategory(jsonlog.NetworkDrops, simCfg.EnableNetworkDropLogs)
	logs.EnableCategory(jsonlog.NodeState, simCfg.EnableNodeStateSnapshots)
	logs.EnableCategory(jsonlog.RelayerState, simCfg.EnableRelayerStateLogs)

	return &Controller{
		chainCfgs:  chainCfgs,
		simCfg:     simCfg,
		bus:        eventbus.New(),
		metrics:    m,
		logs:       logs,
		chainByID:  make(map[string]*blockchain.Chain),
		mailboxes:  make(map[string]string),
		trafficRng: rand.New(rand.NewSource(int64(simCfg.RngSeed) + 1)),
	}
}

// Init builds every chain, its nodes, and the relayer pool, connecting each
// relayer to every chain's mailbox address.
func (c *Controller) Init() error {
	logging.Info(context.Background(), "initializing simulation")

	c.tr = transport.New(int64(c.simCfg.RngSeed), transport.NetworkParams{
		Latency:  c.simCfg.DefaultLinkLatency,
		DropRate: c.simCfg.PacketDropRate,
	}, transport.DefaultWorkers)

	for _, cfg := range c.chainCfgs {
		chain := blockchain.New(cfg.ChainID, c.bus, c.metrics)
		c.chains = append(c.chains, chain)
		c.chainByID[cfg.ChainID] = chain

		var mailbox string
		for i := 0; i < cfg.NodeCount; i++ {
			nodeID := fmt.Sprintf("node-%d", i)
			address := cfg.ChainID + ":" + nodeID
			if i == 0 {
				mailbox = address
			}

			engine, err := consensus.New(consensus.Params{
				Kind:               consensusKind(cfg.ConsensusKind),
				PowDifficulty:      uint32(cfg.PowDifficulty),
				ValidatorSetSize:   cfg.ValidatorSetSize,
				PbftFaultTolerance: cfg.PbftFaultTolerance,
			}, c.metrics)
			if err != nil {
				return fmt.Errorf("sim: build consensus engine for %s: %w", address, err)
			}

			n, err := node.New(nodeID, address, chain, engine, c.tr, c.metrics)
			if err != nil {
				return fmt.Errorf("sim: build node %s: %w", address, err)
			}
			c.nodes = append(c.nodes, n)
		}

		if mailbox != "" {
			c.mailboxes[cfg.ChainID] = mailbox
			c.ensureRelayers(cfg.ChainID, mailbox)
		}
	}

	logging.Info(context.Background(), "simulation initialized", "relayers", len(c.relayers), "chains", len(c.chains), "nodes", len(c.nodes))
	return nil
}

// ensureRelayers lazily creates relayers up to simCfg.RelayerCount and
// connects chainID's mailbox to every one of them.
func (c *Controller) ensureRelayers(chainID, mailbox string) {
	for r := 0; r < c.simCfg.RelayerCount; r++ {
		if r >= len(c.relayers) {
			relayerID := fmt.Sprintf("relayer-%d", r)
			c.relayers = append(c.relayers, relayer.New(relayerID, c.tr, c.bus, c.metrics))
		}
		c.relayers[r].ConnectChainMailbox(chainID, mailbox)
	}
}

func (c *Controller) findChain(id string) *blockchain.Chain {
	return c.chainByID[id]
}

func consensusKind(k config.ConsensusKind) consensus.Kind {
	switch k {
	case config.PoS:
		return consensus.PoSKind
	case config.PBFT:
		return consensus.PBFTKind
	default:
		return consensus.PoWKind
	}
}

// OpenIBC opens a channel on each side of an (a, b) chain pair. Either
// chain missing is reported as NotFound.
func (c *Controller) OpenIBC(a, aPort, aChan, b, bPort, bChan string) error {
	logging.Info(context.Background(), "opening ibc channel", "a", a, "b", b)
	chainA := c.findChain(a)
	chainB := c.findChain(b)
	if chainA == nil || chainB == nil {
		return status.New(status.NotFound, "one or both chains not found")
	}
	if err := chainA.OpenChannel(aPort, aChan); err != nil {
		return err
	}
	return chainB.OpenChannel(bPort, bChan)
}

// Start starts every node, then every relayer, then (if configured) the
// continuous traffic generator.
func (c *Controller) Start() error {
	logging.Info(context.Background(), "starting simulation nodes")
	for _, n := range c.nodes {
		if err := n.Start(); err != nil {
			return fmt.Errorf("sim: start node %s: %w", n.ID(), err)
		}
	}

	logging.Info(context.Background(), "starting relayers", "count", len(c.relayers))
	for _, r := range c.relayers {
		if err := r.Start(); err != nil {
			return fmt.Errorf("sim: start relayer %s: %w", r.Name(), err)
		}
	}

	if c.simCfg.EnableContinuousTraffic {
		logging.Info(context.Background(), "starting traffic generator")
		c.trafficRunning.Store(true)
		c.trafficDone = make(chan struct{})
		go c.trafficGeneratorLoop()
	}

	return nil
}

// Stop tears down the traffic generator, relayers, and nodes, in that
// order, then shuts down the transport. It does not close the jsonlog
// Writer; that Writer writes each line straight to its file and is closed by
// whoever passed it to New.
func (c *Controller) Stop() {
	if c.trafficRunning.Swap(false) {
		logging.Info(context.Background(), "stopping traffic generator")
		<-c.trafficDone
	}

	logging.Info(context.Background(), "stopping relayers")
	for _, r := range c.relayers {
		r.Stop()
	}

	logging.Info(context.Background(), "stopping nodes")
	for _, n := range c.nodes {
		n.Stop()
	}

	c.tr.Shutdown()
	logging.Info(context.Background(), "simulation stopped")
}

// InjectBurst submits a one-shot burst of traffic: burstTxPerNode regular
// transactions from each node to a random peer, and burstIBCPacketCount IBC
// packets between random distinct chain pairs over the hardcoded
// port-A/channel-A -> port-B/channel-B route.
func (c *Controller) InjectBurst() {
	logging.Info(context.Background(), "injecting traffic burst")
	rng := rand.New(rand.NewSource(int64(c.simCfg.RngSeed) + 2))

	if len(c.nodes) > 0 {
		for _, sender := range c.nodes {
			for i := 0; i < burstTxPerNode; i++ {
				recipient := c.nodes[rng.Intn(len(c.nodes))]
				payload := fmt.Sprintf("regular_tx_from_%s_to_%s_seq_%d", sender.Address(), recipient.Address(), i)
				tx := types.NewTransaction(sender.Address(), recipient.Address(), payload)
				c.logTxCreated(tx)
				sender.SubmitTransaction(tx)
			}
		}
	} else {
		logging.Warn(context.Background(), "no nodes available to inject regular traffic")
	}

	if len(c.chains) >= 2 {
		for i := 0; i < burstIBCPacketCount; i++ {
			src, dst := c.randomDistinctChains(rng)
			payload := fmt.Sprintf("ibc_payload_from_%s_to_%s_seq_%d", src.ID(), dst.ID(), i)
			if _, err := src.SendIBC(burstPort, burstChannel, dst.ID(), burstDstPort, burstDstChannel, payload); err != nil {
				logging.Warn(context.Background(), "failed to send burst ibc packet", "src", src.ID(), "err", err)
			} else {
				logging.Info(context.Background(), "sent burst ibc packet", "src", src.ID(), "dst", dst.ID())
			}
		}
	} else {
		logging.Warn(context.Background(), "not enough chains to inject ibc traffic")
	}

	logging.Info(context.Background(), "traffic burst injected")
}

func (c *Controller) logTxCreated(tx types.Transaction) {
	if err := c.logs.LogTransactionEvent(jsonlog.TxCreated, tx.TxID, tx.Type.String(), tx.From, tx.To, tx.Payload, "", "", 0); err != nil {
		logging.Warn(context.Background(), "failed to log transaction created event", "err", err)
	}
}

func (c *Controller) randomDistinctChains(rng *rand.Rand) (*blockchain.Chain, *blockchain.Chain) {
	srcIdx := rng.Intn(len(c.chains))
	dstIdx := rng.Intn(len(c.chains))
	for dstIdx == srcIdx {
		dstIdx = rng.Intn(len(c.chains))
	}
	return c.chains[srcIdx], c.chains[dstIdx]
}

// Run blocks until simCfg.RunFor elapses or ctx is cancelled, whichever
// comes first.
func (c *Controller) Run(ctx context.Context) {
	logging.Info(context.Background(), "running simulation", "duration", c.simCfg.RunFor)
	timer := time.NewTimer(c.simCfg.RunFor)
	defer timer.Stop()

	select {
	case <-timer.C:
		logging.Info(context.Background(), "simulation run finished")
	case <-ctx.Done():
		logging.Info(context.Background(), "simulation run interrupted")
	}
}

// trafficGeneratorLoop models arrivals as a Poisson process: the wait
// before each generated transaction is drawn from an exponential
// distribution with mean simCfg.TrafficGenInterval.
func (c *Controller) trafficGeneratorLoop() {
	defer close(c.trafficDone)
	logging.Info(context.Background(), "traffic generator loop started")

	meanMs := float64(c.simCfg.TrafficGenInterval.Milliseconds())
	if meanMs <= 0 {
		meanMs = 1
	}

	for c.trafficRunning.Load() {
		waitMs := c.trafficRng.ExpFloat64() * meanMs
		time.Sleep(time.Duration(waitMs) * time.Millisecond)
		if !c.trafficRunning.Load() {
			break
		}

		if c.trafficRng.Float64() < c.simCfg.IbcTrafficRatio && len(c.chains) >= 2 {
			c.generateRandomIBCPacket()
		} else if len(c.nodes) > 0 {
			c.generateRandomTransaction()
		}
	}

	logging.Info(context.Background(), "traffic generator loop finished")
}

func (c *Controller) generateRandomTransaction() {
	sender := c.nodes[c.trafficRng.Intn(len(c.nodes))]
	recipient := c.nodes[c.trafficRng.Intn(len(c.nodes))]

	tx := types.NewTransaction(sender.Address(), recipient.Address(), fmt.Sprintf("auto_gen_tx_%d", time.Now().UnixNano()))
	c.logTxCreated(tx)
	sender.SubmitTransaction(tx)
	c.metrics.IncCounter("traffic_regular_tx_generated", 1)
}

func (c *Controller) generateRandomIBCPacket() {
	src, dst := c.randomDistinctChains(c.trafficRng)
	payload := fmt.Sprintf("auto_ibc_%s_to_%s_%d", src.ID(), dst.ID(), time.Now().UnixNano())

	if _, err := src.SendIBC(burstPort, burstChannel, dst.ID(), burstDstPort, burstDstChannel, payload); err != nil {
		logging.Warn(context.Background(), "failed to generate ibc packet", "err", err)
		c.metrics.IncCounter("traffic_ibc_tx_failed", 1)
		return
	}
	c.metrics.IncCounter("traffic_ibc_tx_generated", 1)
}

// EventBus exposes the shared event bus so an observability layer can
// subscribe to it without the Controller needing to know about that layer.
func (c *Controller) EventBus() *eventbus.Bus { return c.bus }

// Nodes returns every node in the simulation, for snapshotting.
func (c *Controller) Nodes() []*node.Node { return c.nodes }

// Chains returns every chain in the simulation, for snapshotting.
func (c *Controller) Chains() []*blockchain.Chain { return c.chains }

// Relayers returns every relayer in the simulation, for snapshotting.
func (c *Controller) Relayers() []*relayer.Relayer { return c.relayers }
