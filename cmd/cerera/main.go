// Command cerera runs a single PBFT validator node: it opens the vault,
// seeds or loads the chain, joins the gossip mesh and drives consensus
// rounds through the glue package until it receives a shutdown signal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cerera/internal/cerera/block"
	"github.com/cerera/internal/cerera/chain"
	"github.com/cerera/internal/cerera/config"
	"github.com/cerera/internal/cerera/consensus"
	"github.com/cerera/internal/cerera/glue"
	"github.com/cerera/internal/cerera/logger"
	"github.com/cerera/internal/cerera/pool"
	"github.com/cerera/internal/cerera/service"
	"github.com/cerera/internal/cerera/storage"
	"github.com/cerera/internal/cerera/topics"
	"github.com/cerera/internal/cerera/transport"
	"github.com/cerera/internal/cerera/types"
	"github.com/cerera/internal/cerera/upgrade"
	"github.com/cerera/internal/cerera/validator"
	"github.com/cerera/internal/coinbase"
)

var mlog = logger.Named("main")

// Core holds every long-lived component of a running node, wired once in
// NewCore and torn down once in Core.Stop.
type Core struct {
	cfg *config.Config

	vault     storage.Vault
	store     *storage.PogrebKV
	chain     *chain.Chain
	pool      *pool.Pool
	oracle    *validator.Oracle
	engine    consensus.Ops
	upgrade   *upgrade.Manager
	transport *transport.Manager
	driver    *glue.Driver
	registry  *service.Registry

	replicaID int
	timerStop chan struct{}
}

// NewCore builds every component of the consensus pipeline and wires it
// into the service registry.
func NewCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	registry, err := service.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("init service registry: %w", err)
	}

	if err := coinbase.InitOperationData(); err != nil {
		return nil, fmt.Errorf("init coinbase: %w", err)
	}

	v, err := storage.NewD5Vault(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}
	registry.Register(v.ServiceName(), v)

	priv := types.DecodePrivKey(cfg.NetCfg.PRIV)
	self := cfg.NetCfg.ADDR
	validators := cfg.CONSENSUS.Validators
	if len(validators) == 0 {
		validators = []types.Address{self}
		cfg.CONSENSUS.Validators = validators
	}
	replicaID := indexOfValidator(validators, self)

	oracle := validator.NewOracle(big.NewInt(int64(cfg.POOL.MinGas)))

	genesis := block.GenerateGenesisWithDigest(self, cfg.CONSENSUS.HashType.String())
	bc := chain.New(cfg, genesis, validators, chain.WithOracle(oracle))
	registry.Register(bc.ServiceName(), bc)

	p := pool.New(cfg.CONSENSUS)
	registry.Register(p.ServiceName(), p)
	registry.Register(oracle.ServiceName(), oracle)

	h, err := transport.NewHost(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init libp2p host: %w", err)
	}
	tm, err := transport.NewManager(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("init gossip manager: %w", err)
	}

	um := upgrade.NewManager(self, priv, validators, tm, upgrade.JSONCodec{}, topics.LedgerUpgradeNotify)

	var core Core
	core.cfg = cfg
	core.vault = v
	core.chain = bc
	core.pool = p
	core.oracle = oracle
	core.upgrade = um
	core.transport = tm
	core.registry = registry
	core.replicaID = replicaID
	core.timerStop = make(chan struct{})

	engine := consensus.New(cfg.CONSENSUS, validators, replicaID, priv, tm, consensus.JSONCodec{}, nil)
	core.engine = engine

	store := storage.NewPogrebKV("./consensus-store")
	engine.AttachStore(store)
	core.store = store

	driver := glue.NewDriver(cfg.CONSENSUS, engine, p, bc, um, oracle)
	core.driver = driver
	engine.SetNotify(driver)

	if err := tm.Subscribe(topics.PBFT, core.onPBFTMessage); err != nil {
		return nil, fmt.Errorf("subscribe pbft topic: %w", err)
	}
	if err := tm.Subscribe(topics.Transaction, core.onTransactionMessage); err != nil {
		return nil, fmt.Errorf("subscribe transaction topic: %w", err)
	}
	if err := tm.Subscribe(topics.LedgerUpgradeNotify, core.onUpgradeMessage); err != nil {
		return nil, fmt.Errorf("subscribe upgrade topic: %w", err)
	}

	return &core, nil
}

func indexOfValidator(set []types.Address, self types.Address) int {
	for i, a := range set {
		if a == self {
			return i
		}
	}
	return 0
}

func (c *Core) onPBFTMessage(peerID string, payload []byte) {
	env, err := consensus.JSONCodec{}.Decode(payload)
	if err != nil {
		mlog.Warnw("pbft: decode envelope failed", "peer", peerID, "err", err)
		return
	}
	if err := c.engine.OnReceive(env); err != nil {
		mlog.Debugw("pbft: reject envelope", "peer", peerID, "err", err)
	}
}

func (c *Core) onTransactionMessage(peerID string, payload []byte) {
	var tx types.GTransaction
	if err := json.Unmarshal(payload, &tx); err != nil {
		mlog.Warnw("transaction: decode failed", "peer", peerID, "err", err)
		return
	}
	known := c.vault.Get(tx.From())
	var currentNonce uint64
	if known != nil {
		currentNonce = known.Nonce
	}
	c.driver.OnTransaction(&tx, currentNonce)
}

func (c *Core) onUpgradeMessage(peerID string, payload []byte) {
	p, err := upgrade.JSONCodec{}.Decode(payload)
	if err != nil {
		mlog.Warnw("upgrade: decode proposal failed", "peer", peerID, "err", err)
		return
	}
	if err := c.upgrade.Recv(p); err != nil {
		mlog.Debugw("upgrade: reject proposal", "peer", peerID, "err", err)
	}
}

// Start arms the periodic consensus timer and, when mine is set, the glue
// round driver's boot-time round and close-timer watchdog. A non-mining
// node still takes part in PBFT voting and view changes through the timer
// loop. The mine flag only gates this boot-time Driver.Start: after a
// commit or a view change the driver still schedules a round whenever
// this node is primary, and commits, catch-up and validator updates
// re-arm its watchdog.
func (c *Core) Start(mine bool) {
	if mine {
		c.driver.Start()
	}
	go c.timerLoop()
}

func (c *Core) timerLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.engine.OnTimer(now)
			c.upgrade.OnTimer(now)
			for _, tx := range c.pool.CheckTimeout(now) {
				mlog.Debugw("pool: dropped expired transaction", "hash", tx.Hash())
			}
		case <-c.timerStop:
			return
		}
	}
}

// Stop tears the node down in roughly the reverse order it was built.
func (c *Core) Stop() {
	close(c.timerStop)
	c.driver.Stop()
	if err := c.transport.Close(); err != nil {
		mlog.Warnw("transport close", "err", err)
	}
	if err := c.registry.StopAllServices(); err != nil {
		mlog.Warnw("service shutdown", "err", err)
	}
	if err := c.store.Close(); err != nil {
		mlog.Warnw("consensus store close", "err", err)
	}
	if err := c.vault.Close(); err != nil {
		mlog.Warnw("vault close", "err", err)
	}
}

func parseFlags() (keyPath string, p2pPort int, mine bool) {
	key := flag.String("key", "", "path to node pem key")
	port := flag.Int("p2p", 0, "p2p listen port (0 = config default)")
	m := flag.Bool("mine", true, "participate in block production as primary when elected")
	flag.Parse()
	return *key, *port, *m
}

func main() {
	if _, err := logger.Init(logger.Config{Level: "info", Console: true}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	keyPath, p2pPort, mine := parseFlags()

	cfg := config.GenerageConfig()
	cfg.SetNodeKey(keyPath)
	if p2pPort != 0 {
		cfg.SetPorts(cfg.NetCfg.RPC, p2pPort)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	core, err := NewCore(ctx, cfg)
	if err != nil {
		mlog.Fatalw("init node failed", "err", err)
	}
	core.Start(mine)

	mlog.Infow("node started", "addr", cfg.NetCfg.ADDR.String(), "p2p", cfg.NetCfg.P2P)

	<-ctx.Done()
	mlog.Infow("shutdown signal received")
	core.Stop()
	mlog.Infow("node stopped")
}
