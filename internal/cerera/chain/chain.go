// Package chain owns the closed-ledger history: it turns a committed
// consensus value into an applied block, persists it, and answers the
// glue driver's queries about the last closed ledger, the active
// validator set and the fee configuration.
package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cerera/internal/cerera/block"
	"github.com/cerera/internal/cerera/common"
	"github.com/cerera/internal/cerera/config"
	"github.com/cerera/internal/cerera/logger"
	"github.com/cerera/internal/cerera/message"
	"github.com/cerera/internal/cerera/trie"
	"github.com/cerera/internal/cerera/types"
	"github.com/cerera/internal/cerera/upgrade"
	"github.com/cerera/internal/cerera/validator"
)

var clogger = logger.Named("chain")

// MaxSupportedLedgerVersion is the highest ledger version this build can
// execute. Upgrade proposals beyond it are rejected at value-check time so
// a node never votes for a ledger it cannot apply.
const MaxSupportedLedgerVersion uint64 = 3000

// ConsensusValue is the payload PBFT instances agree on: a candidate next
// ledger. It is the wire/consensus-facing twin of block.Block, carrying
// only what is needed to re-derive and re-verify a ledger close, not the
// materialized header (hash, merkle root) which chain computes locally
// once the value commits.
type ConsensusValue struct {
	LedgerSeq          uint64                `json:"ledgerSeq"`
	PreviousLedgerHash common.Hash           `json:"previousLedgerHash"`
	PreviousProof      []*message.Envelope   `json:"previousProof,omitempty"`
	CloseTime          uint64                `json:"closeTime"`
	TxSet              []*types.GTransaction `json:"txSet"`
	LedgerUpgrade      *upgrade.Proposal     `json:"ledgerUpgrade,omitempty"`
	ValidatorSet       []types.Address       `json:"validatorSet,omitempty"`
	Annotations        map[string]string     `json:"annotations,omitempty"`
}

func (cv *ConsensusValue) Encode() ([]byte, error) {
	return json.Marshal(cv)
}

func DecodeConsensusValue(b []byte) (*ConsensusValue, error) {
	var cv ConsensusValue
	if err := json.Unmarshal(b, &cv); err != nil {
		return nil, fmt.Errorf("chain: decode consensus value: %w", err)
	}
	return &cv, nil
}

// Chain holds the append-only sequence of closed ledgers, the live
// validator set, fee configuration and the merkle tree over applied
// blocks. Block production is driven externally by the glue round
// driver; Chain only applies what consensus committed.
type Chain struct {
	mu sync.Mutex

	chainId     *big.Int
	gasPrice    *big.Int
	baseReserve *big.Int
	epochs      []validatorEpoch
	oracle      *validator.Oracle
	minGas      *big.Int

	data []*block.Block
	t    *trie.MerkleTree

	persistPath string
}

// validatorEpoch records the validator set effective after applying the
// block at seq: blocks seq+1 onward are agreed (and their commit
// certificates signed) by this set, until a later block installs a
// replacement.
type validatorEpoch struct {
	seq uint64
	set []types.Address
}

// epochHistoryWindow is how many sequences of validator-set history are
// retained behind the last applied block, enough to re-verify any proof
// still inside the consensus watermark window.
const epochHistoryWindow = 2 * 10

type Option func(*Chain)

func WithPersistPath(path string) Option {
	return func(c *Chain) { c.persistPath = path }
}

func WithOracle(o *validator.Oracle) Option {
	return func(c *Chain) { c.oracle = o }
}

// New builds a chain seeded with its genesis block, the initial validator
// set and fee parameters taken from cfg.
func New(cfg *config.Config, genesis *block.Block, validators []types.Address, opts ...Option) *Chain {
	c := &Chain{
		chainId:     config.ChainId,
		gasPrice:    big.NewInt(int64(cfg.POOL.MinGas)),
		baseReserve: big.NewInt(0),
		epochs: []validatorEpoch{{
			seq: genesis.Head.Index,
			set: append([]types.Address(nil), validators...),
		}},
		minGas:      big.NewInt(int64(cfg.POOL.MinGas)),
		data:        []*block.Block{genesis},
		persistPath: "./chain.dat",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.oracle == nil {
		c.oracle = validator.NewOracle(c.minGas)
	}
	t, err := trie.NewTree([]trie.Content{*genesis})
	if err != nil {
		clogger.Warnw("build chain merkle tree", "err", err)
	} else {
		c.t = t
	}
	InitChainVaultWithPath(genesis, c.persistPath)
	return c
}

// MerkleRoot returns the root hash of the merkle tree over all applied
// blocks, or nil when the tree could not be built.
func (c *Chain) MerkleRoot() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t == nil {
		return nil
	}
	return c.t.MerkleRoot()
}

// LastClosedLedger returns the header of the most recently applied block.
func (c *Chain) LastClosedLedger() *block.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.data) == 0 {
		return nil
	}
	return block.CopyHeader(c.data[len(c.data)-1].Header())
}

// LastBlock returns the most recently applied block itself.
func (c *Chain) LastBlock() *block.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.data) == 0 {
		return nil
	}
	return c.data[len(c.data)-1]
}

// GetValidators returns the validator set effective after the block at
// seq was applied: the set that agreed (and whose commit certificate
// closes) block seq+1. History older than the retained window resolves
// to the oldest set still held.
func (c *Chain) GetValidators(seq uint64) []types.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.epochs[0].set
	for _, ep := range c.epochs {
		if ep.seq > seq {
			break
		}
		set = ep.set
	}
	return append([]types.Address(nil), set...)
}

// SetValidators installs a new validator set effective from the current
// ledger position onward, used when an admin action changes membership.
func (c *Chain) SetValidators(set []types.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendEpochLocked(c.data[len(c.data)-1].Head.Index, set)
}

// appendEpochLocked records a validator set taking effect after seq and
// drops history no proof inside the watermark window can still need.
func (c *Chain) appendEpochLocked(seq uint64, set []types.Address) {
	last := &c.epochs[len(c.epochs)-1]
	if last.seq == seq {
		last.set = append([]types.Address(nil), set...)
	} else {
		c.epochs = append(c.epochs, validatorEpoch{seq: seq, set: append([]types.Address(nil), set...)})
	}
	for len(c.epochs) > 1 && c.epochs[1].seq+epochHistoryWindow <= seq {
		c.epochs = c.epochs[1:]
	}
}

// GetFeeConfig returns the current minimum gas price and base reserve.
func (c *Chain) GetFeeConfig() (gasPrice, baseReserve *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.gasPrice), new(big.Int).Set(c.baseReserve)
}

// Oracle exposes the pre-execution oracle wired into this chain, so the
// glue driver can run CheckValue/propose-time filtering without having
// to carry its own reference.
func (c *Chain) Oracle() *validator.Oracle {
	return c.oracle
}

// ApplyBlock validates and executes every transaction in a committed
// consensus value, advances the ledger and persists the resulting block.
// proof is the PBFT commit certificate that justified this close; it is
// embedded in the block so a later reader can reconstruct
// ConsensusValueFromDB without re-running consensus.
func (c *Chain) ApplyBlock(raw []byte, proof []*message.Envelope) error {
	cv, err := DecodeConsensusValue(raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.data[len(c.data)-1]
	if cv.PreviousLedgerHash != prev.Hash {
		return fmt.Errorf("chain: consensus value previous hash mismatch: have %s want %s", cv.PreviousLedgerHash, prev.Hash)
	}

	for _, tx := range cv.TxSet {
		if tx == nil {
			continue
		}
		if !validator.ValidateTransaction(tx, tx.From()) {
			clogger.Warnw("dropping invalid transaction at apply time", "hash", tx.Hash())
			continue
		}
		if err := validator.ExecuteTransaction(tx, c.minGas); err != nil {
			clogger.Warnw("transaction execution failed", "hash", tx.Hash(), "err", err)
		}
	}

	if len(cv.ValidatorSet) > 0 {
		c.appendEpochLocked(cv.LedgerSeq, cv.ValidatorSet)
		clogger.Infow("validator set replaced by committed block", "seq", cv.LedgerSeq, "n", len(cv.ValidatorSet))
	}

	version := prev.Head.Version
	if cv.LedgerUpgrade != nil && cv.LedgerUpgrade.Verify() && cv.LedgerUpgrade.NewVersion > version {
		version = cv.LedgerUpgrade.NewVersion
		clogger.Infow("ledger version upgraded", "from", prev.Head.Version, "to", version)
	}

	header := &block.Header{
		Ctx:                prev.Head.Ctx,
		Difficulty:         0,
		Extra:              nil,
		Root:               prev.Head.Root,
		GasLimit:           prev.Head.GasLimit,
		GasUsed:            0,
		Timestamp:          cv.CloseTime,
		Height:             prev.Head.Height + 1,
		Node:               prev.Head.Node,
		ChainId:            c.chainId,
		PrevHash:           prev.Hash,
		Index:              cv.LedgerSeq,
		Size:               0,
		V:                  prev.Head.V,
		Version:            version,
		CloseTime:          cv.CloseTime,
		TxCount:            len(cv.TxSet),
		ConsensusValueHash: types.INRISeqHash(raw),
	}
	newBlock := block.NewBlockWithHeader(header)
	newBlock.Transactions = cv.TxSet
	newBlock.Proof = proof
	newBlock.Hash = block.CrvBlockHash(*newBlock)

	c.data = append(c.data, newBlock)
	if c.t != nil {
		if err := c.t.Add(*newBlock); err != nil {
			clogger.Warnw("merkle tree update failed", "seq", cv.LedgerSeq, "err", err)
		}
	}
	if err := SaveToVaultWithPath(*newBlock, c.persistPath); err != nil {
		return fmt.Errorf("chain: persist block: %w", err)
	}
	clogger.Infow("applied ledger", "seq", cv.LedgerSeq, "txs", len(cv.TxSet), "hash", newBlock.Hash)
	return nil
}

// ConsensusValueFromDB reconstructs the consensus value (and its proof)
// for a previously applied ledger sequence, used by nodes catching up or
// re-verifying history.
func (c *Chain) ConsensusValueFromDB(seq uint64) (*ConsensusValue, []*message.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.data {
		if b.Head.Index == seq {
			return &ConsensusValue{
				LedgerSeq:          b.Head.Index,
				PreviousLedgerHash: b.Head.PrevHash,
				CloseTime:          b.Head.CloseTime,
				TxSet:              b.Transactions,
			}, b.Proof, nil
		}
	}
	return nil, nil, fmt.Errorf("chain: no applied ledger with seq %d", seq)
}

// ComposeValue assembles a new candidate consensus value from the pool's
// highest-priority transactions, for a node about to propose.
func (c *Chain) ComposeValue(txs []*types.GTransaction, closeTime time.Time, up *upgrade.Proposal) *ConsensusValue {
	c.mu.Lock()
	prev := c.data[len(c.data)-1]
	c.mu.Unlock()
	return &ConsensusValue{
		LedgerSeq:          prev.Head.Index + 1,
		PreviousLedgerHash: prev.Hash,
		CloseTime:          uint64(closeTime.Unix()),
		TxSet:              txs,
		LedgerUpgrade:      up,
	}
}
