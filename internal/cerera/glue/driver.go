// Package glue implements the round driver: it assembles a proposal from
// the pool, drives the PBFT engine through consensus.Engine.Request,
// applies committed values to the chain, and reschedules the next round.
// It is the concrete consensus.Notify the engine calls back into.
package glue

import (
	"strings"
	"sync"
	"time"

	"github.com/cerera/internal/cerera/chain"
	"github.com/cerera/internal/cerera/common"
	"github.com/cerera/internal/cerera/config"
	"github.com/cerera/internal/cerera/consensus"
	"github.com/cerera/internal/cerera/logger"
	"github.com/cerera/internal/cerera/message"
	"github.com/cerera/internal/cerera/pool"
	"github.com/cerera/internal/cerera/types"
	"github.com/cerera/internal/cerera/upgrade"
	"github.com/cerera/internal/cerera/validator"
)

var glogger = logger.Named("glue")

// closeWatchdog is the defensive close-timer: 20s grace plus 10s slack,
// forcing a view change even when no PBFT instance ever opened.
const closeWatchdog = 30 * time.Second

// initialRoundDelay is how long after boot the first start_round fires.
const initialRoundDelay = 3 * time.Second

// maxTxSetHalvings bounds the pre-execution oracle retry loop so a
// perpetually-timing-out tx set cannot spin the round driver forever.
const maxTxSetHalvings = 3

// Driver owns the round timer and the close-timer watchdog, and
// implements consensus.Notify.
type Driver struct {
	mu sync.Mutex

	cfg config.ConsensusConfig

	engine  consensus.Ops
	pool    *pool.Pool
	chain   *chain.Chain
	upgrade *upgrade.Manager
	oracle  *validator.Oracle

	closeTimer *time.Timer
	roundTimer *time.Timer

	stopped bool
}

func NewDriver(cfg config.ConsensusConfig, engine consensus.Ops, p *pool.Pool, c *chain.Chain, um *upgrade.Manager, oracle *validator.Oracle) *Driver {
	return &Driver{
		cfg:     cfg,
		engine:  engine,
		pool:    p,
		chain:   c,
		upgrade: um,
		oracle:  oracle,
	}
}

// Start schedules the first round and arms the close-timer watchdog.
func (d *Driver) Start() {
	d.mu.Lock()
	d.roundTimer = time.AfterFunc(initialRoundDelay, func() { d.StartRound(nil) })
	d.mu.Unlock()
	d.ResetCloseTimer()
}

// Stop cancels any pending timers, used on graceful shutdown.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.roundTimer != nil {
		d.roundTimer.Stop()
	}
	if d.closeTimer != nil {
		d.closeTimer.Stop()
	}
}

// StartRound is the round loop entry point. preserved is the
// highest-prepared value surviving a just-completed view change, or
// nil for a normal round.
func (d *Driver) StartRound(preserved []byte) {
	if !d.engine.IsPrimary() {
		return
	}

	lcl := d.chain.LastClosedLedger()
	if lcl == nil {
		glogger.Errorw("start_round: no last closed ledger available")
		return
	}

	var value []byte
	if preserved != nil && d.CheckValue(preserved) {
		value = preserved
	} else {
		value = d.composeValue()
	}
	if value == nil {
		glogger.Warnw("start_round: no proposable value this round")
		return
	}

	if err := d.engine.Request(value); err != nil {
		glogger.Warnw("start_round: request failed", "err", err)
	}
}

// composeValue builds a fresh ConsensusValue from the pool's highest
// priority transactions, re-running the pre-execution oracle and
// shrinking the candidate set on timeout or drop list.
func (d *Driver) composeValue() []byte {
	lcl := d.chain.LastClosedLedger()
	txs := d.pool.Top(d.cfg.MaxTransPerLedger)

	closeTime := time.Now()
	minClose := time.Unix(int64(lcl.CloseTime), 0).Add(time.Duration(d.cfg.CloseInterval) * time.Second)
	if closeTime.Before(minClose) {
		closeTime = minClose
	}

	up := d.pendingUpgrade()

	for attempt := 0; attempt < maxTxSetHalvings; attempt++ {
		timeout, dropIdx, annotations := d.oracle.PreProcess(txs, true)
		if len(dropIdx) > 0 {
			dropped := indicesToTxs(txs, dropIdx)
			d.pool.Remove(dropped, false)
			txs = removeIndices(txs, dropIdx)
			continue
		}
		if timeout {
			if len(txs) == 0 {
				return nil
			}
			half := (len(txs) + 1) / 2
			txs = txs[:half]
			continue
		}

		cv := d.chain.ComposeValue(txs, closeTime, up)
		cv.PreviousProof = d.engine.LastProof()
		cv.Annotations = annotations
		raw, err := cv.Encode()
		if err != nil {
			glogger.Errorw("encode consensus value", "err", err)
			return nil
		}
		return raw
	}
	glogger.Warnw("start_round: gave up after repeated oracle timeouts")
	return nil
}

// pendingUpgrade returns this node's own signed upgrade proposal when
// it is also the version the upgrade manager reports as having quorum
// support, so the embedded proposal both carries a valid signature and
// reflects network consensus.
func (d *Driver) pendingUpgrade() *upgrade.Proposal {
	lcl := d.chain.LastClosedLedger()
	if lcl == nil {
		return nil
	}
	minCount := d.engine.QuorumSize() + 1
	if n := len(d.chain.GetValidators(lcl.Index)); n > 0 && minCount > n {
		minCount = n
	}
	version, ok := d.upgrade.GetValid(minCount)
	if !ok {
		return nil
	}
	if version <= lcl.Version || version > chain.MaxSupportedLedgerVersion {
		return nil
	}
	local := d.upgrade.LocalProposal()
	if local == nil || local.NewVersion != version {
		return nil
	}
	return local
}

func indicesToTxs(txs []*types.GTransaction, idx []int) []*types.GTransaction {
	out := make([]*types.GTransaction, 0, len(idx))
	for _, i := range idx {
		if i >= 0 && i < len(txs) && txs[i] != nil {
			out = append(out, txs[i])
		}
	}
	return out
}

func removeIndices(txs []*types.GTransaction, idx []int) []*types.GTransaction {
	drop := make(map[int]bool, len(idx))
	for _, i := range idx {
		drop[i] = true
	}
	out := make([]*types.GTransaction, 0, len(txs))
	for i, tx := range txs {
		if !drop[i] {
			out = append(out, tx)
		}
	}
	return out
}

// CheckValue implements consensus.Notify.CheckValue: it accepts or
// rejects a proposed consensus value before the engine votes on it.
func (d *Driver) CheckValue(value []byte) bool {
	if len(value) >= d.cfg.TxSetLimitBytes+2<<20 {
		return false
	}
	cv, err := chain.DecodeConsensusValue(value)
	if err != nil {
		return false
	}
	last := d.chain.LastBlock()
	if last == nil {
		return false
	}
	if cv.LedgerSeq != last.Head.Index+1 {
		return false
	}
	if cv.PreviousLedgerHash != last.Hash {
		return false
	}
	minClose := last.Head.CloseTime + uint64(d.cfg.CloseInterval)
	maxClose := uint64(time.Now().Unix()) + 1
	if cv.CloseTime < minClose || cv.CloseTime > maxClose {
		return false
	}
	if cv.LedgerUpgrade != nil {
		if !cv.LedgerUpgrade.Verify() {
			return false
		}
		if cv.LedgerUpgrade.NewVersion <= last.Head.Version || cv.LedgerUpgrade.NewVersion > chain.MaxSupportedLedgerVersion {
			return false
		}
	}
	if len(cv.ValidatorSet) > 0 && !d.isHardfork(last.Head.ConsensusValueHash) {
		return false
	}
	if cv.LedgerSeq == 1 {
		if len(cv.PreviousProof) != 0 {
			return false
		}
	} else if !d.isHardfork(last.Head.ConsensusValueHash) {
		validators := d.chain.GetValidators(last.Head.Index - 1)
		if !consensus.CheckProof(validators, last.Head.ConsensusValueHash, cv.PreviousProof) {
			return false
		}
	}
	timeout, dropIdx, _ := d.oracle.PreProcess(cv.TxSet, false)
	if timeout || len(dropIdx) > 0 {
		return false
	}
	return true
}

func (d *Driver) isHardfork(h common.Hash) bool {
	hex := h.Hex()
	for _, point := range d.cfg.HardforkPoints {
		if strings.EqualFold(point, hex) {
			return true
		}
	}
	return false
}

// OnValueCommitted implements consensus.Notify.OnValueCommitted: apply
// the block, clear committed transactions from the pool, and schedule
// the next round.
func (d *Driver) OnValueCommitted(seq uint64, value []byte, proof []*message.Envelope) {
	cv, err := chain.DecodeConsensusValue(value)
	if err != nil {
		glogger.Errorw("on_value_committed: decode failed", "seq", seq, "err", err)
		return
	}
	if err := d.chain.ApplyBlock(value, proof); err != nil {
		glogger.Errorw("on_value_committed: apply failed", "seq", seq, "err", err)
		return
	}
	d.pool.Remove(cv.TxSet, true)
	if cv.LedgerUpgrade != nil && cv.LedgerUpgrade.Verify() {
		d.upgrade.ProposeVersion(0)
	}
	if len(cv.ValidatorSet) > 0 && len(proof) > 0 {
		d.upgrade.UpdateValidators(cv.ValidatorSet)
		d.engine.UpdateValidators(cv.ValidatorSet, proof[0].View, proof[0].Seq, seq)
	}

	d.ResetCloseTimer()

	if d.engine.IsPrimary() {
		nextStart := time.Unix(int64(cv.CloseTime), 0).Add(time.Duration(d.cfg.CloseInterval) * time.Second)
		d.scheduleRoundAt(nextStart, nil)
	}
}

// OnViewChanged implements consensus.Notify.OnViewChanged: the new
// primary re-proposes the preserved value immediately.
func (d *Driver) OnViewChanged(preservedValue []byte) {
	if d.engine.IsPrimary() {
		d.scheduleRoundAt(time.Now(), preservedValue)
	}
}

func (d *Driver) scheduleRoundAt(at time.Time, preserved []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.roundTimer != nil {
		d.roundTimer.Stop()
	}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	d.roundTimer = time.AfterFunc(delay, func() { d.StartRound(preserved) })
}

// ResetCloseTimer implements consensus.Notify.ResetCloseTimer: rearms
// the 30s defensive watchdog that forces a view change even if no
// instance timeout ever fires.
func (d *Driver) ResetCloseTimer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.closeTimer != nil {
		d.closeTimer.Stop()
	}
	d.closeTimer = time.AfterFunc(closeWatchdog, func() {
		glogger.Warnw("close-timer watchdog fired, forcing view change")
		d.engine.ForceViewChange()
	})
}

// OnTransaction admits tx into the pool. Rebroadcast is the caller's
// responsibility: the gossip transport relays on the way in, the RPC
// boundary publishes after admission, and glue never re-publishes
// itself.
func (d *Driver) OnTransaction(tx *types.GTransaction, currentSourceNonce uint64) pool.AdmitOutcome {
	return d.pool.Import(tx, currentSourceNonce)
}
