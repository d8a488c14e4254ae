// Package consensus implements the PBFT engine: ordered agreement on an
// opaque value per sequence number, including view change and catch-up.
package consensus

import (
	"crypto/ecdh"
	"fmt"
	"sync"
	"time"

	"github.com/cerera/internal/cerera/common"
	"github.com/cerera/internal/cerera/config"
	"github.com/cerera/internal/cerera/logger"
	"github.com/cerera/internal/cerera/message"
	"github.com/cerera/internal/cerera/topics"
	"github.com/cerera/internal/cerera/types"
	"github.com/prometheus/client_golang/prometheus"
)

var clogger = logger.Named("consensus")

var (
	metricOpenInstances = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "consensus_open_instances",
		Help: "Number of (view,seq) instances not yet purged",
	})
	metricView = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "consensus_view_number",
		Help: "Current active view number",
	})
	metricCommitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consensus_commits_total",
		Help: "Total number of values committed",
	})
	metricViewChangesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consensus_view_changes_total",
		Help: "Total number of view changes completed",
	})
	metricMessagesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consensus_messages_dropped_total",
		Help: "Total number of inbound envelopes dropped as invalid or stale",
	})
)

func init() {
	prometheus.MustRegister(
		metricOpenInstances,
		metricView,
		metricCommitsTotal,
		metricViewChangesTotal,
		metricMessagesDroppedTotal,
	)
}

// Transport is the gossip contract consumed by the engine.
type Transport interface {
	Broadcast(topic string, payload []byte) error
	Send(peerID string, topic string, payload []byte) error
}

// Notify is the glue-implemented callback interface the engine fires.
type Notify interface {
	OnValueCommitted(seq uint64, value []byte, proof []*message.Envelope)
	OnViewChanged(preservedValue []byte)
	CheckValue(value []byte) bool
	ResetCloseTimer()
}

// Codec marshals/unmarshals envelopes for the wire. Kept separate from
// message.Envelope so the engine does not hard-code an encoding.
type Codec interface {
	Encode(*message.Envelope) ([]byte, error)
	Decode([]byte) (*message.Envelope, error)
}

// Engine is the PBFT state machine, indexed by (view, seq).
type Engine struct {
	mu sync.Mutex

	cfg config.ConsensusConfig

	validators []types.Address
	n, q, f    int
	replicaID  int

	view       uint64
	viewActive bool
	lastExeSeq uint64

	instances   map[seqKey]*instance
	viewChanges map[uint64]*viewChangeInstance
	outOfBand   map[obKey]*outOfBandInstance

	priv      *ecdh.PrivateKey
	transport Transport
	codec     Codec
	notify    Notify
	store     Store

	lastProof []*message.Envelope

	// pending accumulates Notify callbacks raised while e.mu is held, so
	// the locked call site that triggered them can invoke the callbacks
	// after releasing the lock instead of calling back into the engine
	// from inside its own critical section.
	pending []func()
}

type seqKey struct{ view, seq uint64 }
type obKey struct {
	view, seq uint64
	digest    common.Hash
}

// NewEngine constructs an Engine for a known validator set. replicaID is
// this node's index in validators; priv signs this node's envelopes.
func NewEngine(cfg config.ConsensusConfig, validators []types.Address, replicaID int, priv *ecdh.PrivateKey, transport Transport, codec Codec, notify Notify) *Engine {
	q, f := Quorum(len(validators))
	e := &Engine{
		cfg:         cfg,
		validators:  append([]types.Address(nil), validators...),
		n:           len(validators),
		q:           q,
		f:           f,
		replicaID:   replicaID,
		viewActive:  true,
		instances:   make(map[seqKey]*instance),
		viewChanges: make(map[uint64]*viewChangeInstance),
		outOfBand:   make(map[obKey]*outOfBandInstance),
		priv:        priv,
		transport:   transport,
		codec:       codec,
		notify:      notify,
	}
	return e
}

func (e *Engine) primaryFor(view uint64) int {
	if e.n == 0 {
		return 0
	}
	return int(view % uint64(e.n))
}

func (e *Engine) isPrimaryLocked() bool {
	return e.viewActive && e.primaryFor(e.view) == e.replicaID
}

// SetNotify rebinds the engine's callback target. It exists so a caller
// can construct the Notify implementation (which typically needs a
// reference back to the Engine) after NewEngine, instead of requiring a
// circular constructor.
func (e *Engine) SetNotify(n Notify) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notify = n
}

// IsPrimary reports whether this node is the primary for the active view.
func (e *Engine) IsPrimary() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isPrimaryLocked()
}

// View returns the current active view number.
func (e *Engine) View() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// QuorumSize returns q, the Prepared quorum size.
func (e *Engine) QuorumSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q
}

// LastExeSeq returns the highest committed sequence.
func (e *Engine) LastExeSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastExeSeq
}

func digestOf(value []byte) common.Hash {
	return types.INRISeqHash(value)
}

// queueNotifyLocked defers a Notify callback until after the current
// locked call releases e.mu. Notify is implemented by the glue Driver,
// which calls back into exported Engine methods (e.g. IsPrimary) that
// also take e.mu; invoking it synchronously here would self-deadlock.
func (e *Engine) queueNotifyLocked(fn func()) {
	e.pending = append(e.pending, fn)
}

// drainPendingLocked detaches and returns the callbacks queued by
// queueNotifyLocked during this locked call, for the caller to run once
// e.mu is released.
func (e *Engine) drainPendingLocked() []func() {
	pending := e.pending
	e.pending = nil
	return pending
}

// runPending invokes callbacks collected by drainPendingLocked. Called
// only after e.mu has been released.
func runPending(pending []func()) {
	for _, fn := range pending {
		fn()
	}
}

// Request proposes value for the next sequence. Leader-only.
func (e *Engine) Request(value []byte) error {
	var pending []func()
	defer func() { runPending(pending) }()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { pending = e.drainPendingLocked() }()
	if !e.isPrimaryLocked() {
		return fmt.Errorf("consensus: not primary for view %d", e.view)
	}
	seq := e.lastExeSeq + 1
	digest := digestOf(value)
	env := &message.Envelope{
		Type:      message.PrePrepare,
		View:      e.view,
		Seq:       seq,
		ReplicaID: e.replicaID,
		Digest:    digest,
		Value:     value,
	}
	if err := env.Sign(e.priv); err != nil {
		return fmt.Errorf("consensus: sign pre-prepare: %w", err)
	}

	inst := e.getOrCreateInstanceLocked(e.view, seq)
	inst.phase = PrePrepared
	inst.prePrepare = env
	inst.value = value
	inst.digest = digest
	inst.lastPropose = time.Now()

	e.broadcastLocked(topics.PBFT, env)
	e.sendPrepareLocked(inst)
	return nil
}

func (e *Engine) getOrCreateInstanceLocked(view, seq uint64) *instance {
	k := seqKey{view, seq}
	inst, ok := e.instances[k]
	if !ok {
		inst = newInstance(view, seq)
		e.instances[k] = inst
		metricOpenInstances.Set(float64(len(e.instances)))
	}
	return inst
}

// inWatermarkLocked reports whether seq falls in [lastExeSeq+1, lastExeSeq+ckpInterval].
func (e *Engine) inWatermarkLocked(seq uint64) bool {
	lo := e.lastExeSeq + 1
	hi := e.lastExeSeq + e.cfg.CkpInterval
	return seq >= lo && seq <= hi
}

// OnReceive processes an inbound, transport-delivered envelope.
func (e *Engine) OnReceive(env *message.Envelope) error {
	var pending []func()
	defer func() { runPending(pending) }()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { pending = e.drainPendingLocked() }()

	if err := env.Check(e.validators, e.q); err != nil {
		metricMessagesDroppedTotal.Inc()
		clogger.Debugw("dropping invalid envelope", "type", env.Type, "err", err)
		return nil
	}

	switch env.Type {
	case message.PrePrepare:
		e.handlePrePrepareLocked(env)
	case message.Prepare:
		e.handlePrepareLocked(env)
	case message.Commit:
		e.handleCommitLocked(env)
	case message.ViewChangeWithRawValue, message.ViewChange:
		e.handleViewChangeLocked(env)
	case message.NewView:
		e.handleNewViewLocked(env)
	default:
		metricMessagesDroppedTotal.Inc()
	}
	return nil
}

func (e *Engine) handlePrePrepareLocked(env *message.Envelope) {
	if env.View != e.view || !e.viewActive {
		metricMessagesDroppedTotal.Inc()
		return
	}
	if !e.inWatermarkLocked(env.Seq) {
		metricMessagesDroppedTotal.Inc()
		return
	}
	if digestOf(env.Value) != env.Digest {
		clogger.Debugw("pre-prepare digest mismatch", "seq", env.Seq)
		metricMessagesDroppedTotal.Inc()
		return
	}

	inst := e.getOrCreateInstanceLocked(env.View, env.Seq)
	if inst.phase != None {
		if inst.prePrepare != nil && inst.digest == env.Digest {
			// duplicate: resend Prepare with an incremented round, no state change
			inst.round++
			e.sendPrepareLocked(inst)
		}
		return
	}
	if !e.notify.CheckValue(env.Value) {
		metricMessagesDroppedTotal.Inc()
		return
	}

	inst.prePrepare = env
	inst.value = env.Value
	inst.digest = env.Digest
	inst.phase = PrePrepared
	inst.lastPropose = time.Now()
	e.sendPrepareLocked(inst)
}

func (e *Engine) sendPrepareLocked(inst *instance) {
	env := &message.Envelope{
		Type:      message.Prepare,
		View:      inst.view,
		Seq:       inst.seq,
		ReplicaID: e.replicaID,
		Digest:    inst.digest,
		Round:     inst.round,
	}
	if err := env.Sign(e.priv); err != nil {
		clogger.Errorw("sign prepare", "err", err)
		return
	}
	inst.prepares[e.replicaID] = env
	e.broadcastLocked(topics.PBFT, env)

	// The gossip transport gives no cross-peer delivery-order guarantee:
	// other replicas' Prepares may already have arrived before
	// this node reached PrePrepared, so this node's own vote can be the
	// one that completes the quorum. Re-check here, not only on receipt.
	if inst.phase == PrePrepared && inst.distinctPrepares() >= e.q {
		inst.phase = Prepared
		if e.notify.CheckValue(inst.value) {
			e.sendCommitLocked(inst)
		}
	}
}

func (e *Engine) handlePrepareLocked(env *message.Envelope) {
	if !e.inWatermarkLocked(env.Seq) || env.View != e.view {
		metricMessagesDroppedTotal.Inc()
		return
	}
	inst := e.getOrCreateInstanceLocked(env.View, env.Seq)
	if inst.prePrepare != nil && inst.prePrepare.Digest != env.Digest {
		metricMessagesDroppedTotal.Inc()
		return
	}
	inst.prepares[env.ReplicaID] = env

	if inst.phase == PrePrepared && inst.distinctPrepares() >= e.q {
		inst.phase = Prepared
		if e.notify.CheckValue(inst.value) {
			e.sendCommitLocked(inst)
		}
	}
}

func (e *Engine) sendCommitLocked(inst *instance) {
	env := &message.Envelope{
		Type:      message.Commit,
		View:      inst.view,
		Seq:       inst.seq,
		ReplicaID: e.replicaID,
		Digest:    inst.digest,
		Round:     inst.round,
	}
	if err := env.Sign(e.priv); err != nil {
		clogger.Errorw("sign commit", "err", err)
		return
	}
	inst.commits[e.replicaID] = env
	inst.lastCommitSend = time.Now()
	e.broadcastLocked(topics.PBFT, env)

	// Same reasoning as sendPrepareLocked: this node's own Commit can be
	// the one that completes the q+1 quorum when others' Commits were
	// already delivered before this node reached Prepared.
	if inst.phase < Committed && inst.distinctCommits() >= e.commitQuorumLocked() {
		e.commitInstanceLocked(inst)
	}
}

// commitQuorumLocked returns the number of distinct Commits required to
// move an instance to Committed, capped at the live validator-set size.
func (e *Engine) commitQuorumLocked() int {
	return CommitQuorum(e.n, e.q)
}

func (e *Engine) handleCommitLocked(env *message.Envelope) {
	if env.Seq > e.lastExeSeq+e.cfg.CkpInterval {
		e.accumulateOutOfBandLocked(env)
		return
	}
	if !e.inWatermarkLocked(env.Seq) || env.View != e.view {
		metricMessagesDroppedTotal.Inc()
		return
	}
	inst := e.getOrCreateInstanceLocked(env.View, env.Seq)
	if inst.prePrepare != nil && inst.prePrepare.Digest != env.Digest {
		metricMessagesDroppedTotal.Inc()
		return
	}
	inst.commits[env.ReplicaID] = env

	if inst.phase < Committed && inst.distinctCommits() >= e.commitQuorumLocked() {
		e.commitInstanceLocked(inst)
	}
}

func (e *Engine) commitInstanceLocked(inst *instance) {
	inst.phase = Committed
	inst.end = time.Now()
	proof := make([]*message.Envelope, 0, len(inst.commits))
	for _, c := range inst.commits {
		proof = append(proof, c)
	}
	e.lastProof = proof
	if inst.seq > e.lastExeSeq {
		e.lastExeSeq = inst.seq
	}
	metricCommitsTotal.Inc()
	e.purgeOldInstancesLocked()
	e.persistLocked()
	seq, value := inst.seq, inst.value
	e.queueNotifyLocked(func() { e.notify.OnValueCommitted(seq, value, proof) })
}

func (e *Engine) purgeOldInstancesLocked() {
	threshold := e.lastExeSeq
	half := e.cfg.CkpInterval / 2
	if threshold > half {
		threshold -= half
	} else {
		threshold = 0
	}
	for k := range e.instances {
		if k.seq <= threshold {
			delete(e.instances, k)
		}
	}
	metricOpenInstances.Set(float64(len(e.instances)))
}

func (e *Engine) accumulateOutOfBandLocked(env *message.Envelope) {
	k := obKey{env.View, env.Seq, env.Digest}
	ob, ok := e.outOfBand[k]
	if !ok {
		ob = newOutOfBandInstance(env.View, env.Seq, env.Digest)
		e.outOfBand[k] = ob
	}
	ob.commits[env.ReplicaID] = env
	if len(ob.commits) >= e.commitQuorumLocked() {
		e.jumpLocked(ob)
	}
}

// jumpLocked performs catch-up: adopt the out-of-band instance's
// (view, seq) as the new position.
func (e *Engine) jumpLocked(ob *outOfBandInstance) {
	e.view = ob.view
	e.viewActive = true
	e.lastExeSeq = ob.seq
	metricView.Set(float64(e.view))

	for v, vc := range e.viewChanges {
		if vc.own != nil && !vc.processed {
			delete(e.viewChanges, v)
		}
	}
	for k := range e.instances {
		if k.seq <= e.lastExeSeq {
			delete(e.instances, k)
		}
	}
	delete(e.outOfBand, obKey{ob.view, ob.seq, ob.digest})
	e.persistLocked()
	e.notify.ResetCloseTimer()
}

func (e *Engine) broadcastLocked(topic string, env *message.Envelope) {
	payload, err := e.codec.Encode(env)
	if err != nil {
		clogger.Errorw("encode envelope", "err", err)
		return
	}
	if err := e.transport.Broadcast(topic, payload); err != nil {
		clogger.Warnw("broadcast failed", "topic", topic, "err", err)
	}
}
