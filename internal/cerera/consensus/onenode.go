package consensus

import (
	"crypto/ecdh"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cerera/internal/cerera/common"
	"github.com/cerera/internal/cerera/message"
	"github.com/cerera/internal/cerera/types"
)

// OneNode is the single-validator consensus implementation: every value
// this node proposes commits immediately with a one-signature proof, and
// inbound consensus traffic is ignored. It exists so a standalone
// deployment does not pay for quorum bookkeeping it can never need.
type OneNode struct {
	mu sync.Mutex

	validators []types.Address
	priv       *ecdh.PrivateKey
	notify     Notify
	store      Store

	lastExeSeq uint64
	lastProof  []*message.Envelope
}

func NewOneNode(validators []types.Address, priv *ecdh.PrivateKey, notify Notify) *OneNode {
	return &OneNode{
		validators: append([]types.Address(nil), validators...),
		priv:       priv,
		notify:     notify,
	}
}

func (o *OneNode) Request(value []byte) error {
	o.mu.Lock()
	seq := o.lastExeSeq + 1
	env := &message.Envelope{
		Type:      message.Commit,
		View:      0,
		Seq:       seq,
		ReplicaID: 0,
		Digest:    digestOf(value),
	}
	if err := env.Sign(o.priv); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("consensus: sign commit: %w", err)
	}
	proof := []*message.Envelope{env}
	o.lastExeSeq = seq
	o.lastProof = proof
	o.persistLocked()
	notify := o.notify
	o.mu.Unlock()

	metricCommitsTotal.Inc()
	if notify != nil {
		notify.OnValueCommitted(seq, value, proof)
	}
	return nil
}

// OnReceive drops everything: a single-validator deployment has no peers
// whose consensus traffic could matter.
func (o *OneNode) OnReceive(env *message.Envelope) error { return nil }

func (o *OneNode) OnTimer(now time.Time) {}

func (o *OneNode) ForceViewChange() {}

func (o *OneNode) UpdateValidators(newSet []types.Address, commitView, commitSeq uint64, certificateSeq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.validators = append([]types.Address(nil), newSet...)
	if certificateSeq > o.lastExeSeq {
		o.lastExeSeq = certificateSeq
	}
	if len(o.validators) > 1 {
		clogger.Warnw("validator set grew past one; restart required to switch to PBFT", "n", len(o.validators))
	}
	o.persistLocked()
}

func (o *OneNode) CheckProof(validators []types.Address, prevValueHash common.Hash, proof []*message.Envelope) bool {
	return CheckProof(validators, prevValueHash, proof)
}

func (o *OneNode) IsPrimary() bool { return true }

func (o *OneNode) QuorumSize() int { return 1 }

func (o *OneNode) LastProof() []*message.Envelope {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastProof
}

func (o *OneNode) SetNotify(n Notify) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notify = n
}

func (o *OneNode) LastExeSeq() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastExeSeq
}

func (o *OneNode) AttachStore(store Store) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.store = store
	raw, err := store.Get(consensusNamespace, []byte(snapshotKey))
	if err != nil || raw == nil {
		return
	}
	var snap engineSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		clogger.Warnw("discarding unreadable consensus snapshot", "err", err)
		return
	}
	o.lastExeSeq = snap.LastExeSeq
	if len(snap.Validators) > 0 {
		o.validators = snap.Validators
	}
}

func (o *OneNode) persistLocked() {
	if o.store == nil {
		return
	}
	snap := engineSnapshot{
		ViewActive: true,
		LastExeSeq: o.lastExeSeq,
		Validators: o.validators,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		clogger.Errorw("marshal consensus snapshot", "err", err)
		return
	}
	if err := o.store.WriteBatch(consensusNamespace, map[string][]byte{snapshotKey: raw}, nil); err != nil {
		clogger.Errorw("persist consensus snapshot failed", "err", err)
	}
}
