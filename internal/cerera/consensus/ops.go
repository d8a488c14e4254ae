package consensus

import (
	"crypto/ecdh"
	"time"

	"github.com/cerera/internal/cerera/common"
	"github.com/cerera/internal/cerera/config"
	"github.com/cerera/internal/cerera/message"
	"github.com/cerera/internal/cerera/types"
)

// Ops is the narrow contract the glue driver and the node wiring use to
// drive a consensus implementation. Two implementations exist: the full
// PBFT Engine, and OneNode for a single-validator deployment where no
// message exchange is needed. The choice is made once, at boot, by New.
type Ops interface {
	Request(value []byte) error
	OnReceive(env *message.Envelope) error
	OnTimer(now time.Time)
	ForceViewChange()
	UpdateValidators(newSet []types.Address, commitView, commitSeq uint64, certificateSeq uint64)
	CheckProof(validators []types.Address, prevValueHash common.Hash, proof []*message.Envelope) bool
	IsPrimary() bool
	QuorumSize() int
	LastProof() []*message.Envelope
	SetNotify(Notify)
	AttachStore(Store)
}

// New returns the consensus implementation matching the boot-time
// validator set: OneNode when this node is the only validator, the PBFT
// Engine otherwise.
func New(cfg config.ConsensusConfig, validators []types.Address, replicaID int, priv *ecdh.PrivateKey, transport Transport, codec Codec, notify Notify) Ops {
	if len(validators) == 1 {
		return NewOneNode(validators, priv, notify)
	}
	return NewEngine(cfg, validators, replicaID, priv, transport, codec, notify)
}
