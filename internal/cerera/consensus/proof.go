package consensus

import (
	"github.com/cerera/internal/cerera/common"
	"github.com/cerera/internal/cerera/message"
	"github.com/cerera/internal/cerera/types"
)

// CheckProof validates a commit certificate: every Commit in
// proof must be of type Commit, well-signed by a distinct member of V, and
// carry value_digest == prevValueHash; the distinct-signer count must meet
// CommitQuorum(|V|, q).
func CheckProof(validators []types.Address, prevValueHash common.Hash, proof []*message.Envelope) bool {
	q, _ := Quorum(len(validators))
	distinct := map[int]bool{}
	for _, env := range proof {
		if env.Type != message.Commit {
			continue
		}
		if env.Digest != prevValueHash {
			continue
		}
		if err := env.Check(validators, q); err != nil {
			continue
		}
		distinct[env.ReplicaID] = true
	}
	return len(distinct) >= CommitQuorum(len(validators), q)
}

// CheckProof is also exposed as a method bound to the engine's own
// validator set and quorum, as used by ConsensusOps.check_proof.
func (e *Engine) CheckProof(validators []types.Address, prevValueHash common.Hash, proof []*message.Envelope) bool {
	return CheckProof(validators, prevValueHash, proof)
}

// LastProof returns the commit certificate for the most recently committed
// instance, used by the glue as previous_proof for the next value.
func (e *Engine) LastProof() []*message.Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastProof
}

// UpdateValidators adopts a new validator set and/or advances last_exe_seq
// from a commit certificate, as learned from a committed block.
func (e *Engine) UpdateValidators(newSet []types.Address, commitView, commitSeq uint64, certificateSeq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := !sameSet(e.validators, newSet)
	advanced := false

	if changed {
		e.validators = append([]types.Address(nil), newSet...)
		e.n = len(newSet)
		e.q, e.f = Quorum(e.n)
		if e.priv != nil {
			self := types.PubkeyToAddress(*e.priv.PublicKey())
			e.replicaID = -1
			for i, a := range e.validators {
				if a == self {
					e.replicaID = i
					break
				}
			}
		}
		for k, inst := range e.instances {
			if inst.phase < Committed {
				delete(e.instances, k)
			}
		}
		e.notify.ResetCloseTimer()
	}

	if certificateSeq > e.lastExeSeq {
		e.lastExeSeq = certificateSeq
		advanced = true
	}

	if changed || advanced {
		e.view = commitView + 1
		e.viewActive = true
		metricView.Set(float64(e.view))
		for v := range e.viewChanges {
			if v <= e.view || v+5 <= e.view {
				delete(e.viewChanges, v)
			}
		}
	}

	if changed || advanced {
		e.persistLocked()
	}
}

func sameSet(a, b []types.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
