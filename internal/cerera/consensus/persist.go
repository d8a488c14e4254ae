package consensus

import (
	"encoding/json"
	"time"

	"github.com/cerera/internal/cerera/message"
	"github.com/cerera/internal/cerera/types"
)

// Store is the storage.KV contract narrowed to what the engine persists:
// view_active, view_number,
// last_exe_seq, the view-change snapshot and the validator set, written
// together as one atomic batch whenever any of them changes. Any type
// satisfying storage.KV (WriteBatch+Get included) satisfies this too.
type Store interface {
	WriteBatch(namespace string, puts map[string][]byte, deletes [][]byte) error
	Get(namespace string, key []byte) ([]byte, error)
}

const consensusNamespace = "consensus"
const snapshotKey = "snapshot"

// viewChangeSnapshot is the wire form of a viewChangeInstance: the
// collected envelopes, the highest prepared set, and the processed flag.
type viewChangeSnapshot struct {
	View            uint64
	Received        []*message.Envelope
	HighestPrepared *message.PreparedSet
	Processed       bool
	AwaitingNewView bool
}

// engineSnapshot groups every field the engine persists. The whole record
// is rewritten in one batch whenever any field changes.
type engineSnapshot struct {
	View        uint64
	ViewActive  bool
	LastExeSeq  uint64
	Validators  []types.Address
	ViewChanges []viewChangeSnapshot
}

// AttachStore wires a durable KV store into the engine: any previously
// persisted state is loaded immediately so a restarted node resumes its
// view/validator/checkpoint state, and every subsequent change is written
// back atomically.
func (e *Engine) AttachStore(store Store) {
	e.mu.Lock()
	e.store = store
	e.mu.Unlock()
	e.loadSnapshot(store)
}

func (e *Engine) loadSnapshot(store Store) {
	raw, err := store.Get(consensusNamespace, []byte(snapshotKey))
	if err != nil || raw == nil {
		return
	}
	var snap engineSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		clogger.Warnw("discarding unreadable consensus snapshot", "err", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.view = snap.View
	e.viewActive = snap.ViewActive
	e.lastExeSeq = snap.LastExeSeq
	if len(snap.Validators) > 0 {
		e.validators = snap.Validators
		e.n = len(snap.Validators)
		e.q, e.f = Quorum(e.n)
	}
	for _, vcs := range snap.ViewChanges {
		vc := newViewChangeInstance(vcs.View)
		for _, env := range vcs.Received {
			vc.received[env.ReplicaID] = env
		}
		vc.highestPrepared = vcs.HighestPrepared
		vc.processed = vcs.Processed
		vc.awaitingNewView = vcs.AwaitingNewView
		if vc.awaitingNewView {
			// Timers do not survive a restart; re-arm the NewView wait so
			// a primary that died alongside us still gets escalated past.
			vc.waitForNV = time.Now().Add(time.Duration(e.cfg.InstanceTimeout) * time.Second)
		}
		e.viewChanges[vcs.View] = vc
	}
	metricView.Set(float64(e.view))
	clogger.Infow("resumed consensus engine from persisted snapshot", "view", e.view, "lastExeSeq", e.lastExeSeq)
}

// persistLocked writes the current view/validator/checkpoint state as a
// single write-batch. Called under e.mu whenever any persisted
// field changes; a nil store (no durability configured) is a no-op.
func (e *Engine) persistLocked() {
	if e.store == nil {
		return
	}
	snap := engineSnapshot{
		View:       e.view,
		ViewActive: e.viewActive,
		LastExeSeq: e.lastExeSeq,
		Validators: e.validators,
	}
	for _, vc := range e.viewChanges {
		recv := make([]*message.Envelope, 0, len(vc.received))
		for _, env := range vc.received {
			recv = append(recv, env)
		}
		snap.ViewChanges = append(snap.ViewChanges, viewChangeSnapshot{
			View:            vc.targetView,
			Received:        recv,
			HighestPrepared: vc.highestPrepared,
			Processed:       vc.processed,
			AwaitingNewView: vc.awaitingNewView,
		})
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		clogger.Errorw("marshal consensus snapshot", "err", err)
		return
	}
	if err := e.store.WriteBatch(consensusNamespace, map[string][]byte{snapshotKey: raw}, nil); err != nil {
		clogger.Errorw("persist consensus snapshot failed", "err", err)
	}
}
