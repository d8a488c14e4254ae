package consensus

import (
	"time"

	"github.com/cerera/internal/cerera/message"
	"github.com/cerera/internal/cerera/topics"
)

func (e *Engine) getOrCreateViewChangeLocked(v uint64) *viewChangeInstance {
	vc, ok := e.viewChanges[v]
	if !ok {
		vc = newViewChangeInstance(v)
		e.viewChanges[v] = vc
	}
	return vc
}

// ForceViewChange fires on_tx_timeout directly, independent of any
// per-instance expiry check. It backs the glue driver's close-timer
// watchdog (20 s grace + 10 s slack), which must be
// able to force a view change even when no instance is currently open.
func (e *Engine) ForceViewChange() {
	var pending []func()
	defer func() { runPending(pending) }()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { pending = e.drainPendingLocked() }()
	e.triggerViewChangeLocked()
}

// highestPreparedLocked returns the PreparedSet of the highest-seq instance
// currently Prepared or Committed at this node, used both for own
// ViewChange broadcasts and for comparing collected ones.
func (e *Engine) highestPreparedLocked() *message.PreparedSet {
	var best *instance
	for _, inst := range e.instances {
		if inst.phase < Prepared {
			continue
		}
		if best == nil || inst.seq > best.seq {
			best = inst
		}
	}
	if best == nil {
		return nil
	}
	return best.preparedSet()
}

// triggerViewChangeLocked fires on_tx_timeout: the node advances its
// target view and broadcasts a ViewChangeWithRawValue.
func (e *Engine) triggerViewChangeLocked() {
	target := e.view + 1
	e.viewActive = false

	ps := e.highestPreparedLocked()
	env := &message.Envelope{
		Type:      message.ViewChangeWithRawValue,
		View:      target,
		ReplicaID: e.replicaID,
		Prepared:  ps,
	}
	if ps != nil {
		env.Digest = ps.PrePrepare.Digest
	}
	if err := env.Sign(e.priv); err != nil {
		clogger.Errorw("sign view change", "err", err)
		return
	}

	vc := e.getOrCreateViewChangeLocked(target)
	vc.own = env
	vc.received[e.replicaID] = env
	vc.waitForNV = time.Now().Add(time.Duration(e.cfg.ViewChangeTimeout) * time.Second)
	e.updateHighestPreparedLocked(vc, ps)

	e.persistLocked()
	e.broadcastLocked(topics.PBFT, env)
}

func (e *Engine) updateHighestPreparedLocked(vc *viewChangeInstance, ps *message.PreparedSet) {
	if ps == nil {
		return
	}
	if vc.highestPrepared == nil || ps.PrePrepare.Seq > vc.highestPrepared.PrePrepare.Seq {
		vc.highestPrepared = ps
	}
}

func (e *Engine) handleViewChangeLocked(env *message.Envelope) {
	v := env.View
	if v <= e.view {
		metricMessagesDroppedTotal.Inc()
		return
	}
	vc := e.getOrCreateViewChangeLocked(v)
	if vc.processed {
		return
	}
	vc.received[env.ReplicaID] = env
	if env.Type == message.ViewChangeWithRawValue {
		e.updateHighestPreparedLocked(vc, env.Prepared)
	}

	if !vc.awaitingNewView && len(vc.received) > e.f {
		e.processViewChangeQuorumLocked(vc)
	}
}

func (e *Engine) processViewChangeQuorumLocked(vc *viewChangeInstance) {
	v := vc.targetView

	if e.primaryFor(v) == e.replicaID {
		vc.processed = true
		bundle := make([]*message.Envelope, 0, len(vc.received))
		for _, m := range vc.received {
			bundle = append(bundle, m)
		}
		nv := &message.Envelope{
			Type:      message.NewView,
			View:      v,
			ReplicaID: e.replicaID,
			Bundle:    bundle,
			Prepared:  vc.highestPrepared,
		}
		if err := nv.Sign(e.priv); err != nil {
			clogger.Errorw("sign new view", "err", err)
			return
		}
		vc.newView = nv
		vc.nvLastSend = time.Now()
		e.activateViewLocked(v)
		e.broadcastLocked(topics.PBFT, nv)
		metricViewChangesTotal.Inc()

		var preserved []byte
		if vc.highestPrepared != nil {
			preserved = vc.highestPrepared.PrePrepare.Value
		}
		e.queueNotifyLocked(func() { e.notify.OnViewChanged(preserved) })
		return
	}

	// non-primary: wait for NewView, else escalate to v+1 on timeout
	vc.awaitingNewView = true
	vc.waitForNV = time.Now().Add(time.Duration(e.cfg.InstanceTimeout) * time.Second)
}

func (e *Engine) handleNewViewLocked(env *message.Envelope) {
	v := env.View
	if v <= e.view {
		metricMessagesDroppedTotal.Inc()
		return
	}
	distinct := map[int]bool{}
	for _, vcEnv := range env.Bundle {
		if vcEnv.View != v {
			continue
		}
		if err := vcEnv.Check(e.validators, e.q); err != nil {
			continue
		}
		distinct[vcEnv.ReplicaID] = true
	}
	if len(distinct) <= e.f {
		metricMessagesDroppedTotal.Inc()
		return
	}

	for k, inst := range e.instances {
		if inst.seq > e.lastExeSeq && inst.phase < Prepared {
			delete(e.instances, k)
		}
	}
	e.activateViewLocked(v)
	metricViewChangesTotal.Inc()
	e.queueNotifyLocked(func() { e.notify.OnViewChanged(nil) })
}

func (e *Engine) activateViewLocked(v uint64) {
	e.view = v
	e.viewActive = true
	metricView.Set(float64(e.view))
	for tv, vc := range e.viewChanges {
		// A completed instance holding the NewView this node sent as the
		// new primary stays around for retransmission until it goes
		// stale; everything else at or below the activated view is done.
		if tv+5 <= v || (tv <= v && vc.newView == nil) {
			delete(e.viewChanges, tv)
		}
	}
	e.persistLocked()
}

// OnTimer drives retransmission, instance timeout / view change, and
// pending view-change escalation. Expected to be called periodically
// (e.g. every second) by the node's timer loop (Core.timerLoop in cmd/cerera).
func (e *Engine) OnTimer(now time.Time) {
	var pending []func()
	defer func() { runPending(pending) }()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { pending = e.drainPendingLocked() }()

	instanceTimeout := time.Duration(e.cfg.InstanceTimeout) * time.Second
	retransmitEvery := instanceTimeout / 4
	commitEvery := time.Duration(e.cfg.CommitSendInterval) * time.Second

	for _, inst := range e.instances {
		if inst.phase == Committed {
			continue
		}
		if !inst.timedOut && now.Sub(inst.start) > instanceTimeout {
			inst.timedOut = true
			e.triggerViewChangeLocked()
			continue
		}
		if inst.phase < Committed && now.Sub(inst.lastPropose) > retransmitEvery && inst.prePrepare != nil {
			inst.round++
			inst.lastPropose = now
			e.broadcastLocked(topics.PBFT, inst.prePrepare)
		}
		if inst.phase == Prepared && now.Sub(inst.lastCommitSend) > commitEvery {
			e.sendCommitLocked(inst)
		}
	}

	nvEvery := time.Duration(e.cfg.NewViewSendInterval) * time.Second
	for v, vc := range e.viewChanges {
		if vc.newView != nil && v == e.view && now.Sub(vc.nvLastSend) > nvEvery {
			vc.nvRound++
			vc.nvLastSend = now
			e.broadcastLocked(topics.PBFT, vc.newView)
			continue
		}
		if vc.processed || vc.waitForNV.IsZero() {
			continue
		}
		if now.After(vc.waitForNV) {
			next := v + 1
			ps := vc.highestPrepared
			env := &message.Envelope{
				Type:      message.ViewChangeWithRawValue,
				View:      next,
				ReplicaID: e.replicaID,
				Prepared:  ps,
			}
			if ps != nil {
				env.Digest = ps.PrePrepare.Digest
			}
			if err := env.Sign(e.priv); err == nil {
				nvc := e.getOrCreateViewChangeLocked(next)
				nvc.own = env
				nvc.received[e.replicaID] = env
				nvc.waitForNV = now.Add(time.Duration(e.cfg.ViewChangeTimeout) * time.Second)
				e.updateHighestPreparedLocked(nvc, ps)
				e.broadcastLocked(topics.PBFT, env)
			}
			delete(e.viewChanges, v)
		}
	}
}
