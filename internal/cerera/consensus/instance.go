package consensus

import (
	"time"

	"github.com/cerera/internal/cerera/common"
	"github.com/cerera/internal/cerera/message"
)

// Phase is the per-(view,seq) instance state.
type Phase int

const (
	None Phase = iota
	PrePrepared
	Prepared
	Committed
)

func (p Phase) String() string {
	switch p {
	case None:
		return "None"
	case PrePrepared:
		return "PrePrepared"
	case Prepared:
		return "Prepared"
	case Committed:
		return "Committed"
	default:
		return "Unknown"
	}
}

type instance struct {
	view, seq uint64
	phase     Phase

	prePrepare *message.Envelope
	prepares   map[int]*message.Envelope
	commits    map[int]*message.Envelope

	digest common.Hash
	value  []byte

	start          time.Time
	lastPropose    time.Time
	lastCommitSend time.Time
	end            time.Time

	round uint64

	checked     bool
	checkResult bool

	timedOut bool
}

func newInstance(view, seq uint64) *instance {
	return &instance{
		view:     view,
		seq:      seq,
		phase:    None,
		prepares: make(map[int]*message.Envelope),
		commits:  make(map[int]*message.Envelope),
		start:    time.Now(),
	}
}

func (i *instance) distinctPrepares() int { return len(i.prepares) }
func (i *instance) distinctCommits() int  { return len(i.commits) }

// preparedSet assembles the PreparedSet for this instance, if any.
func (i *instance) preparedSet() *message.PreparedSet {
	if i.prePrepare == nil || i.phase < Prepared {
		return nil
	}
	ps := &message.PreparedSet{PrePrepare: i.prePrepare}
	for _, p := range i.prepares {
		ps.Prepares = append(ps.Prepares, p)
	}
	return ps
}

// viewChangeInstance is the per-target-view view-change record.
type viewChangeInstance struct {
	targetView uint64

	own      *message.Envelope
	received map[int]*message.Envelope

	highestPrepared *message.PreparedSet

	newView    *message.Envelope
	nvRound    uint64
	nvLastSend time.Time // last time this node (as new primary) broadcast its NewView

	// awaitingNewView is set at a non-primary once the view-change quorum
	// is reached: the node is waiting for the new primary's NewView and,
	// if waitForNV passes first, escalates to the next view. processed is
	// set only when this node itself completed the change as the new
	// primary (NewView sent).
	awaitingNewView bool
	waitForNV       time.Time
	processed       bool
}

func newViewChangeInstance(v uint64) *viewChangeInstance {
	return &viewChangeInstance{
		targetView: v,
		received:   make(map[int]*message.Envelope),
	}
}

// outOfBandInstance accumulates Commit envelopes for sequences beyond the
// current watermark window, used by the catch-up mechanism.
type outOfBandInstance struct {
	view, seq uint64
	digest    common.Hash
	commits   map[int]*message.Envelope
}

func newOutOfBandInstance(view, seq uint64, digest common.Hash) *outOfBandInstance {
	return &outOfBandInstance{
		view:    view,
		seq:     seq,
		digest:  digest,
		commits: make(map[int]*message.Envelope),
	}
}
