package consensus

import (
	"crypto/ecdh"
	"sync"
	"testing"
	"time"

	"github.com/cerera/internal/cerera/config"
	"github.com/cerera/internal/cerera/message"
	"github.com/cerera/internal/cerera/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// meshTransport fans a broadcast out to every registered engine, simulating
// the gossip transport's deliver-to-all behavior for a small closed mesh.
// Real transports (e.g. libp2p-pubsub) never call back into the sender's
// own goroutine synchronously; each target engine here gets its own
// buffered, ordered delivery queue so a broadcast can never reenter the
// sending engine's mutex from inside the Broadcast call that sent it.
type meshTransport struct {
	mu    sync.Mutex
	peers []*meshPeer
	codec Codec
}

type meshPeer struct {
	engine *Engine
	inbox  chan *message.Envelope
}

func (m *meshTransport) register(eng *Engine) {
	p := &meshPeer{engine: eng, inbox: make(chan *message.Envelope, 256)}
	go func() {
		for env := range p.inbox {
			_ = p.engine.OnReceive(env)
		}
	}()
	m.mu.Lock()
	m.peers = append(m.peers, p)
	m.mu.Unlock()
}

func (m *meshTransport) Broadcast(topic string, payload []byte) error {
	m.mu.Lock()
	targets := append([]*meshPeer(nil), m.peers...)
	m.mu.Unlock()
	env, err := m.codec.Decode(payload)
	if err != nil {
		return err
	}
	for _, p := range targets {
		p.inbox <- env
	}
	return nil
}

func (m *meshTransport) Send(peerID, topic string, payload []byte) error {
	return m.Broadcast(topic, payload)
}

type recordingNotify struct {
	mu          sync.Mutex
	committed   []committedValue
	viewChanged [][]byte
}

type committedValue struct {
	seq   uint64
	value []byte
}

func (n *recordingNotify) OnValueCommitted(seq uint64, value []byte, proof []*message.Envelope) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.committed = append(n.committed, committedValue{seq, value})
}
func (n *recordingNotify) OnViewChanged(preservedValue []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.viewChanged = append(n.viewChanged, preservedValue)
}
func (n *recordingNotify) CheckValue(value []byte) bool { return true }
func (n *recordingNotify) ResetCloseTimer()             {}

func (n *recordingNotify) commitCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.committed)
}

func (n *recordingNotify) viewChangedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.viewChanged)
}

func buildMesh(t *testing.T, n int) ([]*Engine, []*recordingNotify, *meshTransport, []types.Address) {
	t.Helper()
	cfg := config.DefaultConsensusConfig()
	mesh := &meshTransport{codec: JSONCodec{}}

	validators := make([]types.Address, n)
	privs := make([]*ecdh.PrivateKey, n)
	for i := 0; i < n; i++ {
		priv, err := types.GenerateAccount()
		require.NoError(t, err)
		validators[i] = types.PubkeyToAddress(*priv.PublicKey())
		privs[i] = priv
	}

	engines := make([]*Engine, n)
	notifies := make([]*recordingNotify, n)
	for i := 0; i < n; i++ {
		notify := &recordingNotify{}
		notifies[i] = notify
		engines[i] = NewEngine(cfg, validators, i, privs[i], mesh, JSONCodec{}, notify)
		mesh.register(engines[i])
	}
	return engines, notifies, mesh, validators
}

func TestQuorumOverrides(t *testing.T) {
	q, f := Quorum(1)
	assert.Equal(t, 1, q)
	assert.Equal(t, 0, f)

	q, _ = Quorum(2)
	assert.Equal(t, 2, q)

	q, _ = Quorum(3)
	assert.Equal(t, 2, q)

	q, f = Quorum(4)
	assert.Equal(t, 3, q)
	assert.Equal(t, 1, f)
}

func TestEngineHappyPathSingleNode(t *testing.T) {
	engines, notifies, _, _ := buildMesh(t, 1)
	require.NoError(t, engines[0].Request([]byte("value-1")))

	require.Eventually(t, func() bool {
		return notifies[0].commitCount() == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, uint64(1), engines[0].LastExeSeq())
}

func TestEngineHappyPathFourNodes(t *testing.T) {
	engines, notifies, _, _ := buildMesh(t, 4)
	require.True(t, engines[0].IsPrimary())

	require.NoError(t, engines[0].Request([]byte("value-1")))

	for _, notify := range notifies {
		require.Eventually(t, func() bool {
			return notify.commitCount() == 1
		}, time.Second, time.Millisecond)
	}

	for _, eng := range engines {
		assert.Equal(t, uint64(1), eng.LastExeSeq())
	}
}

func TestCheckProofRejectsShortProof(t *testing.T) {
	engines, _, _, validators := buildMesh(t, 4)
	require.NoError(t, engines[0].Request([]byte("value-1")))

	require.Eventually(t, func() bool {
		return engines[0].LastExeSeq() == 1
	}, time.Second, time.Millisecond)

	proof := engines[0].LastProof()
	require.GreaterOrEqual(t, len(proof), 3)

	short := proof
	if len(short) > 2 {
		short = short[:2]
	}
	ok := CheckProof(validators, proof[0].Digest, short)
	assert.False(t, ok, "a proof with fewer than q+1 commits must not check out")
}

func TestUpdateValidatorsAdoptsSetAndAdvances(t *testing.T) {
	engines, _, _, validators := buildMesh(t, 4)
	eng := engines[3]

	shrunk := validators[:3]
	eng.UpdateValidators(shrunk, 2, 7, 7)

	assert.Equal(t, uint64(7), eng.LastExeSeq())
	assert.Equal(t, uint64(3), eng.View(), "view must advance to commit view + 1")
	q, _ := Quorum(len(shrunk))
	assert.Equal(t, q, eng.QuorumSize())
}

func TestUpdateValidatorsSameSetOnlyAdvancesSeq(t *testing.T) {
	engines, _, _, validators := buildMesh(t, 4)
	eng := engines[0]

	eng.UpdateValidators(validators, 0, 5, 5)
	assert.Equal(t, uint64(5), eng.LastExeSeq())
	assert.Equal(t, uint64(1), eng.View())
}

// captureTransport records every broadcast envelope without delivering it
// anywhere, for driving a single engine through a scripted exchange.
type captureTransport struct {
	mu   sync.Mutex
	sent []*message.Envelope
}

func (c *captureTransport) Broadcast(topic string, payload []byte) error {
	env, err := (JSONCodec{}).Decode(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
	return nil
}

func (c *captureTransport) Send(peerID, topic string, payload []byte) error {
	return c.Broadcast(topic, payload)
}

func (c *captureTransport) byType(t message.Type) []*message.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*message.Envelope
	for _, env := range c.sent {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func buildValidators(t *testing.T, n int) ([]types.Address, []*ecdh.PrivateKey) {
	t.Helper()
	validators := make([]types.Address, n)
	privs := make([]*ecdh.PrivateKey, n)
	for i := 0; i < n; i++ {
		priv, err := types.GenerateAccount()
		require.NoError(t, err)
		validators[i] = types.PubkeyToAddress(*priv.PublicKey())
		privs[i] = priv
	}
	return validators, privs
}

func signedViewChange(t *testing.T, view uint64, replicaID int, priv *ecdh.PrivateKey) *message.Envelope {
	t.Helper()
	env := &message.Envelope{Type: message.ViewChangeWithRawValue, View: view, ReplicaID: replicaID}
	require.NoError(t, env.Sign(priv))
	return env
}

func TestViewChangePrimarySendsNewView(t *testing.T) {
	validators, privs := buildValidators(t, 4)
	capture := &captureTransport{}
	notify := &recordingNotify{}
	// replica 1 is the primary for view 1
	eng := NewEngine(config.DefaultConsensusConfig(), validators, 1, privs[1], capture, JSONCodec{}, notify)

	require.NoError(t, eng.OnReceive(signedViewChange(t, 1, 0, privs[0])))
	require.NoError(t, eng.OnReceive(signedViewChange(t, 1, 2, privs[2])))

	newViews := capture.byType(message.NewView)
	require.Len(t, newViews, 1)
	assert.Equal(t, uint64(1), newViews[0].View)
	assert.Equal(t, uint64(1), eng.View())
	assert.True(t, eng.IsPrimary())
	assert.Equal(t, 1, notify.viewChangedCount())
}

func TestViewChangeNonPrimaryEscalatesWithoutNewView(t *testing.T) {
	validators, privs := buildValidators(t, 4)
	capture := &captureTransport{}
	// replica 2 is NOT the primary for view 1
	eng := NewEngine(config.DefaultConsensusConfig(), validators, 2, privs[2], capture, JSONCodec{}, &recordingNotify{})

	require.NoError(t, eng.OnReceive(signedViewChange(t, 1, 0, privs[0])))
	require.NoError(t, eng.OnReceive(signedViewChange(t, 1, 1, privs[1])))

	// quorum reached, but this node is not the new primary: no NewView yet
	require.Empty(t, capture.byType(message.NewView))
	assert.Equal(t, uint64(0), eng.View(), "view must not activate before NewView arrives")

	// the NewView never arrives; past the wait the node must escalate to
	// a view change for v+1
	eng.OnTimer(time.Now().Add(time.Duration(eng.cfg.InstanceTimeout+1) * time.Second))

	escalated := false
	for _, env := range capture.byType(message.ViewChangeWithRawValue) {
		if env.View == 2 && env.ReplicaID == 2 {
			escalated = true
		}
	}
	assert.True(t, escalated, "expected a ViewChange for view 2 after the NewView wait expired")
}

func TestViewChangeFollowerAdoptsNewView(t *testing.T) {
	validators, privs := buildValidators(t, 4)
	notify := &recordingNotify{}
	eng := NewEngine(config.DefaultConsensusConfig(), validators, 3, privs[3], &captureTransport{}, JSONCodec{}, notify)

	bundle := []*message.Envelope{
		signedViewChange(t, 1, 0, privs[0]),
		signedViewChange(t, 1, 1, privs[1]),
		signedViewChange(t, 1, 2, privs[2]),
	}
	nv := &message.Envelope{Type: message.NewView, View: 1, ReplicaID: 1, Bundle: bundle}
	require.NoError(t, nv.Sign(privs[1]))

	require.NoError(t, eng.OnReceive(nv))
	assert.Equal(t, uint64(1), eng.View())
	assert.Equal(t, 1, notify.viewChangedCount())
}
