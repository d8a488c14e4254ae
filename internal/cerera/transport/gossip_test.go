package transport

import (
	"context"
	"testing"
	"time"

	"github.com/cerera/internal/cerera/logger"
	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peerAddrInfo(h host.Host) peer.AddrInfo {
	return peer.AddrInfo{ID: h.ID(), Addrs: h.Addrs()}
}

func init() {
	_, _ = logger.Init(logger.Config{Level: "info", Console: false})
}

func newTestHostPair(t *testing.T) (context.Context, *Manager, *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h1, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h1.Close() })

	h2, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h2.Close() })

	require.NoError(t, h1.Connect(ctx, peerAddrInfo(h2)))

	m1, err := NewManager(ctx, h1)
	require.NoError(t, err)
	m2, err := NewManager(ctx, h2)
	require.NoError(t, err)

	return ctx, m1, m2
}

func TestManager_BroadcastDeliversToSubscriber(t *testing.T) {
	_, m1, m2 := newTestHostPair(t)

	received := make(chan []byte, 1)
	require.NoError(t, m1.Subscribe("pbft", func(string, []byte) {}))
	require.NoError(t, m2.Subscribe("pbft", func(_ string, payload []byte) {
		received <- payload
	}))

	// allow gossipsub's mesh to form before publishing.
	time.Sleep(300 * time.Millisecond)

	require.NoError(t, m1.Broadcast("pbft", []byte("hello")))

	select {
	case got := <-received:
		assert.Equal(t, []byte("hello"), got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for gossip delivery")
	}
}

func TestManager_FirstSeenDedup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	defer h.Close()

	m, err := NewManager(ctx, h)
	require.NoError(t, err)

	assert.True(t, m.firstSeen([]byte("payload-a")))
	assert.False(t, m.firstSeen([]byte("payload-a")))
	assert.True(t, m.firstSeen([]byte("payload-b")))
}

func TestManager_SendDeliversOverUnicastStream(t *testing.T) {
	ctx, m1, m2 := newTestHostPair(t)
	_ = ctx

	received := make(chan []byte, 1)
	require.NoError(t, m2.Subscribe("upgrade", func(_ string, payload []byte) {
		received <- payload
	}))

	require.NoError(t, m1.Send(m2.host.ID().String(), "upgrade", []byte("proposal-bytes")))

	select {
	case got := <-received:
		assert.Equal(t, []byte("proposal-bytes"), got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for unicast delivery")
	}
}

func TestManager_ActivePeerIDs(t *testing.T) {
	_, m1, m2 := newTestHostPair(t)
	ids := m1.ActivePeerIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, m2.host.ID().String(), ids[0])
}
