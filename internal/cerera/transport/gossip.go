// Package transport implements the gossip/unicast substrate the
// consensus engine, the ledger-upgrade manager and the pool depend on:
// one topic per concern, first-seen deduplication within a short window,
// and a point-to-point send for the consensus engine's retransmissions to
// a single replica. A generic topic->handler registry driven by
// internal/cerera/topics lets the same manager serve PBFT envelopes, raw
// transactions and ledger-upgrade proposals without per-topic
// boilerplate.
package transport

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/cerera/internal/cerera/logger"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

var tlogger = logger.Named("transport")

// dedupWindow is the time a payload's fingerprint is remembered; a
// second delivery of the same payload within the window (gossip's
// natural replay across mesh peers) is dropped before it reaches a
// handler.
const dedupWindow = 120 * time.Second

const unicastProtocol protocol.ID = "/cerera/unicast/1.0.0"

// Handler is called once per first-seen payload on a topic, with the
// string form of the peer ID it arrived from (or "" for a direct Send
// the local node issued to itself, which never happens in practice).
type Handler func(peerID string, payload []byte)

// Manager is a libp2p GossipSub transport satisfying both
// consensus.Transport (Broadcast+Send) and upgrade.Transport
// (Broadcast).
type Manager struct {
	host host.Host
	ps   *pubsub.PubSub

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	topics   map[string]*pubsub.Topic
	subs     map[string]*pubsub.Subscription
	handlers map[string]Handler

	seen sync.Map // fingerprint string -> time.Time
}

// NewManager creates a GossipSub instance over h. msgIDFn derives the
// message ID from the payload content so retransmissions of the same
// payload collapse to one delivery at the pubsub layer itself, ahead of
// the manager's own dedup window.
func NewManager(ctx context.Context, h host.Host) (*Manager, error) {
	ctx, cancel := context.WithCancel(ctx)

	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithPeerExchange(true),
		pubsub.WithFloodPublish(true),
		pubsub.WithMessageIdFn(msgIDFn),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: create gossipsub: %w", err)
	}

	m := &Manager{
		host:     h,
		ps:       ps,
		ctx:      ctx,
		cancel:   cancel,
		topics:   make(map[string]*pubsub.Topic),
		subs:     make(map[string]*pubsub.Subscription),
		handlers: make(map[string]Handler),
	}
	h.SetStreamHandler(unicastProtocol, m.handleUnicastStream)
	go m.cleanupLoop()
	return m, nil
}

func msgIDFn(pmsg *pb.Message) string {
	h := sha256.Sum256(pmsg.Data)
	return fmt.Sprintf("%x", h)
}

func fingerprint(payload []byte) string {
	h := sha256.Sum256(payload)
	return string(h[:])
}

// firstSeen reports whether payload has not been observed within the
// dedup window, recording it as seen either way.
func (m *Manager) firstSeen(payload []byte) bool {
	key := fingerprint(payload)
	now := time.Now()
	if v, ok := m.seen.Load(key); ok {
		if now.Sub(v.(time.Time)) < dedupWindow {
			return false
		}
	}
	m.seen.Store(key, now)
	return true
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			m.seen.Range(func(key, value interface{}) bool {
				if now.Sub(value.(time.Time)) > dedupWindow {
					m.seen.Delete(key)
				}
				return true
			})
		}
	}
}

func (m *Manager) getOrJoinLocked(topic string) (*pubsub.Topic, error) {
	if t, ok := m.topics[topic]; ok {
		return t, nil
	}
	t, err := m.ps.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("transport: join topic %s: %w", topic, err)
	}
	m.topics[topic] = t
	return t, nil
}

// Subscribe joins topic (if not already joined) and starts delivering
// first-seen, non-self-originated payloads to handler. Registering a
// handler for a topic more than once replaces the previous handler.
func (m *Manager) Subscribe(topic string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[topic] = handler
	if _, ok := m.subs[topic]; ok {
		return nil
	}
	t, err := m.getOrJoinLocked(topic)
	if err != nil {
		return err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return fmt.Errorf("transport: subscribe topic %s: %w", topic, err)
	}
	m.subs[topic] = sub
	go m.readLoop(topic, sub)
	return nil
}

func (m *Manager) readLoop(topic string, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(m.ctx)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			tlogger.Warnw("pubsub read error", "topic", topic, "err", err)
			continue
		}
		if msg.ReceivedFrom == m.host.ID() {
			continue
		}
		if !m.firstSeen(msg.Data) {
			continue
		}
		m.mu.Lock()
		h := m.handlers[topic]
		m.mu.Unlock()
		if h != nil {
			h(msg.ReceivedFrom.String(), msg.Data)
		}
	}
}

// Broadcast publishes payload on topic, joining it lazily if this node
// has not already joined or subscribed to it.
func (m *Manager) Broadcast(topic string, payload []byte) error {
	m.mu.Lock()
	t, err := m.getOrJoinLocked(topic)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if err := t.Publish(m.ctx, payload); err != nil {
		return fmt.Errorf("transport: publish topic %s: %w", topic, err)
	}
	return nil
}

// Send delivers payload to a single peer over a direct libp2p stream,
// used by the consensus engine for retransmissions targeted at one
// replica rather than the whole mesh (e.g. a view-change NewView
// reply).
func (m *Manager) Send(peerID string, topic string, payload []byte) error {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return fmt.Errorf("transport: decode peer id %q: %w", peerID, err)
	}
	s, err := m.host.NewStream(m.ctx, pid, unicastProtocol)
	if err != nil {
		return fmt.Errorf("transport: open stream to %s: %w", peerID, err)
	}
	defer s.Close()

	frame := encodeUnicastFrame(topic, payload)
	if _, err := s.Write(frame); err != nil {
		return fmt.Errorf("transport: write stream to %s: %w", peerID, err)
	}
	return nil
}

func (m *Manager) handleUnicastStream(s network.Stream) {
	defer s.Close()
	topic, payload, err := decodeUnicastFrame(s)
	if err != nil {
		tlogger.Warnw("malformed unicast frame", "peer", s.Conn().RemotePeer(), "err", err)
		return
	}
	if !m.firstSeen(payload) {
		return
	}
	m.mu.Lock()
	h := m.handlers[topic]
	m.mu.Unlock()
	if h != nil {
		h(s.Conn().RemotePeer().String(), payload)
	}
}

// ActivePeerIDs returns the string form of every peer this host
// currently holds an open connection to.
func (m *Manager) ActivePeerIDs() []string {
	peers := m.host.Network().Peers()
	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.String())
	}
	return ids
}

// Close tears down every subscription and topic handle.
func (m *Manager) Close() error {
	m.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		sub.Cancel()
	}
	for _, t := range m.topics {
		t.Close()
	}
	return m.host.Close()
}
