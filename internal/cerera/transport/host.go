package transport

import (
	"context"
	"fmt"

	"github.com/cerera/internal/cerera/config"
	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	ma "github.com/multiformats/go-multiaddr"
)

// NewHost builds the libp2p host this node gossips over. The
// transport-layer identity is a libp2p-native Ed25519 key, kept
// separate from the node's ecdh PBFT signing key (internal/cerera/
// types): libp2p's crypto.PrivKey has no P256/ecdh constructor, and
// tying stream encryption to the consensus signing key buys nothing
// the envelope signatures don't already provide.
func NewHost(ctx context.Context, cfg *config.Config) (host.Host, error) {
	addrs := []string{
		fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.NetCfg.P2P),
		fmt.Sprintf("/ip6/::/tcp/%d", cfg.NetCfg.P2P),
	}
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(addrs...),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.DefaultMuxers,
		libp2p.DefaultPeerstore,
		libp2p.NATPortMap(),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: create libp2p host: %w", err)
	}
	tlogger.Infow("libp2p host created", "peerID", h.ID().String(), "addrs", h.Addrs())
	return h, nil
}

// Connect dials a bootstrap/known peer by its full multiaddr string
// ("/ip4/.../tcp/.../p2p/<id>").
func Connect(ctx context.Context, h host.Host, addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("transport: parse peer address %q: %w", addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("transport: peer address %q carries no /p2p id: %w", addr, err)
	}
	if err := h.Connect(ctx, *info); err != nil {
		return fmt.Errorf("transport: connect to %s: %w", addr, err)
	}
	return nil
}
