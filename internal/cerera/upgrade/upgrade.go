// Package upgrade implements the ledger-upgrade sub-protocol:
// nodes gossip a signed local proposal for the next ledger version and
// adopt the new version once a quorum of distinct validators agree.
package upgrade

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cerera/internal/cerera/logger"
	"github.com/cerera/internal/cerera/types"
	"golang.org/x/crypto/blake2b"
)

var ulogger = logger.Named("upgrade")

const (
	broadcastInterval = 30 * time.Second
	pruneAfter        = 300 * time.Second
)

// Proposal is a node's signed proposal to move the ledger to NewVersion.
// Nonce is bumped every time the local node re-signs its own proposal;
// receivers keep only the highest-nonce proposal per validator, so a
// replayed older proposal can never displace a newer one.
type Proposal struct {
	Validator  types.Address
	NewVersion uint64
	Nonce      uint64
	Sig        []byte
}

func (p *Proposal) canonicalBytes() []byte {
	b := make([]byte, 0, 32)
	b = append(b, p.Validator.Bytes()...)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], p.NewVersion)
	b = append(b, tmp[:]...)
	binary.BigEndian.PutUint64(tmp[:], p.Nonce)
	b = append(b, tmp[:]...)
	return b
}

// Sign attaches a detached, pubkey-recoverable signature, mirroring the
// envelope signing scheme in internal/cerera/message: r||s at fixed
// width followed by the uncompressed public point, re-encoded here so
// the verifier's offset math never depends on stripped zero bytes.
func (p *Proposal) Sign(priv *ecdh.PrivateKey) error {
	sig, err := types.Sign(p.canonicalBytes(), priv)
	if err != nil {
		return fmt.Errorf("sign proposal: %w", err)
	}
	byteLen := (elliptic.P256().Params().BitSize + 7) / 8
	if len(sig) < 2*byteLen {
		return fmt.Errorf("sign proposal: short signature (%d bytes)", len(sig))
	}
	point := priv.PublicKey().Bytes()
	p.Sig = append(sig[:2*byteLen:2*byteLen], point[1:]...)
	return nil
}

// Verify checks the attached signature recovers to p.Validator.
func (p *Proposal) Verify() bool {
	addr, ok := recoverAddress(p.canonicalBytes(), p.Sig)
	return ok && addr == p.Validator
}

func recoverAddress(msg, sig []byte) (types.Address, bool) {
	var zero types.Address
	curve := elliptic.P256()
	byteLen := (curve.Params().BitSize + 7) / 8
	if len(sig) < 2*byteLen {
		return zero, false
	}
	r := new(big.Int).SetBytes(sig[:byteLen])
	s := new(big.Int).SetBytes(sig[byteLen : 2*byteLen])
	pointBytes := sig[2*byteLen:]
	if len(pointBytes) != 2*byteLen {
		return zero, false
	}
	x := new(big.Int).SetBytes(pointBytes[:byteLen])
	y := new(big.Int).SetBytes(pointBytes[byteLen:])

	pub := &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
	digest := blake2b.Sum256(msg)
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return zero, false
	}
	uncompressed := append([]byte{0x04}, pointBytes...)
	ecdhPub, err := ecdh.P256().NewPublicKey(uncompressed)
	if err != nil {
		return zero, false
	}
	return types.PubkeyToAddress(*ecdhPub), true
}

// Transport is the minimal gossip contract the manager needs.
type Transport interface {
	Broadcast(topic string, payload []byte) error
}

// Codec marshals/unmarshals Proposal for the wire.
type Codec interface {
	Encode(*Proposal) ([]byte, error)
	Decode([]byte) (*Proposal, error)
}

type received struct {
	proposal *Proposal
	at       time.Time
}

// Manager tracks this node's own upgrade proposal plus every other
// validator's most recently seen one, and answers GetValid queries for
// the glue driver composing a new consensus value.
type Manager struct {
	mu sync.Mutex

	self       types.Address
	priv       *ecdh.PrivateKey
	validators []types.Address

	local     *Proposal // nil when no local upgrade is desired
	selfNonce uint64
	byAddr    map[types.Address]received

	transport Transport
	codec     Codec
	topic     string

	lastBroadcast time.Time
}

func NewManager(self types.Address, priv *ecdh.PrivateKey, validators []types.Address, transport Transport, codec Codec, topic string) *Manager {
	return &Manager{
		self:       self,
		priv:       priv,
		validators: append([]types.Address(nil), validators...),
		byAddr:     make(map[types.Address]received),
		transport:  transport,
		codec:      codec,
		topic:      topic,
	}
}

// ProposeVersion sets (or clears, with 0) the locally desired next ledger
// version. The change takes effect on the next OnTimer broadcast.
func (m *Manager) ProposeVersion(version uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if version == 0 {
		m.local = nil
		return
	}
	m.selfNonce++
	p := &Proposal{Validator: m.self, NewVersion: version, Nonce: m.selfNonce}
	if err := p.Sign(m.priv); err != nil {
		ulogger.Errorw("sign local proposal", "err", err)
		return
	}
	m.local = p
	m.byAddr[m.self] = received{proposal: p, at: time.Now()}
}

// Recv ingests a proposal received over the gossip transport, keeping
// only the newest (by Nonce) per validator and discarding unsigned or
// non-validator proposals.
func (m *Manager) Recv(p *Proposal) error {
	if !p.Verify() {
		return fmt.Errorf("upgrade: proposal signature does not verify")
	}
	if !isValidator(m.validatorsSnapshot(), p.Validator) {
		return fmt.Errorf("upgrade: proposer %s is not a validator", p.Validator)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.byAddr[p.Validator]; ok && prev.proposal.Nonce >= p.Nonce {
		return nil
	}
	m.byAddr[p.Validator] = received{proposal: p, at: time.Now()}
	return nil
}

func (m *Manager) validatorsSnapshot() []types.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Address(nil), m.validators...)
}

// UpdateValidators adopts a new validator set, dropping any tracked
// proposal from a validator no longer in it.
func (m *Manager) UpdateValidators(set []types.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validators = append([]types.Address(nil), set...)
	for addr := range m.byAddr {
		if !isValidator(m.validators, addr) {
			delete(m.byAddr, addr)
		}
	}
}

// OnTimer re-broadcasts the local proposal (if any) every 30s and prunes
// proposals not refreshed within the last 300s.
func (m *Manager) OnTimer(now time.Time) {
	m.mu.Lock()
	local := m.local
	due := now.Sub(m.lastBroadcast) >= broadcastInterval
	if due {
		m.lastBroadcast = now
	}
	for addr, r := range m.byAddr {
		if addr != m.self && now.Sub(r.at) > pruneAfter {
			delete(m.byAddr, addr)
		}
	}
	m.mu.Unlock()

	if local == nil || !due {
		return
	}
	payload, err := m.codec.Encode(local)
	if err != nil {
		ulogger.Errorw("encode local proposal", "err", err)
		return
	}
	if err := m.transport.Broadcast(m.topic, payload); err != nil {
		ulogger.Warnw("broadcast proposal", "err", err)
	}
}

// GetValid returns the highest version V for which at least minCount
// distinct validators have proposed V, or (0, false) if none qualifies.
func (m *Manager) GetValid(minCount int) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[uint64]int)
	for _, r := range m.byAddr {
		counts[r.proposal.NewVersion]++
	}
	best, ok := uint64(0), false
	for version, count := range counts {
		if count >= minCount && (!ok || version > best) {
			best, ok = version, true
		}
	}
	return best, ok
}

// LocalProposal returns this node's own current proposal, or nil if it
// has none, so the glue driver can embed an already-signed proposal in
// a value it is about to propose.
func (m *Manager) LocalProposal() *Proposal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local
}

func isValidator(set []types.Address, addr types.Address) bool {
	for _, a := range set {
		if a == addr {
			return true
		}
	}
	return false
}
