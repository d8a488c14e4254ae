// Package message implements the PBFT consensus envelope: a typed, signed
// value object carried over the gossip transport and exchanged between
// validators.
package message

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/cerera/internal/cerera/cerr"
	"github.com/cerera/internal/cerera/common"
	"github.com/cerera/internal/cerera/logger"
	"github.com/cerera/internal/cerera/types"
	"golang.org/x/crypto/blake2b"
)

var mlogger = logger.Named("message")

// Type tags the payload carried by an Envelope.
type Type uint8

const (
	PrePrepare Type = iota
	Prepare
	Commit
	ViewChange
	ViewChangeWithRawValue
	NewView
)

func (t Type) String() string {
	switch t {
	case PrePrepare:
		return "PrePrepare"
	case Prepare:
		return "Prepare"
	case Commit:
		return "Commit"
	case ViewChange:
		return "ViewChange"
	case ViewChangeWithRawValue:
		return "ViewChangeWithRawValue"
	case NewView:
		return "NewView"
	default:
		return "Unknown"
	}
}

// PreparedSet bundles a PrePrepare with the Prepare envelopes that drove it
// into Prepared at some correct node.
type PreparedSet struct {
	PrePrepare *Envelope
	Prepares   []*Envelope
}

// Envelope is the tagged PBFT message union.
// Variants carry their payload directly rather than via optional fields:
// Value is populated for PrePrepare, PreparedSet for
// ViewChangeWithRawValue/NewView, Bundle for NewView.
type Envelope struct {
	Type      Type
	View      uint64
	Seq       uint64 // 0 for ViewChange/NewView, which carry no seq directly
	ReplicaID int
	Digest    common.Hash // value digest, present on PrePrepare/Prepare/Commit

	Value    []byte       // opaque consensus-value bytes, PrePrepare only
	Prepared *PreparedSet // ViewChangeWithRawValue and NewView
	Bundle   []*Envelope  // NewView: the collected ViewChange envelopes

	Round uint64 // retransmission counter, not part of the signed digest

	Sig []byte // detached signature + recoverable pubkey, see Sign
}

// canonicalBytes returns the deterministic encoding signed over. It
// excludes the signature and the retransmission round counter.
func (e *Envelope) canonicalBytes() []byte {
	b := make([]byte, 0, 64)
	b = append(b, byte(e.Type))
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], e.View)
	b = append(b, tmp[:]...)
	binary.BigEndian.PutUint64(tmp[:], e.Seq)
	b = append(b, tmp[:]...)
	binary.BigEndian.PutUint64(tmp[:], uint64(e.ReplicaID))
	b = append(b, tmp[:]...)
	b = append(b, e.Digest.Bytes()...)
	b = append(b, e.Value...)
	if e.Prepared != nil {
		if e.Prepared.PrePrepare != nil {
			b = append(b, e.Prepared.PrePrepare.canonicalBytes()...)
		}
		for _, p := range e.Prepared.Prepares {
			b = append(b, p.canonicalBytes()...)
		}
	}
	for _, v := range e.Bundle {
		b = append(b, v.canonicalBytes()...)
	}
	return b
}

// Sign computes the canonical encoding and attaches a detached signature
// from which the signer's address can later be recovered. The r||s part
// comes from types.Sign; the public-key backup is re-encoded here at
// fixed width (types.Sign strips leading zero bytes from X/Y, which
// would break the verifier's offset math roughly one signature in 128).
func (e *Envelope) Sign(priv *ecdh.PrivateKey) error {
	sig, err := types.Sign(e.canonicalBytes(), priv)
	if err != nil {
		return fmt.Errorf("sign envelope: %w", err)
	}
	byteLen := (elliptic.P256().Params().BitSize + 7) / 8
	if len(sig) < 2*byteLen {
		return fmt.Errorf("sign envelope: short signature (%d bytes)", len(sig))
	}
	point := priv.PublicKey().Bytes() // uncompressed SEC1: 0x04 || X || Y, fixed width
	e.Sig = append(sig[:2*byteLen:2*byteLen], point[1:]...)
	return nil
}

// Fingerprint is the dedup key used by the gossip layer: the hash of the
// canonical bytes including the attached signature.
func (e *Envelope) Fingerprint() common.Hash {
	h := types.INRISeqHash(e.canonicalBytes(), e.Sig)
	return h
}

// Sender recovers the signer's address from the embedded signature. It
// returns the zero address if no signature is attached.
func (e *Envelope) Sender() (types.Address, bool) {
	return recoverAddress(e.canonicalBytes(), e.Sig)
}

// EmbeddedValues returns the consensus-value payloads carried directly by
// this envelope: empty for Prepare/Commit, one for PrePrepare, zero or one
// for ViewChangeWithRawValue/NewView (the preserved prepared value, if any).
func (e *Envelope) EmbeddedValues() [][]byte {
	switch e.Type {
	case PrePrepare:
		if e.Value == nil {
			return nil
		}
		return [][]byte{e.Value}
	case ViewChangeWithRawValue, NewView:
		if e.Prepared != nil && e.Prepared.PrePrepare != nil {
			return [][]byte{e.Prepared.PrePrepare.Value}
		}
		return nil
	default:
		return nil
	}
}

// Check validates the envelope: the signer must be a current
// validator, the embedded replica id must match the signer's index, the
// signature must verify, and for ViewChangeWithRawValue the embedded
// PreparedSet (if any) must be internally consistent.
func (e *Envelope) Check(validators []types.Address, q int) error {
	addr, ok := recoverAddress(e.canonicalBytes(), e.Sig)
	if !ok {
		return cerr.New("envelope.Check", cerr.InvalidSignature, nil)
	}
	idx := indexOf(validators, addr)
	if idx < 0 {
		return cerr.New("envelope.Check", cerr.NotValidator, fmt.Errorf("signer %s", addr))
	}
	if idx != e.ReplicaID {
		return cerr.New("envelope.Check", cerr.WrongReplica, fmt.Errorf("replica_id %d, signer index %d", e.ReplicaID, idx))
	}
	if e.Type == ViewChangeWithRawValue && e.Prepared != nil {
		if err := checkPreparedSet(e.Prepared, q); err != nil {
			return cerr.New("envelope.Check", cerr.InvalidParameter, err)
		}
	}
	return nil
}

func checkPreparedSet(ps *PreparedSet, q int) error {
	if ps.PrePrepare == nil {
		if len(ps.Prepares) != 0 {
			return fmt.Errorf("prepared set: prepares without a pre-prepare")
		}
		return nil
	}
	view, seq, digest := ps.PrePrepare.View, ps.PrePrepare.Seq, ps.PrePrepare.Digest
	seen := map[int]bool{}
	for _, p := range ps.Prepares {
		if p.View != view || p.Seq != seq || p.Digest != digest {
			return fmt.Errorf("prepared set: prepare does not match pre-prepare's (view,seq,digest)")
		}
		seen[p.ReplicaID] = true
	}
	if len(seen) < q-1 {
		return fmt.Errorf("prepared set: only %d distinct prepares, need >= %d", len(seen), q-1)
	}
	return nil
}

func indexOf(set []types.Address, addr types.Address) int {
	for i, a := range set {
		if a == addr {
			return i
		}
	}
	return -1
}

// recoverAddress verifies sig over msg and, on success, derives the
// signer's address from the public key backup embedded in sig (see
// types.Sign: signature is r||s followed by the raw X||Y point).
func recoverAddress(msg, sig []byte) (types.Address, bool) {
	var zero types.Address
	if len(sig) == 0 {
		return zero, false
	}
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
	addr := types.PubkeyToAddress(*ecdhPub)
	mlogger.Debugw("recovered envelope signer", "addr", addr)
	return addr, true
}
