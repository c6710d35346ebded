// Package ids defines the identifier and key types shared across the
// broker/client core: content digests, Ed25519 key material, and the
// type aliases spec.md layers on top of them (BlockId, OverlayId, ...).
package ids

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
)

// Digest is a 32-byte BLAKE3 hash.
type Digest [32]byte

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the all-zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Empty is the all-zero digest, used as a sentinel (e.g. genesis parent).
var Empty = Digest{}

// PubKey is an Ed25519 public key.
type PubKey [ed25519.PublicKeySize]byte

func (k PubKey) String() string { return hex.EncodeToString(k[:]) }

// Bytes returns k as a stdlib ed25519.PublicKey.
func (k PubKey) Bytes() ed25519.PublicKey { return ed25519.PublicKey(k[:]) }

// PrivKey is an Ed25519 private key.
type PrivKey [ed25519.PrivateKeySize]byte

// Bytes returns k as a stdlib ed25519.PrivateKey.
func (k PrivKey) Bytes() ed25519.PrivateKey { return ed25519.PrivateKey(k[:]) }

// Public returns the public key half of k.
func (k PrivKey) Public() PubKey {
	var pub PubKey
	copy(pub[:], k[ed25519.PublicKeySize:])
	return pub
}

// Sig is an Ed25519 signature.
type Sig [ed25519.SignatureSize]byte

// SymKey is a 32-byte ChaCha20 key.
type SymKey [32]byte

// BlockId identifies a Block: the BLAKE3 hash of its canonical encoding.
type BlockId = Digest

// ObjectId identifies an Object by its root block's id.
type ObjectId = BlockId

// OverlayId identifies a per-repository membership group. For a public
// overlay it is BLAKE3(repo_pubkey); for a private overlay it is the
// BLAKE3 keyed-hash of repo_pubkey under a key derived from repo_secret.
type OverlayId = Digest

// TopicId is the public key of a branch/topic keypair.
type TopicId = PubKey

// PeerId is the public key of a broker or node.
type PeerId = PubKey

// UserId is the public key identifying a user account.
type UserId = PubKey

// ClientId is the public key identifying one of a user's authorised clients.
type ClientId = PubKey

// ErrInvalidKeyLength is returned when decoding fixed-size key material
// from a byte slice of the wrong length.
var ErrInvalidKeyLength = errors.New("ids: invalid key length")

// PubKeyFromBytes copies b into a PubKey, failing if len(b) is wrong.
func PubKeyFromBytes(b []byte) (PubKey, error) {
	var k PubKey
	if len(b) != len(k) {
		return k, ErrInvalidKeyLength
	}
	copy(k[:], b)
	return k, nil
}

// DigestFromBytes copies b into a Digest, failing if len(b) is wrong.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != len(d) {
		return d, ErrInvalidKeyLength
	}
	copy(d[:], b)
	return d, nil
}
