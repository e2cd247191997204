// Package keyring is an ed25519 implementation of the key-management port
// for nodes that hold peer public keys locally. Key distribution is outside
// this service; the ring only looks up and verifies.
package keyring

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type Keyring struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

func New() *Keyring {
	return &Keyring{keys: make(map[string]ed25519.PublicKey)}
}

// LoadFile builds a keyring from a JSON file mapping peer id to
// base64-encoded ed25519 public key.
func LoadFile(path string) (*Keyring, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("keyring %s: %w", path, err)
	}
	k := New()
	for peerID, encoded := range entries {
		pub, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("keyring %s: peer %s: %w", path, peerID, err)
		}
		if len(pub) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("keyring %s: peer %s: bad key size %d", path, peerID, len(pub))
		}
		k.Register(peerID, ed25519.PublicKey(pub))
	}
	return k, nil
}

func (k *Keyring) Register(peerID string, pub ed25519.PublicKey) {
	k.mu.Lock()
	k.keys[peerID] = pub
	k.mu.Unlock()
}

// Verify implements ports.KeyManager. Unknown peers never verify.
func (k *Keyring) Verify(peerID string, payload, signature []byte) bool {
	k.mu.RLock()
	pub, ok := k.keys[peerID]
	k.mu.RUnlock()
	if !ok || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, payload, signature)
}

// Signer holds an originator's private key. Used by peers issuing verdicts
// and payment messages, and by tests.
type Signer struct {
	ID   string
	priv ed25519.PrivateKey
}

func NewSigner(id string) (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Signer{ID: id, priv: priv}, nil
}

func (s *Signer) Sign(payload []byte) []byte {
	return ed25519.Sign(s.priv, payload)
}

func (s *Signer) Public() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}
