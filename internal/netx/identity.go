package netx

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// PeerAddr identifies a remote endpoint: a peer ID derived from its
// 32-byte ed25519 public key, plus optional multiaddr routing hints.
// It is immutable once constructed.
type PeerAddr struct {
	ID    peer.ID
	Addrs []ma.Multiaddr
}

// ParsePeerAddr builds a PeerAddr from a hex-encoded 32-byte ed25519
// public key and optional multiaddr strings. Decode and length
// failures are reported here, before any network activity.
func ParsePeerAddr(hexKey string, addrs []string) (PeerAddr, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return PeerAddr{}, fmt.Errorf("invalid peer identity: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return PeerAddr{}, fmt.Errorf("invalid peer identity length: expected %d bytes, got %d",
			ed25519.PublicKeySize, len(raw))
	}
	pub, err := crypto.UnmarshalEd25519PublicKey(raw)
	if err != nil {
		return PeerAddr{}, fmt.Errorf("invalid peer identity: %w", err)
	}
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return PeerAddr{}, fmt.Errorf("invalid peer identity: %w", err)
	}
	maddrs := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		m, err := ma.NewMultiaddr(a)
		if err != nil {
			return PeerAddr{}, fmt.Errorf("invalid routing hint %q: %w", a, err)
		}
		maddrs = append(maddrs, m)
	}
	return PeerAddr{ID: id, Addrs: maddrs}, nil
}

// GenerateIdentity returns a new random ed25519 identity key.
func GenerateIdentity() (crypto.PrivKey, error) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}
	return priv, nil
}

// LoadOrCreateIdentity reads a hex-encoded private key from path. If
// the file does not exist, a new ed25519 key is generated and saved
// there, so the endpoint's identity is stable across restarts.
func LoadOrCreateIdentity(path string) (crypto.PrivKey, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		priv, err := GenerateIdentity()
		if err != nil {
			return nil, err
		}
		marshaled, err := crypto.MarshalPrivateKey(priv)
		if err != nil {
			return nil, err
		}
		encoded := make([]byte, hex.EncodedLen(len(marshaled)))
		hex.Encode(encoded, marshaled)
		if err := os.WriteFile(path, encoded, 0600); err != nil {
			return nil, fmt.Errorf("save identity key: %w", err)
		}
		return priv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read identity key: %w", err)
	}
	decoded := make([]byte, hex.DecodedLen(len(data)))
	if _, err := hex.Decode(decoded, data); err != nil {
		return nil, fmt.Errorf("decode identity key: %w", err)
	}
	priv, err := crypto.UnmarshalPrivateKey(decoded)
	if err != nil {
		return nil, fmt.Errorf("unmarshal identity key: %w", err)
	}
	return priv, nil
}

// EncodeIdentity returns the hex form of the 32-byte ed25519 public
// key behind priv. This is the string a client passes to address the
// endpoint.
func EncodeIdentity(priv crypto.PrivKey) (string, error) {
	raw, err := priv.GetPublic().Raw()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
