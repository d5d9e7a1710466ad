// Package identity manages the ed25519 keys of lottery participants. The hex
// encoded public key of a key is the participant's lottery identity.
package identity

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/luca-patrignani/mental-lottery/domain/lottery"
)

// Key is a participant's signing key.
type Key struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	id   lottery.Identity
}

func NewKey(priv ed25519.PrivateKey) *Key {
	pub := priv.Public().(ed25519.PublicKey)
	return &Key{
		priv: priv,
		pub:  pub,
		id:   lottery.Identity(hex.EncodeToString(pub)),
	}
}

// Generate creates a fresh key.
func Generate() (*Key, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return NewKey(priv), nil
}

// ID returns the lottery identity of the key.
func (k *Key) ID() lottery.Identity {
	return k.id
}

func (k *Key) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

func (k *Key) PublicKey() ed25519.PublicKey {
	return k.pub
}

// PublicKey decodes the ed25519 public key behind an identity.
func PublicKey(id lottery.Identity) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lottery.ErrInvalidIdentity, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %d byte public key", lottery.ErrInvalidIdentity, len(b))
	}
	return ed25519.PublicKey(b), nil
}

// Verify reports whether sig is a valid signature of message by id.
func Verify(id lottery.Identity, message, sig []byte) (bool, error) {
	pub, err := PublicKey(id)
	if err != nil {
		return false, err
	}
	if len(sig) == 0 {
		return false, errors.New("missing signature")
	}
	return ed25519.Verify(pub, message, sig), nil
}

// LoadOrCreate loads the PEM encoded key at path, generating and saving a
// new one if the file is missing or empty. Key files are written with 0600
// permissions.
func LoadOrCreate(path string) (*Key, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() == 0) {
		k, err := Generate()
		if err != nil {
			return nil, err
		}
		if err := Save(k, path); err != nil {
			return nil, err
		}
		return k, nil
	}
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Load reads a PEM encoded PKCS8 ed25519 key.
func Load(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block from key file")
	}
	generic, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	priv, ok := generic.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("key is not an ed25519 private key")
	}
	return NewKey(priv), nil
}

// Save writes k to path in PEM encoded PKCS8 form.
func Save(k *Key, path string) error {
	der, err := x509.MarshalPKCS8PrivateKey(k.priv)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	return pem.Encode(file, &pem.Block{Type: "PRIVATE KEY", Bytes: der})
}
