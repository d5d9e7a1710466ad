package identity

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/luca-patrignani/mental-lottery/domain/lottery"
)

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "alice.key")
	k, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %o, want 600", info.Mode().Perm())
	}

	again, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if again.ID() != k.ID() {
		t.Fatalf("reloaded id %s, want %s", again.ID(), k.ID())
	}
}

func TestLoadOrCreateEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.key")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	k, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("create over empty file: %v", err)
	}
	if k.ID() == "" {
		t.Fatal("empty identity")
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.key")
	if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("loaded an invalid key file")
	}
}

func TestSignVerify(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("enter round 1")
	sig := k.Sign(msg)

	ok, err := Verify(k.ID(), msg, sig)
	if err != nil || !ok {
		t.Fatalf("valid signature rejected: %v", err)
	}
	ok, err = Verify(k.ID(), []byte("enter round 2"), sig)
	if err != nil || ok {
		t.Fatalf("signature accepted for another message: (%v, %v)", ok, err)
	}
	if _, err := Verify(k.ID(), msg, nil); err == nil {
		t.Fatal("missing signature accepted")
	}
}

func TestPublicKeyInvalid(t *testing.T) {
	for _, id := range []lottery.Identity{"", "zz", "abcd"} {
		if _, err := PublicKey(id); !errors.Is(err, lottery.ErrInvalidIdentity) {
			t.Errorf("PublicKey(%q) = %v, want ErrInvalidIdentity", id, err)
		}
	}
}
