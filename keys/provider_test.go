package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writePEM(t *testing.T, dir, name, blockType string, der []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeRSA(t *testing.T, dir, prefix string, bits int) (string, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		t.Fatalf("generate rsa: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshal public: %v", err)
	}
	return writePEM(t, dir, prefix+".key", "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(priv)),
		writePEM(t, dir, prefix+".pub", "PUBLIC KEY", pubDER)
}

func TestLoadRSAActiveAndVerifyOnly(t *testing.T) {
	dir := t.TempDir()
	activePriv, _ := writeRSA(t, dir, "k2", 2048)
	_, oldPub := writeRSA(t, dir, "k1", 2048)

	p, err := Load(Config{
		Active:     FileSpec{ID: "k2", Algorithm: AlgRS256, PrivateKeyPath: activePriv},
		VerifyOnly: []FileSpec{{ID: "k1", Algorithm: AlgRS256, PublicKeyPath: oldPub}},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Active().ID() != "k2" {
		t.Fatalf("expected active k2, got %q", p.Active().ID())
	}
	old, ok := p.Lookup("k1")
	if !ok {
		t.Fatal("expected k1 to be registered")
	}
	if old.CanSign() {
		t.Fatal("verify-only generation must not sign")
	}
	if _, err := old.Sign([]byte("x")); !errors.Is(err, ErrKeyMaterial) {
		t.Fatalf("expected ErrKeyMaterial from verify-only sign, got %v", err)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(Config{Active: FileSpec{ID: "k", Algorithm: AlgRS256, PrivateKeyPath: filepath.Join(t.TempDir(), "missing.pem")}})
	if !errors.Is(err, ErrKeyMaterial) {
		t.Fatalf("expected ErrKeyMaterial, got %v", err)
	}
}

func TestLoadRejectsMalformedPEM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.pem")
	if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(Config{Active: FileSpec{ID: "k", Algorithm: AlgRS256, PrivateKeyPath: path}})
	if !errors.Is(err, ErrKeyMaterial) {
		t.Fatalf("expected ErrKeyMaterial, got %v", err)
	}
}

func TestLoadRejectsShortRSAKey(t *testing.T) {
	dir := t.TempDir()
	priv, _ := writeRSA(t, dir, "weak", 1024)
	_, err := Load(Config{Active: FileSpec{ID: "weak", Algorithm: AlgRS256, PrivateKeyPath: priv}})
	if !errors.Is(err, ErrKeyMaterial) {
		t.Fatalf("expected ErrKeyMaterial for 1024-bit key, got %v", err)
	}
}

func TestLoadEd25519(t *testing.T) {
	dir := t.TempDir()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := writePEM(t, dir, "ed.key", "PRIVATE KEY", der)

	p, err := Load(Config{Active: FileSpec{ID: "ed", Algorithm: AlgEdDSA, PrivateKeyPath: path}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Active().Algorithm() != AlgEdDSA {
		t.Fatalf("unexpected algorithm %q", p.Active().Algorithm())
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	for _, gen := range []func() (*KeyPair, error){
		func() (*KeyPair, error) { return GenerateRSA("r", 2048) },
		func() (*KeyPair, error) { return GenerateEd25519("e") },
	} {
		pair, err := gen()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		sig, err := pair.Sign([]byte("payload"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if !pair.Verify([]byte("payload"), sig) {
			t.Fatalf("%s: expected signature to verify", pair.Algorithm())
		}
		if pair.Verify([]byte("payload!"), sig) {
			t.Fatalf("%s: expected tampered payload to fail", pair.Algorithm())
		}
	}
}

func TestNewProviderRejectsDuplicateIDs(t *testing.T) {
	a, err := GenerateEd25519("same")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := GenerateEd25519("same")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewProvider(a, b); !errors.Is(err, ErrKeyMaterial) {
		t.Fatalf("expected duplicate id rejection, got %v", err)
	}
}
