package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrKeyMaterial is returned when key files are missing, malformed or too weak.
// It is fatal at startup: a process that cannot load its keys must refuse to serve.
var ErrKeyMaterial = errors.New("key material error")

// DefaultMinRSABits is the smallest RSA modulus accepted by [Load] and [NewPair].
const DefaultMinRSABits = 2048

// Algorithm identifies the signature scheme of a key generation. Values match the
// JOSE "alg" header so the codec can record them verbatim.
type Algorithm string

const (
	// AlgRS256 is RSASSA-PKCS1-v1_5 with SHA-256.
	AlgRS256 Algorithm = "RS256"
	// AlgEdDSA is Ed25519.
	AlgEdDSA Algorithm = "EdDSA"
)

// KeyPair is one key generation. Verify-only generations carry no private key.
type KeyPair struct {
	id      string
	alg     Algorithm
	method  jwt.SigningMethod
	private crypto.PrivateKey
	public  crypto.PublicKey
}

// ID returns the key generation identifier recorded in the token "kid" header.
func (k *KeyPair) ID() string { return k.id }

// Algorithm returns the signature scheme of this generation.
func (k *KeyPair) Algorithm() Algorithm { return k.alg }

// Method returns the golang-jwt signing method matching [KeyPair.Algorithm].
func (k *KeyPair) Method() jwt.SigningMethod { return k.method }

// CanSign reports whether the pair holds private material.
func (k *KeyPair) CanSign() bool { return k != nil && k.private != nil }

// Sign signs data with the private key.
func (k *KeyPair) Sign(data []byte) ([]byte, error) {
	if !k.CanSign() {
		return nil, fmt.Errorf("%w: generation %q is verify-only", ErrKeyMaterial, k.id)
	}
	sig, err := k.method.Sign(string(data), k.private)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	return sig, nil
}

// Verify reports whether sig is a valid signature of data under this generation.
func (k *KeyPair) Verify(data, sig []byte) bool {
	if k == nil || k.public == nil {
		return false
	}
	return k.method.Verify(string(data), sig, k.public) == nil
}

// NewPair builds a key generation from already-parsed key material. private may be nil for a
// verify-only generation; public may be nil when private is set.
func NewPair(id string, alg Algorithm, private crypto.PrivateKey, public crypto.PublicKey, minRSABits int) (*KeyPair, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty key id", ErrKeyMaterial)
	}
	if minRSABits <= 0 {
		minRSABits = DefaultMinRSABits
	}

	pair := &KeyPair{id: id, alg: alg}

	switch alg {
	case AlgRS256:
		pair.method = jwt.SigningMethodRS256
		if private != nil {
			priv, ok := private.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects an RSA private key", ErrKeyMaterial, alg)
			}
			pair.private = priv
			if public == nil {
				public = &priv.PublicKey
			}
		}
		pub, ok := public.(*rsa.PublicKey)
		if !ok || pub == nil {
			return nil, fmt.Errorf("%w: %s expects an RSA public key", ErrKeyMaterial, alg)
		}
		if bits := pub.N.BitLen(); bits < minRSABits {
			return nil, fmt.Errorf("%w: rsa key %q is %d bits, minimum is %d", ErrKeyMaterial, id, bits, minRSABits)
		}
		pair.public = pub
	case AlgEdDSA:
		pair.method = jwt.SigningMethodEdDSA
		if private != nil {
			priv, ok := private.(ed25519.PrivateKey)
			if !ok || len(priv) != ed25519.PrivateKeySize {
				return nil, fmt.Errorf("%w: %s expects an ed25519 private key", ErrKeyMaterial, alg)
			}
			pair.private = priv
			if public == nil {
				public = priv.Public()
			}
		}
		pub, ok := public.(ed25519.PublicKey)
		if !ok || len(pub) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: %s expects an ed25519 public key", ErrKeyMaterial, alg)
		}
		pair.public = pub
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrKeyMaterial, alg)
	}

	return pair, nil
}

// GenerateRSA creates a fresh RSA generation. Intended for tests and key tooling.
func GenerateRSA(id string, bits int) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	return NewPair(id, AlgRS256, priv, nil, DefaultMinRSABits)
}

// GenerateEd25519 creates a fresh Ed25519 generation.
func GenerateEd25519(id string) (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	return NewPair(id, AlgEdDSA, priv, nil, 0)
}

// Provider holds the active signing generation and every generation accepted for verification.
type Provider struct {
	active *KeyPair
	byID   map[string]*KeyPair
}

// NewProvider assembles a provider from in-memory generations. The active pair must be able to sign.
func NewProvider(active *KeyPair, verifyOnly ...*KeyPair) (*Provider, error) {
	if !active.CanSign() {
		return nil, fmt.Errorf("%w: active generation requires a private key", ErrKeyMaterial)
	}

	p := &Provider{
		active: active,
		byID:   make(map[string]*KeyPair, len(verifyOnly)+1),
	}
	p.byID[active.id] = active
	for _, pair := range verifyOnly {
		if pair == nil {
			continue
		}
		if _, dup := p.byID[pair.id]; dup {
			return nil, fmt.Errorf("%w: duplicate key id %q", ErrKeyMaterial, pair.id)
		}
		p.byID[pair.id] = pair
	}

	return p, nil
}

// Active returns the generation used for signing new tokens.
func (p *Provider) Active() *KeyPair { return p.active }

// Lookup returns the generation named by kid.
func (p *Provider) Lookup(kid string) (*KeyPair, bool) {
	pair, ok := p.byID[kid]
	return pair, ok
}

// FileSpec points at the PEM files of one generation.
type FileSpec struct {
	ID             string
	Algorithm      Algorithm
	PrivateKeyPath string
	PublicKeyPath  string
}

// Config describes which PEM files [Load] reads.
type Config struct {
	Active     FileSpec
	VerifyOnly []FileSpec
	MinRSABits int
}

// Load reads the configured PEM files. Any failure is reported as [ErrKeyMaterial].
func Load(cfg Config) (*Provider, error) {
	if cfg.Active.PrivateKeyPath == "" {
		return nil, fmt.Errorf("%w: active generation requires a private key path", ErrKeyMaterial)
	}

	active, err := loadSpec(cfg.Active, cfg.MinRSABits)
	if err != nil {
		return nil, err
	}

	verifyOnly := make([]*KeyPair, 0, len(cfg.VerifyOnly))
	for _, spec := range cfg.VerifyOnly {
		if spec.PublicKeyPath == "" {
			return nil, fmt.Errorf("%w: verify-only generation %q requires a public key path", ErrKeyMaterial, spec.ID)
		}
		spec.PrivateKeyPath = ""
		pair, err := loadSpec(spec, cfg.MinRSABits)
		if err != nil {
			return nil, err
		}
		verifyOnly = append(verifyOnly, pair)
	}

	return NewProvider(active, verifyOnly...)
}

func loadSpec(spec FileSpec, minRSABits int) (*KeyPair, error) {
	var (
		private crypto.PrivateKey
		public  crypto.PublicKey
	)

	if spec.PrivateKeyPath != "" {
		raw, err := readPEM(spec.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		private, err = parsePrivate(spec.Algorithm, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyMaterial, spec.PrivateKeyPath, err)
		}
	}
	if spec.PublicKeyPath != "" {
		raw, err := readPEM(spec.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		public, err = parsePublic(spec.Algorithm, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyMaterial, spec.PublicKeyPath, err)
		}
	}

	return NewPair(spec.ID, spec.Algorithm, private, public, minRSABits)
}

func readPEM(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	return raw, nil
}

func parsePrivate(alg Algorithm, raw []byte) (crypto.PrivateKey, error) {
	switch alg {
	case AlgRS256:
		return jwt.ParseRSAPrivateKeyFromPEM(raw)
	case AlgEdDSA:
		return jwt.ParseEdPrivateKeyFromPEM(raw)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
}

func parsePublic(alg Algorithm, raw []byte) (crypto.PublicKey, error) {
	switch alg {
	case AlgRS256:
		return jwt.ParseRSAPublicKeyFromPEM(raw)
	case AlgEdDSA:
		return jwt.ParseEdPublicKeyFromPEM(raw)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
}
