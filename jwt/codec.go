package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/cyclecore/keys"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenMalformed is returned for structural corruption or invalid claims.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenSignature is returned when the signature does not verify, the key generation is
	// unknown or the algorithm does not match the generation.
	ErrTokenSignature = errors.New("token signature invalid")
	// ErrTokenExpired is returned when now >= exp (minus the configured leeway).
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenKindMismatch is returned when a refresh token is presented where an access token is
	// expected, or vice versa.
	ErrTokenKindMismatch = errors.New("token kind mismatch")
)

const maxLeeway = 2 * time.Minute

// Kind is the closed set of token kinds.
type Kind string

const (
	// KindAccess authorizes individual requests.
	KindAccess Kind = "access"
	// KindRefresh is exchanged exactly once for a new token pair.
	KindRefresh Kind = "refresh"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Claims is the payload carried by every token. sub, jti, iat and exp live in the embedded
// registered claims.
type Claims struct {
	Kind  Kind     `json:"kind"`
	Scope []string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// NewClaims builds claims of the given kind valid for ttl from issuedAt. exp is truncated to
// whole seconds, the resolution of the wire format.
func NewClaims(kind Kind, subject, id string, issuedAt time.Time, ttl time.Duration, scope ...string) Claims {
	return Claims{
		Kind:  kind,
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
}

// Config tunes claim validation.
type Config struct {
	Issuer   string
	Audience string
	// Leeway tolerates clock skew on exp/iat. Zero means a token is expired at exactly exp.
	Leeway time.Duration
	// Now is the clock used for expiry checks. Defaults to time.Now.
	Now func() time.Time
}

// Codec turns [Claims] into signed token strings and back.
type Codec struct {
	cfg       Config
	keys      *keys.Provider
	parser    *jwt.Parser
	validator *jwt.Validator
}

// NewCodec builds a codec over the given key provider.
func NewCodec(cfg Config, provider *keys.Provider) (*Codec, error) {
	if provider == nil {
		return nil, errors.New("nil key provider")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Codec{
		cfg:       cfg,
		keys:      provider,
		parser:    jwt.NewParser(),
		validator: jwt.NewValidator(opts...),
	}, nil
}

// Encode signs claims with the active key generation.
func (c *Codec) Encode(claims Claims) (string, error) {
	if !claims.Kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrTokenMalformed, claims.Kind)
	}
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return "", fmt.Errorf("%w: sub, jti and exp are required", ErrTokenMalformed)
	}
	if claims.Issuer == "" {
		claims.Issuer = c.cfg.Issuer
	}
	if c.cfg.Audience != "" && len(claims.Audience) == 0 {
		claims.Audience = jwt.ClaimStrings{c.cfg.Audience}
	}

	pair := c.keys.Active()
	token := jwt.NewWithClaims(pair.Method(), claims)
	token.Header["kid"] = pair.ID()

	signingString, err := token.SigningString()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	sig, err := pair.Sign([]byte(signingString))
	if err != nil {
		return "", err
	}

	return signingString + "." + token.EncodeSegment(sig), nil
}

// Decode verifies tokenStr and returns its claims when it is a well-formed, correctly signed,
// unexpired token of the expected kind.
func (c *Codec) Decode(tokenStr string, expected Kind) (*Claims, error) {
	claims := &Claims{}
	token, parts, err := c.parser.ParseUnverified(tokenStr, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	kid, _ := token.Header["kid"].(string)
	pair, ok := c.keys.Lookup(kid)
	if !ok {
		return nil, fmt.Errorf("%w: unknown key generation %q", ErrTokenSignature, kid)
	}
	if token.Method == nil || token.Method.Alg() != pair.Method().Alg() {
		return nil, fmt.Errorf("%w: unexpected signing algorithm", ErrTokenSignature)
	}

	sig, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !pair.Verify([]byte(parts[0]+"."+parts[1]), sig) {
		return nil, ErrTokenSignature
	}

	if err := c.validator.Validate(claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	if !claims.Kind.Valid() || claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: incomplete claims", ErrTokenMalformed)
	}
	if claims.Kind != expected {
		return nil, ErrTokenKindMismatch
	}

	return claims, nil
}
