package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

// MinSecretLength is the shortest accepted HMAC key in bytes.
const MinSecretLength = 32

var (
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrExpired          = errors.New("token is expired")
	ErrMalformed        = errors.New("token is malformed")
	ErrWrongType        = errors.New("token type mismatch")
	ErrWeakSecret       = errors.New("signing secret is too short")
	ErrSecretReuse      = errors.New("signing secrets must be distinct")
)

// KeyKind selects the signing material a token is checked against.
type KeyKind string

const (
	KeyAccess  KeyKind = "access"
	KeyRefresh KeyKind = "refresh"
	KeyPurpose KeyKind = "purpose"
)

type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

func (c *Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

type Config struct {
	AccessSecret  string
	RefreshSecret string
	PurposeSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Now           func() time.Time
}

type Codec struct {
	keys       map[KeyKind][]byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewCodec(cfg Config) (*Codec, error) {
	secrets := []struct {
		kind  KeyKind
		value string
	}{
		{KeyAccess, cfg.AccessSecret},
		{KeyRefresh, cfg.RefreshSecret},
		{KeyPurpose, cfg.PurposeSecret},
	}

	keys := make(map[KeyKind][]byte, len(secrets))
	seen := make(map[string]KeyKind, len(secrets))
	for _, secret := range secrets {
		if len(secret.value) < MinSecretLength {
			return nil, fmt.Errorf("%s secret: %w (min %d bytes)", secret.kind, ErrWeakSecret, MinSecretLength)
		}
		if other, dup := seen[secret.value]; dup {
			return nil, fmt.Errorf("%s and %s: %w", other, secret.kind, ErrSecretReuse)
		}
		seen[secret.value] = secret.kind
		keys[secret.kind] = []byte(secret.value)
	}

	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{
		keys:       keys,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
	}, nil
}

func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

func (c *Codec) SignAccess(userID string, email string) (string, time.Time, error) {
	return c.sign(KeyAccess, string(KeyAccess), userID, email, c.accessTTL)
}

func (c *Codec) SignRefresh(userID string, email string) (string, time.Time, error) {
	return c.sign(KeyRefresh, string(KeyRefresh), userID, email, c.refreshTTL)
}

// SignPurpose mints a single-use token; the caller is responsible for ledgering it.
func (c *Codec) SignPurpose(kind model.TokenKind, userID string, email string, ttl time.Duration) (string, time.Time, error) {
	if !kind.Valid() {
		return "", time.Time{}, fmt.Errorf("sign purpose token: unknown kind %q", kind)
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("sign purpose token: ttl must be positive")
	}
	return c.sign(KeyPurpose, string(kind), userID, email, ttl)
}

// Verify checks signature, expiry and typ against keyKind. Purpose tokens go
// through VerifyPurpose so the kind is always checked.
func (c *Codec) Verify(tokenString string, keyKind KeyKind) (*Claims, error) {
	if keyKind == KeyPurpose {
		return nil, fmt.Errorf("verify: %w", ErrWrongType)
	}
	return c.verify(tokenString, keyKind, string(keyKind))
}

func (c *Codec) VerifyPurpose(tokenString string, kind model.TokenKind) (*Claims, error) {
	return c.verify(tokenString, KeyPurpose, string(kind))
}

func (c *Codec) sign(keyKind KeyKind, typ string, userID string, email string, ttl time.Duration) (string, time.Time, error) {
	now := c.now().UTC()
	expiresAt := now.Add(ttl)

	claims := Claims{
		UserID: userID,
		Email:  email,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.keys[keyKind])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	// exp has second precision on the wire.
	return signed, claims.Expiry(), nil
}

func (c *Codec) verify(tokenString string, keyKind KeyKind, expectedType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(*jwt.Token) (any, error) { return c.keys[keyKind], nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if !parsed.Valid {
		return nil, ErrMalformed
	}

	if claims.Type != expectedType {
		return nil, ErrWrongType
	}
	if claims.UserID == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	return claims, nil
}
