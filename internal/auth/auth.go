// Package auth verifies bearer tokens presented to the gateway and resolves
// the delegated access tokens some upstreams need on behalf of a caller.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	blacklistPrefix = "blacklist:"
	facebookPrefix  = "facebook:"
	pipeboardPrefix = "pipeboard:"

	opTimeout = 2 * time.Second
)

// Lifetimes of stored delegated tokens.
const (
	FacebookTokenTTL  = time.Hour
	PipeboardTokenTTL = 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token revoked")
)

// Provider identifies where a delegated token came from.
type Provider string

const (
	ProviderFacebook  Provider = "facebook"
	ProviderPipeboard Provider = "pipeboard"
)

// Claims are carried in gateway bearer tokens.
type Claims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email,omitempty"`
	Provider string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// DefaultRoutes maps upstream names to the providers whose delegated tokens
// they accept, in lookup order.
var DefaultRoutes = map[string][]Provider{
	"meta-ads": {ProviderFacebook, ProviderPipeboard},
}

// Verifier mints, verifies and revokes HS256 bearer tokens. Revocations and
// delegated tokens live in Redis.
type Verifier struct {
	rdb    redis.Cmdable
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	// routes is written only before the verifier is shared.
	routes map[string][]Provider
}

func NewVerifier(rdb redis.Cmdable, secret string, ttl time.Duration, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	routes := make(map[string][]Provider, len(DefaultRoutes))
	for name, providers := range DefaultRoutes {
		routes[name] = slices.Clone(providers)
	}
	return &Verifier{
		rdb:    rdb,
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		routes: routes,
	}
}

// RouteUpstream sets the providers consulted, in order, for upstream's
// delegated tokens. No providers removes the route. It must be called before
// the verifier is used concurrently.
func (v *Verifier) RouteUpstream(upstream string, providers ...Provider) error {
	for _, p := range providers {
		if _, err := providerPrefix(p); err != nil {
			return err
		}
	}
	if len(providers) == 0 {
		delete(v.routes, upstream)
		return nil
	}
	v.routes[upstream] = slices.Clone(providers)
	return nil
}

func providerPrefix(p Provider) (string, error) {
	switch p {
	case ProviderFacebook:
		return facebookPrefix, nil
	case ProviderPipeboard:
		return pipeboardPrefix, nil
	}
	return "", fmt.Errorf("auth: unknown provider %q", p)
}

// Mint issues a token for userID valid for the verifier's TTL.
func (v *Verifier) Mint(userID, email string, provider Provider) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("auth: missing user id")
	}
	now := v.now()
	claims := Claims{
		UserID:   userID,
		Email:    email,
		Provider: string(provider),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and rejects it when the signature, expiry or
// revocation check fails. A blacklist lookup error is treated as a failure.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims, err := v.parse(tokenString)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	n, err := v.rdb.Exists(ctx, blacklistPrefix+tokenString).Result()
	if err != nil {
		return nil, fmt.Errorf("auth: check revocation: %w", err)
	}
	if n > 0 {
		return nil, ErrRevoked
	}
	return claims, nil
}

func (v *Verifier) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	parsed, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || parsed == nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

// Revoke blacklists tokenString until it would have expired anyway.
func (v *Verifier) Revoke(ctx context.Context, tokenString string) error {
	claims, err := v.parse(tokenString)
	if err != nil {
		return err
	}
	ttl := v.ttl
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(v.now())
	}
	if ttl <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := v.rdb.Set(ctx, blacklistPrefix+tokenString, "1", ttl).Err(); err != nil {
		return fmt.Errorf("auth: revoke: %w", err)
	}
	return nil
}

// DelegatedToken returns the caller's delegated token for upstreamName,
// trying the upstream's providers in order (Facebook before Pipeboard for
// meta-ads). It returns "" when the upstream has no route or no token is
// stored. Lookup errors are logged and reported as no token.
func (v *Verifier) DelegatedToken(ctx context.Context, userID, upstreamName string) string {
	providers := v.routes[upstreamName]
	if userID == "" || len(providers) == 0 {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	for _, p := range providers {
		prefix, _ := providerPrefix(p)
		tok, err := v.rdb.Get(ctx, prefix+userID).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			v.logger.Warn("delegated token lookup failed", "user", userID, "upstream", upstreamName, "err", err)
			return ""
		}
		if tok != "" {
			return tok
		}
	}
	return ""
}

// StoreDelegatedToken records a provider token for userID with the provider's
// lifetime.
func (v *Verifier) StoreDelegatedToken(ctx context.Context, userID string, provider Provider, token string) error {
	prefix, err := providerPrefix(provider)
	if err != nil {
		return err
	}
	key, ttl := prefix+userID, FacebookTokenTTL
	if provider == ProviderPipeboard {
		ttl = PipeboardTokenTTL
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := v.rdb.Set(ctx, key, token, ttl).Err(); err != nil {
		return fmt.Errorf("auth: store %s token: %w", provider, err)
	}
	return nil
}
