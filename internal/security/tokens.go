package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned for every validation failure: malformed, bad signature, expired,
	// wrong issuer/audience, or wrong token type. Callers cannot tell these apart.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenType distinguishes short-lived access tokens from long-lived refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Subject identifies who a token is issued to. SessionID binds access and refresh tokens
// to the SessionRecord created at login. Role is carried so security-primitive
// authorization does not need a principal lookup per request.
type Subject struct {
	ID        string
	TenantID  string
	SessionID string
	Role      string
}

// Claims holds the JWT claims for both token types. The typ claim carries the TokenType.
type Claims struct {
	jwt.RegisteredClaims
	Type      TokenType `json:"typ"`
	TenantID  string    `json:"tenant_id"`
	SessionID string    `json:"session_id,omitempty"`
	Role      string    `json:"role,omitempty"`
}

// Principal returns the token's subject triple.
func (c *Claims) Principal() Subject {
	return Subject{ID: c.RegisteredClaims.Subject, TenantID: c.TenantID, SessionID: c.SessionID, Role: c.Role}
}

// Expiry returns the token's natural expiry, or the zero time if unset.
func (c *Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

// Token is an issued, signed token together with the metadata the caller needs to persist.
type Token struct {
	Value     string
	ID        string
	Type      TokenType
	Subject   Subject
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenProvider issues and validates JWT access and refresh tokens using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowF       func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and checked on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		nowF:       time.Now,
	}
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// Issue signs a token of the given type for sub, valid for ttl. Every token receives a fresh
// random identifier (jti), so two tokens for the same subject never share one.
func (p *TokenProvider) Issue(sub Subject, tokenType TokenType, ttl time.Duration) (*Token, error) {
	if sub.ID == "" || ttl <= 0 {
		return nil, ErrInvalidToken
	}
	if tokenType != TokenTypeAccess && tokenType != TokenTypeRefresh {
		return nil, ErrInvalidToken
	}
	jti := uuid.New().String()
	now := p.nowF().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   sub.ID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type:      tokenType,
		TenantID:  sub.TenantID,
		SessionID: sub.SessionID,
		Role:      sub.Role,
	}
	value, err := p.sign(claims)
	if err != nil {
		return nil, err
	}
	return &Token{
		Value:     value,
		ID:        jti,
		Type:      tokenType,
		Subject:   sub,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// IssueAccess issues an access token with the configured access TTL.
func (p *TokenProvider) IssueAccess(sub Subject) (*Token, error) {
	return p.Issue(sub, TokenTypeAccess, p.accessTTL)
}

// IssueRefresh issues a refresh token with the configured refresh TTL.
func (p *TokenProvider) IssueRefresh(sub Subject) (*Token, error) {
	return p.Issue(sub, TokenTypeRefresh, p.refreshTTL)
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// Validate parses tokenString and checks signature, expiry, issuer, audience, and that the typ
// claim equals expected. It fails closed: any mismatch returns (nil, ErrInvalidToken). Revocation
// is not checked here; see the revocation store.
func (p *TokenProvider) Validate(tokenString string, expected TokenType) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return p.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.nowF),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != expected || claims.RegisteredClaims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
