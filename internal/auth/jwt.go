package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"eduface/internal/portal"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// Claims represents JWT payload.
type Claims struct {
	UserID    int    `json:"uid"`
	StudentID string `json:"sid,omitempty"`
	Role      string `json:"role"`
	Kind      string `json:"kind"`
	jwt.RegisteredClaims
}

// Identity returns the caller described by the claims.
func (c Claims) Identity() portal.Identity {
	return portal.Identity{UserID: c.UserID, StudentID: c.StudentID, Role: portal.Role(c.Role)}
}

// Tokens issues and checks HS256 tokens.
type Tokens struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokens(key, issuer string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{key: []byte(key), issuer: issuer, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// Issue issues signed access and refresh tokens for id.
func (t *Tokens) Issue(id portal.Identity) (TokenPair, error) {
	now := t.now()
	accessExp := now.Add(t.accessTTL)
	refreshExp := now.Add(t.refreshTTL)

	accessToken, err := t.sign(id, kindAccess, accessExp, "")
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := t.sign(id, kindRefresh, refreshExp, uuid.NewString())
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (t *Tokens) sign(id portal.Identity, kind string, exp time.Time, jti string) (string, error) {
	claims := Claims{
		UserID:    id.UserID,
		StudentID: id.StudentID,
		Role:      string(id.Role),
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    t.issuer,
			Subject:   itoa(id.UserID),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(t.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
}

// ParseAccess validates an access token and returns its claims.
func (t *Tokens) ParseAccess(token string) (Claims, error) {
	return t.parse(token, kindAccess)
}

// ParseRefresh validates a refresh token and returns its claims.
func (t *Tokens) ParseRefresh(token string) (Claims, error) {
	return t.parse(token, kindRefresh)
}

func (t *Tokens) parse(tokenStr, kind string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.key, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Kind != kind {
		return Claims{}, errors.New("wrong token kind")
	}
	return *claims, nil
}
