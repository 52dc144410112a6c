// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package credential signs and verifies the access and refresh tokens handed
// to clients.
//
// Access and refresh tokens are HS256 JWTs signed with two distinct secrets.
// Verification is pure: it checks signature, algorithm, token type, issuer and
// expiry and performs no I/O. Rotating either secret invalidates every
// outstanding token of that kind.
package credential

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// CodeInvalid is the error code for any token that fails verification.
const CodeInvalid = "TOKEN_INVALID"

// MinSecretLength is the minimum accepted secret length in bytes.
const MinSecretLength = 32

// Token type claim values.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultIssuer     = "authcore"
)

// Subject is the identity a token is issued for.
type Subject struct {
	ID    string
	Email string
	Role  string
}

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims are the claims carried by a refresh token.
type RefreshClaims struct {
	FamilyID string `json:"fam"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

// Config configures a Codec.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Codec issues and verifies tokens.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// New validates cfg and returns a Codec.
func New(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, oops.Code("CREDENTIAL_CONFIG_INVALID").Errorf("access and refresh secrets are required")
	}
	if len(cfg.AccessSecret) < MinSecretLength || len(cfg.RefreshSecret) < MinSecretLength {
		return nil, oops.Code("CREDENTIAL_CONFIG_INVALID").
			With("min_length", MinSecretLength).
			Errorf("secrets must be at least %d bytes", MinSecretLength)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, oops.Code("CREDENTIAL_CONFIG_INVALID").Errorf("access and refresh secrets must differ")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, oops.Code("CREDENTIAL_CONFIG_INVALID").Errorf("token lifetimes must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Codec{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           cfg.Clock,
	}, nil
}

// ExpiresIn returns the access token lifetime in whole seconds.
func (c *Codec) ExpiresIn() int64 {
	return int64(c.accessTTL / time.Second)
}

// RefreshTTL returns the refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// IssueAccess signs a new access token for s with a fresh jti.
func (c *Codec) IssueAccess(s Subject) (string, time.Time, error) {
	if s.ID == "" {
		return "", time.Time{}, oops.Code("CREDENTIAL_ISSUE_FAILED").Errorf("subject id cannot be empty")
	}
	now := c.now()
	exp := now.Add(c.accessTTL)
	claims := AccessClaims{
		Email:            s.Email,
		Role:             s.Role,
		Type:             TypeAccess,
		RegisteredClaims: c.registered(s.ID, now, exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
	if err != nil {
		return "", time.Time{}, oops.Code("CREDENTIAL_ISSUE_FAILED").With("type", TypeAccess).Wrap(err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// IssueRefresh signs a new refresh token for s. An empty familyID starts a
// new family; the family actually used is returned.
func (c *Codec) IssueRefresh(s Subject, familyID string) (token, family string, exp time.Time, err error) {
	if s.ID == "" {
		return "", "", time.Time{}, oops.Code("CREDENTIAL_ISSUE_FAILED").Errorf("subject id cannot be empty")
	}
	if familyID == "" {
		familyID = ulid.Make().String()
	}
	now := c.now()
	claims := RefreshClaims{
		FamilyID:         familyID,
		Type:             TypeRefresh,
		RegisteredClaims: c.registered(s.ID, now, now.Add(c.refreshTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	if err != nil {
		return "", "", time.Time{}, oops.Code("CREDENTIAL_ISSUE_FAILED").With("type", TypeRefresh).Wrap(err)
	}
	return signed, familyID, claims.ExpiresAt.Time, nil
}

// VerifyAccess checks an access token and returns its claims.
func (c *Codec) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(token, claims, c.accessSecret); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, invalid("wrong token type", nil)
	}
	return claims, nil
}

// VerifyRefresh checks a refresh token and returns its claims.
func (c *Codec) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(token, claims, c.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh || claims.FamilyID == "" {
		return nil, invalid("wrong token type", nil)
	}
	return claims, nil
}

func (c *Codec) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func (c *Codec) parse(token string, claims jwt.Claims, secret []byte) error {
	if token == "" {
		return invalid("empty token", nil)
	}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return invalid("expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return invalid("bad signature", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return invalid("malformed", err)
	default:
		return invalid("rejected", err)
	}
}

func invalid(reason string, cause error) error {
	b := oops.Code(CodeInvalid).With("reason", reason)
	if cause == nil {
		return b.Errorf("invalid token")
	}
	return b.Wrapf(cause, "invalid token")
}
