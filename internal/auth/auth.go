// Package auth defines the authentication/authorization contract the
// pipeline depends on without implementing a full identity provider.
// Every HTTP handler and WebSocket upgrade takes an Authorizer and
// never inspects a raw token itself. The JWT-backed implementation here
// is this codebase's own access/refresh idiom, trimmed to carry only what
// the pipeline needs (a user id and revocability) — matter-level role
// is resolved from internal/store, not embedded in the token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"legal-doc-intelligence/models"
)

// Claims identifies the caller. Matter membership is looked up per
// request via the store, keeping the token itself matter-agnostic so
// adding a user to a new matter never requires reissuing tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Authorizer is the contract every HTTP/WS entry point depends on.
type Authorizer interface {
	Authenticate(ctx context.Context, tokenString string) (*Claims, error)
	// Authorize reports whether userID holds at least one of roles on matterID.
	Authorize(ctx context.Context, userID, matterID string, roles ...models.MemberRole) (bool, error)
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_exp"`
	RefreshExp   time.Time `json:"refresh_exp"`
}

var (
	loadSecretsOnce sync.Once
	accessSecret    []byte
	refreshSecret   []byte
	loadSecretsErr  error
)

func ensureSecrets() error {
	loadSecretsOnce.Do(func() {
		access := os.Getenv("ACCESS_SECRET")
		refresh := os.Getenv("REFRESH_SECRET")
		if len(access) < 32 || len(refresh) < 32 {
			loadSecretsErr = fmt.Errorf("ACCESS_SECRET and REFRESH_SECRET must be configured and at least 32 characters")
			return
		}
		accessSecret = []byte(access)
		refreshSecret = []byte(refresh)
	})
	return loadSecretsErr
}

// IssueTokenPair mints a short-lived access token and longer-lived
// refresh token, tracking both JTIs in Redis so RevokeToken works.
func IssueTokenPair(ctx context.Context, userID string, rdb *redis.Client) (*TokenPair, error) {
	if err := ensureSecrets(); err != nil {
		return nil, err
	}

	now := time.Now()
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()

	accessExp := now.Add(1 * time.Hour)
	accessClaims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        accessJTI,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(accessExp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "legal-doc-intelligence",
		},
	}

	refreshExp := now.Add(7 * 24 * time.Hour)
	refreshClaims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        refreshJTI,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "legal-doc-intelligence",
		},
	}

	accessString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(accessSecret)
	if err != nil {
		return nil, err
	}
	refreshString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(refreshSecret)
	if err != nil {
		return nil, err
	}

	pipe := rdb.Pipeline()
	pipe.Set(ctx, "access:"+accessJTI, userID, 1*time.Hour)
	pipe.Set(ctx, "refresh:"+refreshJTI, userID, 7*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessString,
		RefreshToken: refreshString,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func ValidateAccessToken(ctx context.Context, tokenString string, rdb *redis.Client) (*Claims, error) {
	if err := ensureSecrets(); err != nil {
		return nil, err
	}
	return validateToken(ctx, tokenString, accessSecret, "access:", rdb)
}

func ValidateRefreshToken(ctx context.Context, tokenString string, rdb *redis.Client) (*Claims, error) {
	if err := ensureSecrets(); err != nil {
		return nil, err
	}
	return validateToken(ctx, tokenString, refreshSecret, "refresh:", rdb)
}

func validateToken(ctx context.Context, tokenString string, secret []byte, prefix string, rdb *redis.Client) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	exists, err := rdb.Exists(ctx, prefix+claims.ID).Result()
	if err != nil || exists != 1 {
		return nil, errors.New("token revoked or expired")
	}
	return claims, nil
}

func RevokeToken(ctx context.Context, jti string, isRefresh bool, rdb *redis.Client) error {
	prefix := "access:"
	if isRefresh {
		prefix = "refresh:"
	}
	return rdb.Del(ctx, prefix+jti).Err()
}

// MatterStore is the narrow slice of internal/store that Authorize needs;
// defined here (rather than imported) to avoid a dependency cycle between
// auth and store.
type MatterStore interface {
	GetMatter(ctx context.Context, matterID string) (*models.Matter, error)
}

// JWTAuthorizer is the default Authorizer: JWT access tokens plus a
// matter-membership lookup against the store.
type JWTAuthorizer struct {
	RDB   *redis.Client
	Store MatterStore
}

func NewJWTAuthorizer(rdb *redis.Client, store MatterStore) *JWTAuthorizer {
	return &JWTAuthorizer{RDB: rdb, Store: store}
}

func (a *JWTAuthorizer) Authenticate(ctx context.Context, tokenString string) (*Claims, error) {
	return ValidateAccessToken(ctx, tokenString, a.RDB)
}

func (a *JWTAuthorizer) Authorize(ctx context.Context, userID, matterID string, roles ...models.MemberRole) (bool, error) {
	matter, err := a.Store.GetMatter(ctx, matterID)
	if err != nil {
		return false, err
	}
	return matter.HasMember(userID, roles...), nil
}
