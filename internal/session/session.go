// Package session establishes the authenticated sync session. A session is
// created once at startup/login from an access token and a locally persisted
// device id, and torn down on shutdown; engine components live exactly as
// long as the session.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/inkwellhq/inkwell-sync/internal/common"
)

// Session identifies the owner and the device the engine runs for.
type Session struct {
	OwnerID  string
	DeviceID string
}

// Claims are the access-token claims carrying the owner id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string
}

// OwnerFromToken validates tokenString with secretKey and extracts the owner
// id.
func OwnerFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", common.ErrTokenExpired
	}
	if err != nil {
		return "", common.ErrInvalidToken
	}
	if !token.Valid || claims.UserID == "" {
		return "", common.ErrInvalidToken
	}
	return claims.UserID, nil
}

// GenerateToken mints an access token for userID. Used by tests and by
// self-hosted deployments that issue their own tokens.
func GenerateToken(userID string, secretKey []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		UserID: userID,
	})
	return token.SignedString(secretKey)
}

// DeviceIDSource persists the device id between runs.
type DeviceIDSource interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

const deviceIDKey = "device_id"

// New builds the session: the owner comes from the access token, the device
// id from local metadata, minted on first run.
func New(ctx context.Context, tokenString string, secretKey []byte, meta DeviceIDSource) (*Session, error) {
	ownerID, err := OwnerFromToken(tokenString, secretKey)
	if err != nil {
		return nil, err
	}

	deviceID, err := meta.Get(ctx, deviceIDKey)
	if errors.Is(err, common.ErrNotFound) {
		deviceID = []byte(uuid.NewString())
		if err := meta.Set(ctx, deviceIDKey, deviceID); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return &Session{OwnerID: ownerID, DeviceID: string(deviceID)}, nil
}
