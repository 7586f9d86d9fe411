package remote

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "yatra"

// DeviceClaims identifies the device presenting a bearer token.
type DeviceClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for deviceID valid for ttl from now.
func SignToken(secret []byte, deviceID string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("sign token: empty secret")
	}
	claims := DeviceClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// VerifyToken checks tok against secret and returns the device it names.
func VerifyToken(secret []byte, tok string) (string, error) {
	t, err := jwt.ParseWithClaims(tok, &DeviceClaims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	c, ok := t.Claims.(*DeviceClaims)
	if !ok || !t.Valid || c.DeviceID == "" {
		return "", errors.New("verify token: invalid claims")
	}
	return c.DeviceID, nil
}
