package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"support-api/pkg/config"

	"github.com/golang-jwt/jwt/v4"
)

// OTPTokenPurpose tags verified-phone tokens so they can never be replayed as
// access tokens.
const OTPTokenPurpose = "search-otp"

var cfg *config.JWTConfig

// Initialize stores the JWT configuration for token operations
func Initialize(jwtConfig *config.JWTConfig) {
	cfg = jwtConfig
}

// AccessClaims represents the JWT claims for an authenticated admin session
type AccessClaims struct {
	Role         string `json:"role"`
	TokenVersion int    `json:"tv"`
	jwt.RegisteredClaims
}

// OTPClaims represents the short-lived verified-phone token claims
type OTPClaims struct {
	Phone   string `json:"phone"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// GenerateAccessToken creates a signed access token carrying the account id,
// role and current token version.
func GenerateAccessToken(userID uint, role string, tokenVersion int) (string, error) {
	if cfg == nil {
		return "", errors.New("JWT configuration not provided")
	}

	claims := AccessClaims{
		Role:         role,
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(cfg.AccessExpires)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.AccessSecret))
}

// ValidateAccessToken validates signature and expiry and parses the claims.
// Token-version freshness is checked by the auth middleware against the store.
func ValidateAccessToken(tokenString string) (*AccessClaims, error) {
	if cfg == nil {
		return nil, errors.New("JWT configuration not provided")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&AccessClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(cfg.AccessSecret), nil
		},
	)

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AccessClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// GenerateOTPToken creates a verified-phone token after a successful OTP check
func GenerateOTPToken(phone string) (string, error) {
	if cfg == nil {
		return "", errors.New("JWT configuration not provided")
	}

	claims := OTPClaims{
		Phone:   phone,
		Purpose: OTPTokenPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(cfg.OTPExpires)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.OTPSecret))
}

// ValidateOTPToken validates a verified-phone token and returns the phone it
// was issued for. Tokens with the wrong purpose are rejected.
func ValidateOTPToken(tokenString string) (string, error) {
	if cfg == nil {
		return "", errors.New("JWT configuration not provided")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&OTPClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(cfg.OTPSecret), nil
		},
	)

	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*OTPClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrSignatureInvalid
	}
	if claims.Purpose != OTPTokenPurpose || claims.Phone == "" {
		return "", errors.New("invalid token purpose")
	}

	return claims.Phone, nil
}
