package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
)

// Config holds token configuration
type Config struct {
	Secret   string        `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	Issuer   string        `env:"JWT_ISSUER" envDefault:"droplets-auth"`
	TokenTTL time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

// LoadConfigFromEnv loads token configuration from environment variables
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse auth config: %w", err)
	}
	return cfg, nil
}

// CustomClaims represents the JWT claims structure
type CustomClaims struct {
	UserID int64  `json:"user_id"`
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// Manager issues and validates HS256 access tokens. Tokens normally come
// from the external auth service; Issue exists for tooling and tests.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewManager creates a Manager from cfg
func NewManager(cfg *Config) *Manager {
	return &Manager{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: cfg.TokenTTL}
}

// Issue creates a new access token for a user
func (m *Manager) Issue(userID int64, wallet string) (string, error) {
	if userID <= 0 || wallet == "" {
		return "", errors.New("user id and wallet are required")
	}
	now := time.Now()
	claims := CustomClaims{
		UserID: userID,
		Wallet: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate validates a JWT token and returns the claims
func (m *Manager) Validate(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID <= 0 || claims.Wallet == "" {
		return nil, errors.New("token is missing identity claims")
	}
	return claims, nil
}
