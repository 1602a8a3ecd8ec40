package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTOption configures JWTAuthenticator.
type JWTOption func(*jwtConfig)

type jwtConfig struct {
	method   jwt.SigningMethod
	issuer   string
	audience string
}

// WithJWTSigningMethod restricts accepted tokens to the given method.
// Defaults to HS256.
func WithJWTSigningMethod(m jwt.SigningMethod) JWTOption {
	return func(c *jwtConfig) {
		c.method = m
	}
}

// WithJWTIssuer requires the iss claim to match.
func WithJWTIssuer(iss string) JWTOption {
	return func(c *jwtConfig) {
		c.issuer = iss
	}
}

// WithJWTAudience requires the aud claim to contain aud.
func WithJWTAudience(aud string) JWTOption {
	return func(c *jwtConfig) {
		c.audience = aud
	}
}

// JWTAuthenticator creates an authenticator that validates bearer tokens as
// signed JWTs. The token subject becomes the identity ID. An absent token
// yields no identity; an invalid one yields an error.
func JWTAuthenticator(key any, opts ...JWTOption) Authenticator {
	cfg := &jwtConfig{method: jwt.SigningMethodHS256}
	for _, opt := range opts {
		opt(cfg)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{cfg.method.Alg()}),
	}
	if cfg.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.issuer))
	}
	if cfg.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.audience))
	}

	keyFunc := func(*jwt.Token) (any, error) { return key, nil }

	return func(ctx context.Context) (*Identity, error) {
		raw := bearerToken(ctx)
		if raw == "" {
			return nil, nil
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, keyFunc, parserOpts...)
		if err != nil {
			return nil, fmt.Errorf("jwt: parse token: %w", err)
		}
		if !token.Valid {
			return nil, errors.New("jwt: invalid token")
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return nil, errors.New("jwt: missing subject")
		}

		id := &Identity{ID: sub, Metadata: make(map[string]any, len(claims))}
		if name, ok := claims["name"].(string); ok {
			id.Name = name
		}
		for k, v := range claims {
			id.Metadata[k] = v
		}
		return id, nil
	}
}
