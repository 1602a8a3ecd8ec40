package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/protocol"
)

// Identity represents an authenticated identity.
type Identity struct {
	// ID is a unique identifier for the identity (e.g., user ID, API key ID).
	ID string
	// Name is a human-readable name for the identity.
	Name string
	// Metadata contains additional identity information.
	Metadata map[string]any
}

// identityContextKey is the context key for storing the identity.
type identityContextKey struct{}

// IdentityFromContext returns the authenticated identity from the context.
// Returns nil if no identity is present.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityContextKey{}).(*Identity); ok {
		return id
	}
	return nil
}

// ContextWithIdentity returns a new context with the identity attached.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// AuthOption configures the authentication middleware.
type AuthOption func(*authConfig)

type authConfig struct {
	logger         Logger
	skipOperations map[string]bool
	errorMessage   string
}

// WithAuthLogger sets the logger for auth events.
func WithAuthLogger(l Logger) AuthOption {
	return func(c *authConfig) {
		c.logger = l
	}
}

// WithAuthSkipOperations specifies operations that don't require
// authentication, such as health probes.
func WithAuthSkipOperations(ops ...string) AuthOption {
	return func(c *authConfig) {
		for _, op := range ops {
			c.skipOperations[op] = true
		}
	}
}

// WithAuthErrorMessage sets a custom error message for auth failures.
func WithAuthErrorMessage(msg string) AuthOption {
	return func(c *authConfig) {
		c.errorMessage = msg
	}
}

// Authenticator validates the credentials found in ctx and returns an
// identity. A nil identity with a nil error means no credentials matched.
type Authenticator func(ctx context.Context) (*Identity, error)

// Auth returns middleware that authenticates each invocation using the
// provided authenticator. Unauthenticated invocations are rejected with an
// unauthorized error and never reach later stages.
func Auth[C Carrier](authenticator Authenticator, opts ...AuthOption) compose.Middleware[C] {
	cfg := &authConfig{
		skipOperations: make(map[string]bool),
		errorMessage:   "authentication required",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c C, next compose.Next) error {
		op := operationOf(c)
		if cfg.skipOperations[op] {
			return next()
		}

		ctx := c.Context()
		identity, err := authenticator(ctx)
		if err != nil {
			if cfg.logger != nil {
				cfg.logger.Warn("authentication failed",
					F("operation", op),
					F("error", err.Error()),
				)
			}
			return protocol.NewUnauthorized(cfg.errorMessage)
		}

		if identity == nil {
			if cfg.logger != nil {
				cfg.logger.Warn("authentication failed: no identity",
					F("operation", op),
				)
			}
			return protocol.NewUnauthorized(cfg.errorMessage)
		}

		if cfg.logger != nil {
			cfg.logger.Debug("authenticated",
				F("operation", op),
				F("identity", identity.ID),
			)
		}

		c.SetContext(ContextWithIdentity(ctx, identity))
		return next()
	}
}

// APIKeyAuthenticator creates an authenticator that reads an API key from
// the named metadata entry. keyValidator returns the identity for a valid
// key, or nil for an invalid one.
func APIKeyAuthenticator(headerName string, keyValidator func(key string) *Identity) Authenticator {
	return func(ctx context.Context) (*Identity, error) {
		key := protocol.GetMeta(ctx, headerName)
		if key == "" {
			return nil, nil
		}
		return keyValidator(key), nil
	}
}

// BearerTokenAuthenticator creates an authenticator that reads a bearer
// token from the Authorization metadata entry.
func BearerTokenAuthenticator(tokenValidator func(token string) *Identity) Authenticator {
	return func(ctx context.Context) (*Identity, error) {
		token := bearerToken(ctx)
		if token == "" {
			return nil, nil
		}
		return tokenValidator(token), nil
	}
}

func bearerToken(ctx context.Context) string {
	auth := protocol.GetMeta(ctx, "Authorization")
	const prefix = "Bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// StaticAPIKeys creates a key validator from a map of key -> identity.
// Keys are compared in constant time.
func StaticAPIKeys(keys map[string]*Identity) func(string) *Identity {
	return func(key string) *Identity {
		return lookupConstantTime(keys, key)
	}
}

// StaticTokens creates a token validator from a map of token -> identity.
func StaticTokens(tokens map[string]*Identity) func(string) *Identity {
	return func(token string) *Identity {
		return lookupConstantTime(tokens, token)
	}
}

func lookupConstantTime(m map[string]*Identity, secret string) *Identity {
	var found *Identity
	for k, id := range m {
		if subtle.ConstantTimeCompare([]byte(k), []byte(secret)) == 1 {
			found = id
		}
	}
	return found
}

// ChainAuthenticators chains multiple authenticators, returning the first
// successful identity. The first error stops the chain.
func ChainAuthenticators(authenticators ...Authenticator) Authenticator {
	return func(ctx context.Context) (*Identity, error) {
		for _, auth := range authenticators {
			identity, err := auth(ctx)
			if err != nil {
				return nil, err
			}
			if identity != nil {
				return identity, nil
			}
		}
		return nil, nil
	}
}
