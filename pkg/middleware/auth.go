package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/gogotex/docflow/pkg/logger"
)

const (
	kindUnauthorized = "unauthorized"
	kindRateLimited  = "rate_limited"
)

// Token is a verified bearer token.
type Token interface {
	Claims(v interface{}) error
}

type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// Revocations reports tokens that were signed out before they expired.
type Revocations interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type authOptions struct {
	profiles *identity.Profiles
	revoked  Revocations
}

type AuthOption func(*authOptions)

// WithProfiles records the caller's profile on every authenticated request.
func WithProfiles(p *identity.Profiles) AuthOption {
	return func(o *authOptions) { o.profiles = p }
}

// WithRevocations rejects revoked tokens. A failed lookup is logged and the
// token is let through.
func WithRevocations(r Revocations) AuthOption {
	return func(o *authOptions) { o.revoked = r }
}

// reject renders middleware failures in the same shape as handler errors.
func reject(c *gin.Context, status int, kind, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "kind": kind})
}

func bearer(header string) (string, bool) {
	tok, ok := strings.CutPrefix(header, "Bearer ")
	tok = strings.TrimSpace(tok)
	return tok, ok && tok != "" && !strings.ContainsAny(tok, " \t")
}

// AuthMiddleware verifies the bearer token and puts the actor named by its
// sub claim on the request context.
func AuthMiddleware(ver Verifier, opts ...AuthOption) gin.HandlerFunc {
	var o authOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			reject(c, http.StatusUnauthorized, kindUnauthorized, "missing Authorization header")
			return
		}
		raw, ok := bearer(header)
		if !ok {
			reject(c, http.StatusUnauthorized, kindUnauthorized, "expected a Bearer token")
			return
		}
		ctx := c.Request.Context()

		if o.revoked != nil {
			revoked, err := o.revoked.IsRevoked(ctx, raw)
			if err != nil {
				logger.Warnf("revocation check failed: %v", err)
			}
			if revoked {
				reject(c, http.StatusUnauthorized, kindUnauthorized, "token revoked")
				return
			}
		}

		tok, err := ver.Verify(ctx, raw)
		if err != nil {
			logger.Debugf("rejected token: %v", err)
			reject(c, http.StatusUnauthorized, kindUnauthorized, "invalid token: "+err.Error())
			return
		}
		var claims map[string]interface{}
		if err := tok.Claims(&claims); err != nil {
			reject(c, http.StatusUnauthorized, kindUnauthorized, "unreadable token claims")
			return
		}
		actor, ok := identity.FromClaims(claims)
		if !ok {
			reject(c, http.StatusUnauthorized, kindUnauthorized, "token has no subject")
			return
		}
		if o.profiles != nil {
			if _, err := o.profiles.Remember(ctx, actor); err != nil {
				logger.Warnf("could not store profile for %s: %v", actor.ID, err)
			}
		}

		c.Request = c.Request.WithContext(identity.WithActor(ctx, actor))
		c.Next()
	}
}
