package tokens

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const secret = "docflow-signing-secret-0123456789"

func seg(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func TestIssueSignsHS256WithActorClaims(t *testing.T) {
	reviewer := identity.Actor{ID: "rev-7", Name: "Rita Reviewer", Email: "rita@example.com"}
	raw, err := Issue(secret, reviewer, 2*time.Minute)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	require.Equal(t, "HS256", tok.Header["alg"])
	require.Equal(t, "rev-7", claims["sub"])
	require.Equal(t, "Rita Reviewer", claims["name"])
	require.Equal(t, "rita@example.com", claims["email"])
	iat, err := claims.GetIssuedAt()
	require.NoError(t, err)
	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	require.Equal(t, 2*time.Minute, exp.Sub(iat.Time))
}

func TestIssue_RequiresSecret(t *testing.T) {
	_, err := Issue("", identity.Actor{ID: "u"}, time.Minute)
	require.ErrorIs(t, err, ErrNoSecret)
	_, err = NewHMACVerifier("")
	require.ErrorIs(t, err, ErrNoSecret)
}

func TestVerify_ActorRoundTrip(t *testing.T) {
	v, err := NewHMACVerifier(secret)
	require.NoError(t, err)
	tokenStr, err := Issue(secret, identity.Actor{ID: "alice", Name: "Alice", Email: "alice@example.com"}, time.Minute)
	require.NoError(t, err)

	tok, err := v.Verify(context.Background(), tokenStr)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	a, ok := identity.FromClaims(claims)
	require.True(t, ok)
	require.Equal(t, identity.Actor{ID: "alice", Name: "Alice", Email: "alice@example.com"}, a)

	exp, err := v.ExpiresAt(tokenStr)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)
}

func TestVerify_Rejections(t *testing.T) {
	v, err := NewHMACVerifier(secret)
	require.NoError(t, err)
	ctx := context.Background()

	expired, err := Issue(secret, identity.Actor{ID: "u2"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(ctx, expired)
	require.Error(t, err, "expired")

	other, err := Issue("different-secret-xxxxxxxxxxxxxxxx", identity.Actor{ID: "u3"}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(ctx, other)
	require.Error(t, err, "wrong secret")

	_, err = v.Verify(ctx, "not.a.jwt")
	require.Error(t, err, "malformed")

	// alg=none
	none := seg([]byte(`{"alg":"none"}`)) + "." + seg([]byte(`{"sub":"u-none","exp":9999999999}`)) + "."
	_, err = v.Verify(ctx, none)
	require.Error(t, err, "alg none")

	// no expiry
	forever, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u4"}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = v.Verify(ctx, forever)
	require.Error(t, err, "no exp")
}

// Tampering with payload must fail signature verification
func TestVerify_TamperedPayload(t *testing.T) {
	v, err := NewHMACVerifier(secret)
	require.NoError(t, err)
	tokenStr, err := Issue(secret, identity.Actor{ID: "user-t"}, 5*time.Minute)
	require.NoError(t, err)

	parts := strings.Split(tokenStr, ".")
	require.Len(t, parts, 3)
	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	parts[1] = seg([]byte(strings.Replace(string(payloadBytes), "user-t", "attacker", 1)))
	_, err = v.Verify(context.Background(), strings.Join(parts, "."))
	require.Error(t, err)
}

func TestRedisRevocations(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	r := NewRedisRevocations(redis.NewClient(&redis.Options{Addr: m.Addr()}))
	ctx := context.Background()

	require.NoError(t, r.Revoke(ctx, "access-token-1", 2*time.Second))
	ok, err := r.IsRevoked(ctx, "access-token-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, m.Exists("docflow:revoked:access-token-1"), "raw tokens are not stored")

	ok, err = r.IsRevoked(ctx, "access-token-2")
	require.NoError(t, err)
	require.False(t, ok)

	m.FastForward(3 * time.Second)
	ok, err = r.IsRevoked(ctx, "access-token-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisRevocations_NoClient(t *testing.T) {
	r := NewRedisRevocations(nil)
	ctx := context.Background()
	require.NoError(t, r.Revoke(ctx, "t", time.Second))
	ok, err := r.IsRevoked(ctx, "t")
	require.NoError(t, err)
	require.False(t, ok)
}
