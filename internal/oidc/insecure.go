package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gogotex/docflow/pkg/middleware"
)

var errMalformed = errors.New("malformed token")

// claimSet is the decoded payload of an unverified token.
type claimSet map[string]interface{}

func (c claimSet) Claims(v interface{}) error {
	b, err := json.Marshal(map[string]interface{}(c))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// InsecureVerifier trusts the payload of any well-formed JWT without checking
// its signature. It is only selected when DOCFLOW_AUTH_ALLOW_INSECURE_TOKEN
// is set. Subject and expiry are still enforced.
type InsecureVerifier struct {
	now func() time.Time
}

func NewInsecureVerifier() *InsecureVerifier { return &InsecureVerifier{now: time.Now} }

func (v *InsecureVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, errMalformed
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	var claims claimSet
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if sub, _ := claims["sub"].(string); sub == "" {
		return nil, ErrNoSubject
	}
	if exp, ok := claims["exp"].(float64); ok && v.now().After(time.Unix(int64(exp), 0)) {
		return nil, errors.New("token expired")
	}
	return claims, nil
}
