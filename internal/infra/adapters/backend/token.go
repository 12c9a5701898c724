package backend

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is the user's bearer credential. The backend issues JWTs; claims are
// read without verification only to key local state and to fail fast on expiry.
type Token struct {
	raw     string
	subject string
	expires *time.Time
}

func NewToken(raw string) Token {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	t := Token{raw: raw}
	if raw == "" {
		return t
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err == nil {
		t.subject = claims.Subject
		if claims.ExpiresAt != nil {
			exp := claims.ExpiresAt.Time
			t.expires = &exp
		}
	}
	return t
}

func (t Token) Raw() string { return t.raw }

func (t Token) Empty() bool { return t.raw == "" }

// UserKey identifies the user for lock and snapshot keys. Opaque tokens are hashed.
func (t Token) UserKey() string {
	if t.subject != "" {
		return t.subject
	}
	if t.raw == "" {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(t.raw))
	return hex.EncodeToString(sum[:8])
}

// Expired reports whether the token carries an exp claim in the past.
func (t Token) Expired(now time.Time) bool {
	return t.expires != nil && !now.Before(*t.expires)
}
