package oauth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Identity is what a provider vouches for. Email is lower-cased since it is
// the key invitations are matched on.
type Identity struct {
	ExternalID    string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
}

var (
	subjectClaims = []string{"sub", "id", "user_id", "uid"}
	nameClaims    = []string{"name", "display_name", "login", "username", "preferred_username"}
	avatarClaims  = []string{"picture", "avatar_url"}
)

// identityFromClaims rejects an explicit email_verified=false. A missing
// claim counts as verified only for providers configured to trust email.
func identityFromClaims(claims map[string]any, trustEmail bool) (Identity, error) {
	verified, asserted := emailVerified(claims["email_verified"])
	if asserted && !verified {
		return Identity{}, ErrUnverifiedEmail
	}

	id := Identity{
		ExternalID:    claim(claims, subjectClaims...),
		Email:         strings.ToLower(claim(claims, "email")),
		EmailVerified: verified || (!asserted && trustEmail),
		DisplayName:   claim(claims, nameClaims...),
		AvatarURL:     claim(claims, avatarClaims...),
	}
	if id.ExternalID == "" || id.Email == "" {
		return Identity{}, ErrUnauthorized
	}
	if id.DisplayName == "" {
		id.DisplayName = id.Email
	}
	return id, nil
}

// emailVerified accepts both the boolean and the "true"/"false" string form.
func emailVerified(v any) (verified bool, asserted bool) {
	switch v := v.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func claim(claims map[string]any, keys ...string) string {
	for _, key := range keys {
		var s string
		switch v := claims[key].(type) {
		case nil:
			continue
		case string:
			s = v
		case json.Number:
			s = v.String()
		default:
			s = fmt.Sprint(v)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
