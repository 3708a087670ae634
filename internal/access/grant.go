package access

import (
	"encoding/json"
	"time"

	"coachwidget/internal/api"
)

// Grant is the proof that this client may use the paid chat feature.
type Grant struct {
	Token        string
	ExpiresAt    time.Time // zero when the server sent no expiry
	GrantedVia   string
	IsBetaTester bool
	IsPaidMember bool
}

// Expired reports whether the grant is past its expiry. Grants without a
// known expiry never self-expire; the server rejects them when it must.
func (g Grant) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt)
}

// cacheEntry is the session-scope JSON form of a grant. Field names match
// the wire payload so cached and fresh grants read the same.
type cacheEntry struct {
	AccessToken     string `json:"access_token"`
	AccessExpiresAt string `json:"access_expires_at"`
	GrantedVia      string `json:"access_granted_via,omitempty"`
	IsBetaTester    bool   `json:"is_beta_tester,omitempty"`
	IsPaidMember    bool   `json:"is_paid_member,omitempty"`
	CachedAt        string `json:"cached_at"`
	MemberEmail     string `json:"member_email,omitempty"`
}

func grantFromResponse(resp *api.AccessCheckResponse) Grant {
	g := Grant{
		Token:        resp.AccessToken,
		GrantedVia:   resp.GrantedVia,
		IsBetaTester: resp.IsBetaTester,
		IsPaidMember: resp.IsPaidMember,
	}
	if t, err := time.Parse(time.RFC3339, resp.AccessExpiresAt); err == nil {
		g.ExpiresAt = t
	}
	return g
}

func (g Grant) toCacheEntry(identity string, now time.Time) cacheEntry {
	entry := cacheEntry{
		AccessToken:  g.Token,
		GrantedVia:   g.GrantedVia,
		IsBetaTester: g.IsBetaTester,
		IsPaidMember: g.IsPaidMember,
		CachedAt:     now.UTC().Format(time.RFC3339),
		MemberEmail:  identity,
	}
	if !g.ExpiresAt.IsZero() {
		entry.AccessExpiresAt = g.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return entry
}

func grantFromCache(raw string) (Grant, bool) {
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Grant{}, false
	}
	if entry.AccessToken == "" || entry.AccessExpiresAt == "" {
		return Grant{}, false
	}
	expiry, err := time.Parse(time.RFC3339, entry.AccessExpiresAt)
	if err != nil {
		return Grant{}, false
	}
	return Grant{
		Token:        entry.AccessToken,
		ExpiresAt:    expiry,
		GrantedVia:   entry.GrantedVia,
		IsBetaTester: entry.IsBetaTester,
		IsPaidMember: entry.IsPaidMember,
	}, true
}
