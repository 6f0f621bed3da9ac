package auth

import (
	"net/http"
	"net/url"
	"strings"

	"inbox-service/internal/apperrors"
)

var ErrForeignOrigin = apperrors.New(apperrors.ErrForbidden, "cross-origin request rejected")

// OriginPolicy decides which sites may act with a user's session cookie.
// The service's own host is always allowed.
type OriginPolicy struct {
	allowed map[string]struct{}
}

// NewOriginPolicy accepts origins such as "https://app.example.com".
func NewOriginPolicy(origins []string) *OriginPolicy {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = normalizeOrigin(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return &OriginPolicy{allowed: allowed}
}

// Allows reports whether r was issued by the service's own pages or an
// allowed origin. The Origin header is used, then the Referer. A request
// carrying neither is refused.
func (p *OriginPolicy) Allows(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Referer()
	}
	u, err := url.Parse(origin)
	if origin == "" || err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if p == nil {
		return false
	}
	_, ok := p.allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
	return ok
}

// CheckRequest refuses cookie-authenticated requests from foreign sites.
// Requests authenticated with an explicit token and safe methods always pass.
func (p *OriginPolicy) CheckRequest(r *http.Request, source TokenSource) error {
	if !source.Ambient() || safeMethod(r.Method) {
		return nil
	}
	if !p.Allows(r) {
		return ErrForeignOrigin
	}
	return nil
}

// CheckHandshake applies the origin rule to a websocket upgrade, which is a
// GET but exposes the pushed data to the opening page.
func (p *OriginPolicy) CheckHandshake(r *http.Request, source TokenSource) error {
	if source.Ambient() && !p.Allows(r) {
		return ErrForeignOrigin
	}
	return nil
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func normalizeOrigin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
