package httpapi

import (
	"net/http"
	"time"

	"theinternetcompany.one/internal/auth"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// CookieConfig controls the auth cookie attributes. Secure deployments set
// Secure plus the parent Domain so the cookies travel across subdomains.
type CookieConfig struct {
	Secure bool
	Domain string
}

func (c CookieConfig) sameSite() http.SameSite {
	if c.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// setAuthCookies mirrors the token pair into httpOnly cookies for browser
// clients. API clients read the JSON body instead; both carriages stay in
// sync.
func (a *API) setAuthCookies(w http.ResponseWriter, pair auth.TokenPair) {
	now := time.Now()
	a.setCookie(w, accessCookie, pair.AccessToken, pair.AccessExpiresAt.Sub(now))
	a.setCookie(w, refreshCookie, pair.RefreshToken, pair.RefreshExpiresAt.Sub(now))
}

func (a *API) clearAuthCookies(w http.ResponseWriter) {
	a.setCookie(w, accessCookie, "", -time.Hour)
	a.setCookie(w, refreshCookie, "", -time.Hour)
}

func (a *API) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   a.cookies.Domain,
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: a.cookies.sameSite(),
	}
	if ttl <= 0 {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(ttl / time.Second)
	}
	http.SetCookie(w, cookie)
}

// refreshTokenFromRequest prefers the JSON body and falls back to the
// cookie a browser client carries.
func refreshTokenFromRequest(r *http.Request, bodyToken string) string {
	if bodyToken != "" {
		return bodyToken
	}
	if cookie, err := r.Cookie(refreshCookie); err == nil {
		return cookie.Value
	}
	return ""
}
