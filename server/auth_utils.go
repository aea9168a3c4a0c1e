package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-cookie-auth/token"
)

func (s *Server) setTokenCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, s.tokenCookie(name, value, int(maxAge.Seconds())))
}

// setPairCookies writes the access cookie and, when the pair carries one, the refresh
// cookie.
func (s *Server) setPairCookies(w http.ResponseWriter, pair *token.Pair) {
	s.setTokenCookie(w, AccessTokenCookie, pair.AccessToken, s.config.GetAccessCookieMaxAge())
	if pair.RefreshToken != "" {
		s.setTokenCookie(w, RefreshTokenCookie, pair.RefreshToken, s.config.GetRefreshCookieMaxAge())
	}
}

func (s *Server) clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, s.tokenCookie(AccessTokenCookie, "", -1))
	http.SetCookie(w, s.tokenCookie(RefreshTokenCookie, "", -1))
}

func (s *Server) tokenCookie(name, value string, maxAge int) *http.Cookie {
	secure := s.config.GetCookieSecure()
	sameSite := http.SameSiteNoneMode
	if !secure {
		// browsers reject SameSite=None without Secure
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		MaxAge:   maxAge,
	}
}

func tokenFromCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
