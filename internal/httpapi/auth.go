package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fila/ticket-service/internal/auth"
)

const authCookieName = "auth-token"

type authContextKey struct{}

// AuthMiddleware verifies the staff cookie on protected endpoints and puts
// the token claims on the request context. Kiosk and display endpoints stay
// open by design.
func AuthMiddleware(tokens *auth.TokenManager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(authCookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing auth token")
			return
		}

		claims, err := tokens.Verify(cookie.Value)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid auth token")
			return
		}

		ctx := context.WithValue(r.Context(), authContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) (auth.Claims, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return auth.Claims{}, false
	}
	claims, ok := value.(auth.Claims)
	if !ok {
		return auth.Claims{}, false
	}
	return claims, true
}

func requireClaims(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing auth token")
		return auth.Claims{}, false
	}
	return claims, true
}

func isPublicEndpoint(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/auth/signup", "/auth/login", "/auth/logout":
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/public/")
}

func setAuthCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearAuthCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
