package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"chronicle/pkg/requestcontext"
)

// ResolveActor parses an optional Bearer session token and installs the actor
// identity and session key on the request context. Requests without a valid
// token proceed anonymously: attribution is best-effort forensic metadata
// here, not an authorization gate. Route-level guards decide access.
func ResolveActor(signingKey []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authHeader := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
				actorID, sessionKey, err := parseSessionToken(token, signingKey)
				if err != nil {
					logger.WarnContext(ctx, "session token rejected", "error", err)
				} else {
					ctx = requestcontext.WithActor(ctx, actorID)
					ctx = requestcontext.WithSessionKey(ctx, sessionKey)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseSessionToken(token string, signingKey []byte) (actorID, sessionKey string, err error) {
	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return "", "", err
	}

	sub, _ := claims["sub"].(string)
	sid, _ := claims["sid"].(string)
	if sub == "" {
		return "", "", fmt.Errorf("session token missing subject")
	}
	return sub, sid, nil
}
