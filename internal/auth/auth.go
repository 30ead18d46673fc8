package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"github.com/tradiedesk/tradiedesk/internal/config"
	"github.com/tradiedesk/tradiedesk/pkg/user"
)

const UserIdHeader = "X-User-Id"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySecret  = errors.New("empty signing secret")
)

type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Sign issues an HS256 token for userId. Used by tests and local tooling.
func (v *TokenVerifier) Sign(userId string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrEmptySecret
	}
	claims := jwt.RegisteredClaims{
		Subject:   userId,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify checks the signature and expiry of tokenStr and returns its subject.
func (v *TokenVerifier) Verify(tokenStr string) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	t, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !t.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Middleware attaches the caller identity to the request context. Requests without a valid
// identity pass through unauthenticated; handlers answer them with 401.
func Middleware(cfg config.Auth) func(http.Handler) http.Handler {
	verifier := NewTokenVerifier(cfg.JwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userId := ""
			switch cfg.Mode {
			case config.AuthModeHeader:
				userId = strings.TrimSpace(r.Header.Get(UserIdHeader))
			default:
				bearer := r.Header.Get("Authorization")
				if token, ok := strings.CutPrefix(bearer, "Bearer "); ok {
					id, err := verifier.Verify(strings.TrimSpace(token))
					if err != nil {
						log.Debugf("rejected bearer token: %v", err)
					}
					userId = id
				}
			}

			if userId == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(user.WithId(r.Context(), userId)))
		})
	}
}
