package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"
)

var errUnauthenticated = errors.New("unauthenticated")

type actorKey struct{}

// ActorClaims — claims токена, выданного модулем аутентификации. Subject содержит ID актора.
type ActorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SignToken выпускает HS256-токен для актора.
func SignToken(secret []byte, actor domain.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ActorClaims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// authenticator определяет актора запроса. С секретом принимается только Bearer-токен,
// без секрета актор берётся из заголовков X-Actor-ID и X-Actor-Role.
type authenticator struct {
	secret []byte
}

func (a authenticator) actor(r *http.Request) (domain.Actor, error) {
	if len(a.secret) == 0 {
		return actorFromHeaders(r)
	}

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return domain.Actor{}, fmt.Errorf("%w: bearer token is required", errUnauthenticated)
	}

	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return domain.Actor{}, fmt.Errorf("%w: invalid token", errUnauthenticated)
	}

	return newActor(claims.Subject, claims.Role)
}

func actorFromHeaders(r *http.Request) (domain.Actor, error) {
	return newActor(r.Header.Get(headerActorID), r.Header.Get(headerActorRole))
}

func newActor(id, role string) (domain.Actor, error) {
	actor := domain.Actor{
		ID:   strings.TrimSpace(id),
		Role: domain.Role(strings.ToUpper(strings.TrimSpace(role))),
	}
	if actor.ID == "" {
		return domain.Actor{}, fmt.Errorf("%w: actor id is required", errUnauthenticated)
	}
	if !actor.Role.Valid() {
		return domain.Actor{}, fmt.Errorf("%w: unknown role %q", errUnauthenticated, role)
	}
	return actor, nil
}

func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.auth.actor(r)
		if err != nil {
			h.logger.WithError(err).WithField("path", r.URL.Path).Debug("request rejected")
			writeResponse(w, errorResponse(h.logger, r, err))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

// requireRole пропускает только акторов с одной из ролей.
func (h *handler) requireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := actorFrom(r)
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeResponse(w, errorResponse(h.logger, r, forbidden(actor, "access "+r.URL.Path)))
		})
	}
}

func actorFrom(r *http.Request) domain.Actor {
	actor, _ := r.Context().Value(actorKey{}).(domain.Actor)
	return actor
}
