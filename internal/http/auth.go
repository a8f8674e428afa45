package http

import (
	"context"
	"crypto/rsa"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies RS256 bearer tokens issued by the identity service.
type Authenticator struct {
	key *rsa.PublicKey
}

func NewAuthenticator(publicKeyPEM string) (*Authenticator, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, errors.Wrap(err, "parse jwt public key")
	}
	return &Authenticator{key: key}, nil
}

// Actor validates token and returns the caller it names in sub and role.
func (a *Authenticator) Actor(token string) (domain.Actor, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Actor{}, errors.Mark(errors.Wrap(err, "parse token"), errUnauthorized)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return domain.Actor{}, errUnauthorized
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Actor{}, errors.Mark(errors.Wrap(err, "subject"), errUnauthorized)
	}
	role := domain.Role(strings.ToUpper(claims.Role))
	switch role {
	case domain.RoleClient, domain.RoleOwner, domain.RoleAdmin:
	default:
		return domain.Actor{}, errors.Wrapf(errUnauthorized, "unknown role %q", claims.Role)
	}
	return domain.Actor{ID: id, Role: role}, nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			writeError(w, r, errUnauthorized)
			return
		}
		actor, err := a.Actor(token)
		if err != nil {
			loggerFrom(r).WithError(err).Debug("token rejected")
			writeError(w, r, errUnauthorized)
			return
		}
		ctx := WithActor(r.Context(), actor)
		ctx = withLogger(ctx, loggerFrom(r).WithField("actor_id", actor.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type actorKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}
