package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/mcdev12/pongarena/go/internal/match"
)

var ErrUnauthenticated = errors.New("missing or invalid user identity")

const (
	HeaderUserID    = "X-User-Id"
	HeaderUserLogin = "X-User-Login"
)

// Authenticator resolves the player behind a request. Identity is verified
// upstream; implementations only read what the proxy forwarded.
type Authenticator interface {
	Authenticate(r *http.Request) (match.PlayerRef, error)
}

// HeaderAuthenticator trusts the identity headers set by the auth proxy.
// Browsers cannot set headers on a WebSocket handshake, so AllowQuery lets
// user_id and login travel in the query string instead.
type HeaderAuthenticator struct {
	AllowQuery bool
}

func (a HeaderAuthenticator) Authenticate(r *http.Request) (match.PlayerRef, error) {
	if r.Header.Get(HeaderUserID) == "" && a.AllowQuery {
		return parseIdentity(r.URL.Query().Get("user_id"), r.URL.Query().Get("login"))
	}
	return IdentityFromHeader(r.Header)
}

// IdentityFromHeader reads the proxy identity headers.
func IdentityFromHeader(h http.Header) (match.PlayerRef, error) {
	return parseIdentity(h.Get(HeaderUserID), h.Get(HeaderUserLogin))
}

func parseIdentity(rawID, login string) (match.PlayerRef, error) {
	if rawID == "" {
		return match.PlayerRef{}, ErrUnauthenticated
	}
	id, err := strconv.Atoi(rawID)
	if err != nil || id <= 0 {
		return match.PlayerRef{}, ErrUnauthenticated
	}
	return match.PlayerRef{ID: id, Login: login}, nil
}
